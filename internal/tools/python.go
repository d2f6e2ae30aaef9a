package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/chattyhq/chatty/internal/security"
)

// RunPythonTool executes a Python snippet after it passes the code policy
// screen. The interpreter runs in isolated mode (-I) with a hard timeout and
// capped output.
type RunPythonTool struct {
	policy    *security.CodePolicy
	limits    security.Limits
	pythonBin string
	workDir   string
}

func NewRunPythonTool(policy *security.CodePolicy, limits security.Limits, pythonBin, workDir string) *RunPythonTool {
	if pythonBin == "" {
		pythonBin = "python3"
	}
	return &RunPythonTool{
		policy:    policy,
		limits:    limits,
		pythonBin: pythonBin,
		workDir:   workDir,
	}
}

func (t *RunPythonTool) Name() string { return "run_python" }
func (t *RunPythonTool) Description() string {
	return "Execute a short Python snippet in a restricted interpreter and return its output"
}
func (t *RunPythonTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"code": {"type": "string", "description": "Python code to execute"}
		},
		"required": ["code"]
	}`)
}

func (t *RunPythonTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	var p struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}

	return t.Run(ctx, p.Code)
}

// Run screens and executes code directly; the console "run code" command
// uses this path too.
func (t *RunPythonTool) Run(ctx context.Context, code string) (string, error) {
	if err := t.policy.Screen(code); err != nil {
		return "", err
	}

	timeout := t.limits.ExecTimeout
	if timeout <= 0 {
		timeout = security.DefaultLimits().ExecTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// -I: isolated mode (ignores env vars and user site-packages)
	// -B: no .pyc files
	cmd := exec.CommandContext(ctx, t.pythonBin, "-I", "-B", "-c", code)
	if t.workDir != "" {
		cmd.Dir = t.workDir
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := t.limits.CapOutput(buf.String())
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("execution timed out after %s", timeout)
	}
	if err != nil {
		// the error text plus captured stderr is what the model needs
		return "", fmt.Errorf("%s\n%w", output, err)
	}
	return output, nil
}
