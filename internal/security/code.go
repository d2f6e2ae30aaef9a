package security

import (
	"fmt"
	"regexp"
	"strings"
)

// CodePolicy screens Python snippets before they reach the interpreter. It is
// the moral equivalent of running under a restricted builtins table: anything
// that can touch the OS, the network, or the import machinery is rejected
// up front.
type CodePolicy struct {
	bannedModules []string
	bannedCalls   []string
	callPatterns  map[string]*regexp.Regexp
}

var (
	importRe = regexp.MustCompile(`(?m)^\s*(?:import|from)\s+([A-Za-z_][A-Za-z0-9_.]*)`)
	dunderRe = regexp.MustCompile(`__[A-Za-z]+__`)
)

// NewCodePolicy returns a policy with the default banned set.
func NewCodePolicy() *CodePolicy {
	p := &CodePolicy{
		bannedModules: []string{
			"os", "sys", "subprocess", "socket", "shutil",
			"ctypes", "importlib", "pathlib", "pickle", "signal",
		},
		bannedCalls: []string{
			"open", "eval", "exec", "compile", "__import__",
			"input", "breakpoint", "globals", "locals", "vars",
			"getattr", "setattr", "delattr",
		},
	}
	p.callPatterns = make(map[string]*regexp.Regexp, len(p.bannedCalls))
	for _, name := range p.bannedCalls {
		p.callPatterns[name] = regexp.MustCompile(`(?:^|[^A-Za-z0-9_.])` + regexp.QuoteMeta(name) + `\s*\(`)
	}
	return p
}

// Screen validates code against the policy. The returned error names the
// offending token without echoing the snippet.
func (p *CodePolicy) Screen(code string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("%w: empty snippet", ErrCodeRejected)
	}

	for _, m := range importRe.FindAllStringSubmatch(code, -1) {
		mod := m[1]
		top := mod
		if i := strings.IndexByte(mod, '.'); i >= 0 {
			top = mod[:i]
		}
		for _, banned := range p.bannedModules {
			if top == banned {
				return fmt.Errorf("%w: import of %q is not allowed", ErrCodeRejected, mod)
			}
		}
	}

	for _, name := range p.bannedCalls {
		if p.callPatterns[name].MatchString(code) {
			return fmt.Errorf("%w: call to %q is not allowed", ErrCodeRejected, name)
		}
	}

	if m := dunderRe.FindString(code); m != "" && m != "__name__" && m != "__main__" {
		return fmt.Errorf("%w: dunder access %q is not allowed", ErrCodeRejected, m)
	}

	return nil
}
