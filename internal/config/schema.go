package config

// Config is the top-level configuration
type Config struct {
	Provider     ProviderConfig     `json:"provider"`
	Temperatures TemperaturesConfig `json:"temperatures"`
	Workspace    string             `json:"workspace"`
	SessionsDir  string             `json:"sessionsDir"`
	Tools        ToolsConfig        `json:"tools"`
	Security     SecurityConfig     `json:"security"`
}

// ProviderConfig holds LLM provider settings. The default targets a local
// Ollama server, which needs no API key.
type ProviderConfig struct {
	Name              string `json:"name"`
	APIKey            string `json:"apiKey"`
	BaseURL           string `json:"baseUrl"`
	Model             string `json:"model"`
	MaxTokens         int    `json:"maxTokens"`
	MaxToolIterations int    `json:"maxToolIterations"`
}

// TemperaturesConfig holds the two sampling temperatures: one for plain
// conversation, one for tool-result summarization and code generation.
type TemperaturesConfig struct {
	Conversation float64 `json:"conversation"`
	Focused      float64 `json:"focused"`
}

type ToolsConfig struct {
	Enabled  []string     `json:"enabled"`
	Disabled []string     `json:"disabled"`
	Search   SearchConfig `json:"search"`
}

type SearchConfig struct {
	APIKey string `json:"apiKey"`
}

// SecurityConfig constrains tool execution.
type SecurityConfig struct {
	AllowedDirs        []string `json:"allowedDirs"`
	PythonBin          string   `json:"pythonBin"`
	ExecTimeoutSeconds int      `json:"execTimeoutSeconds"`
	MaxOutputBytes     int      `json:"maxOutputBytes"`
}

// TemperatureMin and TemperatureMax bound user-adjustable temperatures.
const (
	TemperatureMin = 0.1
	TemperatureMax = 1.0
)

// DefaultConfig returns a Config with sensible defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:              "ollama",
			Model:             "phi3:mini",
			MaxTokens:         4096,
			MaxToolIterations: 10,
		},
		Temperatures: TemperaturesConfig{
			Conversation: 0.7,
			Focused:      0.2,
		},
		Workspace:   "~/.chatty/workspace",
		SessionsDir: "~/.chatty/sessions",
		Security: SecurityConfig{
			PythonBin:          "python3",
			ExecTimeoutSeconds: 30,
			MaxOutputBytes:     64 * 1024,
		},
	}
}
