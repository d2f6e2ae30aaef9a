package providers

import (
	"fmt"
	"os"
	"strings"
)

type ProviderSpec struct {
	Name           string
	EnvKey         string // environment variable for API key
	DefaultAPIBase string // default base URL
	IsLocal        bool   // local inference, no API key required
	IsAnthropic    bool   // uses the Anthropic SDK instead of OpenAI-compat
}

// Specs is the registry of known LLM providers. Ollama comes first because it
// is the default backend.
var Specs = []ProviderSpec{
	{Name: "ollama", DefaultAPIBase: "http://localhost:11434/v1", IsLocal: true},
	{Name: "openai", EnvKey: "OPENAI_API_KEY"},
	{Name: "openrouter", EnvKey: "OPENROUTER_API_KEY", DefaultAPIBase: "https://openrouter.ai/api/v1"},
	{Name: "anthropic", EnvKey: "ANTHROPIC_API_KEY", IsAnthropic: true},
	{Name: "custom"},
}

// FindByName returns the spec with the given name, or nil.
func FindByName(name string) *ProviderSpec {
	lower := strings.ToLower(strings.TrimSpace(name))
	for i := range Specs {
		if Specs[i].Name == lower {
			return &Specs[i]
		}
	}
	return nil
}

// New builds a Provider for the named spec. The API key falls back to the
// spec's environment variable; local providers need none.
func New(name, apiKey, baseURL, defaultModel string) (Provider, error) {
	spec := FindByName(name)
	if spec == nil {
		return nil, fmt.Errorf("unknown provider %q", name)
	}

	if apiKey == "" && spec.EnvKey != "" {
		apiKey = os.Getenv(spec.EnvKey)
	}
	if apiKey == "" && !spec.IsLocal && spec.Name != "custom" {
		return nil, fmt.Errorf("provider %q requires an API key (set %s or provider.apiKey)", name, spec.EnvKey)
	}

	if spec.IsAnthropic {
		return NewAnthropicProvider(apiKey), nil
	}

	base := baseURL
	if base == "" {
		base = spec.DefaultAPIBase
	}
	return NewOpenAICompatProvider(apiKey, base, defaultModel), nil
}
