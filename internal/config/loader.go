package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Dir returns the chatty config directory (~/.chatty).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatty"
	}
	return filepath.Join(home, ".chatty")
}

// Path returns the default config file path.
func Path() string {
	return filepath.Join(Dir(), "config.json")
}

// Load loads config from the default path (~/.chatty/config.json). A missing
// file is not an error: defaults apply until the user onboards.
func Load() (*Config, error) {
	cfg, err := LoadFromFile(Path())
	if errors.Is(err, fs.ErrNotExist) {
		cfg = DefaultConfig()
		applyEnvOverrides(cfg)
		expandPaths(cfg)
		return cfg, nil
	}
	return cfg, err
}

// LoadFromFile loads config from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader loads config from an io.Reader, applying defaults and env overrides.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	if err := json.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	expandPaths(cfg)

	return cfg, nil
}

// applyEnvOverrides applies CHATTY_-prefixed environment variable overrides.
// TAVILY_API_KEY is honored directly because the search library documents it.
func applyEnvOverrides(cfg *Config) {
	envMap := map[string]*string{
		"CHATTY_PROVIDER_APIKEY":  &cfg.Provider.APIKey,
		"CHATTY_PROVIDER_BASEURL": &cfg.Provider.BaseURL,
		"CHATTY_MODEL":            &cfg.Provider.Model,
		"CHATTY_WORKSPACE":        &cfg.Workspace,
		"CHATTY_SEARCH_APIKEY":    &cfg.Tools.Search.APIKey,
		"TAVILY_API_KEY":          &cfg.Tools.Search.APIKey,
	}

	for env, ptr := range envMap {
		if val := os.Getenv(env); val != "" {
			*ptr = val
		}
	}
}

// expandPaths expands a leading ~ in workspace and sessions paths.
func expandPaths(cfg *Config) {
	cfg.Workspace = expandHome(cfg.Workspace)
	cfg.SessionsDir = expandHome(cfg.SessionsDir)
	for i, d := range cfg.Security.AllowedDirs {
		cfg.Security.AllowedDirs[i] = expandHome(d)
	}
}

func expandHome(p string) string {
	if len(p) >= 2 && p[0] == '~' && p[1] == '/' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
