package config

import (
	"fmt"
	"os"

	"github.com/tidwall/sjson"
)

// SaveTemperatures rewrites only the two temperature keys in the config file at
// path, leaving every other key (including ones this version does not know
// about) untouched. Creates the file if it does not exist.
func SaveTemperatures(path string, t TemperaturesConfig) error {
	if err := validTemperature(t.Conversation); err != nil {
		return err
	}
	if err := validTemperature(t.Focused); err != nil {
		return err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		raw = []byte("{}")
	}

	out, err := sjson.SetBytes(raw, "temperatures.conversation", t.Conversation)
	if err != nil {
		return fmt.Errorf("failed to set conversation temperature: %w", err)
	}
	out, err = sjson.SetBytes(out, "temperatures.focused", t.Focused)
	if err != nil {
		return fmt.Errorf("failed to set focused temperature: %w", err)
	}

	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func validTemperature(v float64) error {
	if v < TemperatureMin || v > TemperatureMax {
		return fmt.Errorf("temperature %.2f out of range [%.1f, %.1f]", v, TemperatureMin, TemperatureMax)
	}
	return nil
}
