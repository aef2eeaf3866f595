package ml

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// BaseConfig provides common configuration functionality
type BaseConfig struct {
	ConfigPath string `json:"-"`
}

// LoadConfig loads configuration from a file, falling back to environment variables.
// It returns an error only when an explicitly given file exists but is malformed.
func (c *BaseConfig) LoadConfig(configPath string, envPrefix string, config any) error {
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return fmt.Errorf("failed to parse %s: %w", configPath, err)
			}
			slog.Info("Loaded model configuration", "path", configPath)
			return nil
		}
		slog.Warn("Model configuration file not readable", "path", configPath, "error", err)
	}

	defaultPath := filepath.Join("config", fmt.Sprintf("%s.json", envPrefix))
	if data, err := os.ReadFile(defaultPath); err == nil {
		if err := json.Unmarshal(data, config); err == nil {
			slog.Info("Loaded model configuration from default file", "path", defaultPath)
			return nil
		}
	}

	slog.Info("Using environment variables for model configuration", "model", envPrefix)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
