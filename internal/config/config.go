package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Duration is a time.Duration written as "30s" in JSON
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\" or a number of seconds")
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(v * float64(time.Second))
	default:
		return fmt.Errorf("duration must be a string like \"30s\" or a number of seconds")
	}
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all application configuration
type Config struct {
	Server struct {
		Port           string   `json:"port" yaml:"port"`
		StaticDir      string   `json:"static_dir" yaml:"static_dir"`
		Debug          bool     `json:"debug" yaml:"debug"`
		RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout"`
		MaxBodyBytes   int64    `json:"max_body_bytes" yaml:"max_body_bytes"`
		// AllowedOrigins enables CORS for a frontend served elsewhere
		AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	} `json:"server" yaml:"server"`

	ML struct {
		Type       string   `json:"type" yaml:"type"` // "local" or "google"
		ConfigPath string   `json:"config_path" yaml:"config_path"`
		Timeout    Duration `json:"timeout" yaml:"timeout"`
		Persona    string   `json:"persona" yaml:"persona"`
	} `json:"ml" yaml:"ml"`

	Client struct {
		ServerURL string `json:"server_url" yaml:"server_url"`
		Transport string `json:"transport" yaml:"transport"` // "http", "ws" or "direct"
		StorePath string `json:"store_path" yaml:"store_path"`
	} `json:"client" yaml:"client"`

	Log struct {
		Level string `json:"level" yaml:"level"`
	} `json:"log" yaml:"log"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	var c Config
	c.Server.Port = "8080"
	c.Server.StaticDir = "./static"
	c.Server.RequestTimeout = Duration(60 * time.Second)
	c.Server.MaxBodyBytes = 20 << 20
	c.ML.Type = "google"
	c.ML.Timeout = Duration(30 * time.Second)
	c.ML.Persona = "nutritionist"
	c.Client.ServerURL = "http://localhost:8080"
	c.Client.Transport = "http"
	c.Client.StorePath = "labelverdict.db"
	c.Log.Level = "info"
	return &c
}

// LoadConfig loads configuration from a JSON or YAML file (by extension) on
// top of the defaults, then applies environment overrides. A missing file is
// not an error.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := decode(configPath, data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func decode(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	default:
		return json.Unmarshal(data, config)
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		c.Server.StaticDir = v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DEBUG value %q: %w", v, err)
		}
		c.Server.Debug = debug
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("AI_MODEL_TYPE"); v != "" {
		c.ML.Type = v
	}
	if v := os.Getenv("AI_CONFIG"); v != "" {
		c.ML.ConfigPath = v
	}
	if v := os.Getenv("AI_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid AI_TIMEOUT value %q: %w", v, err)
		}
		c.ML.Timeout = Duration(d)
	}
	if v := os.Getenv("AI_PERSONA"); v != "" {
		c.ML.Persona = v
	}
	if v := os.Getenv("LABELVERDICT_SERVER_URL"); v != "" {
		c.Client.ServerURL = v
	}
	if v := os.Getenv("LABELVERDICT_TRANSPORT"); v != "" {
		c.Client.Transport = v
	}
	if v := os.Getenv("LABELVERDICT_STORE"); v != "" {
		c.Client.StorePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate rejects configurations the binaries cannot start with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Port) == "" {
		return fmt.Errorf("server port is not set")
	}
	switch c.ML.Type {
	case "google", "local":
	default:
		return fmt.Errorf("unknown ml type %q", c.ML.Type)
	}
	switch c.ML.Persona {
	case "", "nutritionist", "parent":
	default:
		return fmt.Errorf("unknown persona %q", c.ML.Persona)
	}
	switch c.Client.Transport {
	case "http", "ws", "direct":
	default:
		return fmt.Errorf("unknown client transport %q", c.Client.Transport)
	}
	if c.ML.Timeout <= 0 {
		return fmt.Errorf("ml timeout must be positive")
	}
	return nil
}

// GetConfigPath returns the path to the configuration file
func GetConfigPath() string {
	// First try environment variable
	if path := os.Getenv("LABELVERDICT_CONFIG"); path != "" {
		return path
	}

	// Then try config directory
	configDir := "config"
	if _, err := os.Stat(configDir); err == nil {
		return filepath.Join(configDir, "config.json")
	}

	// Finally, try current directory
	return "config.json"
}
