package ml

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// LocalConfig holds configuration for the local model
type LocalConfig struct {
	BaseConfig
	// ReplyPath is a file whose content is returned verbatim for every prompt
	ReplyPath string `json:"reply_path"`
}

// Load loads the local configuration
func (c *LocalConfig) Load() error {
	if err := c.LoadConfig(c.ConfigPath, "local", c); err != nil {
		return err
	}

	if c.ReplyPath == "" {
		c.ReplyPath = os.Getenv("LOCAL_REPLY_PATH")
	}
	return nil
}

// LocalModel is an offline Generator that replays a canned reply. It is used
// for development without cloud credentials.
type LocalModel struct {
	config LocalConfig
	reply  string
}

// LocalModelFactory implements GeneratorFactory for local models
type LocalModelFactory struct {
	config LocalConfig
}

// NewLocalModelFactory creates a new local model factory
func NewLocalModelFactory(config LocalConfig) *LocalModelFactory {
	return &LocalModelFactory{config: config}
}

// CreateGenerator creates a new local model instance
func (f *LocalModelFactory) CreateGenerator() (Generator, error) {
	return &LocalModel{
		config: f.config,
	}, nil
}

// NewLocalModel returns a loaded local model that always answers reply
func NewLocalModel(reply string) *LocalModel {
	return &LocalModel{reply: reply}
}

// Load reads the reply file
func (m *LocalModel) Load(ctx context.Context) error {
	if m.config.ReplyPath == "" {
		if m.reply == "" {
			return fmt.Errorf("local model has no reply configured")
		}
		return nil
	}

	data, err := os.ReadFile(m.config.ReplyPath)
	if err != nil {
		return fmt.Errorf("failed to read reply file: %w", err)
	}
	m.reply = string(data)
	return nil
}

// Generate returns the canned reply
func (m *LocalModel) Generate(ctx context.Context, prompt string, image *Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(m.reply) == "" {
		return "", fmt.Errorf("local model not loaded")
	}
	return m.reply, nil
}

// Close is a no-op
func (m *LocalModel) Close() error {
	return nil
}
