package ml

import (
	"context"
	"fmt"
)

// Image is an inline image attached to a prompt
type Image struct {
	MIMEType string
	Data     []byte
}

// Generator is a generative text/vision model
type Generator interface {
	// Load initializes the model with its configuration
	Load(ctx context.Context) error
	// Generate sends one prompt, optionally with an image, and returns the raw text reply
	Generate(ctx context.Context, prompt string, image *Image) (string, error)
	// Close releases the model's resources
	Close() error
}

// GeneratorFactory creates a new generator instance based on configuration
type GeneratorFactory interface {
	CreateGenerator() (Generator, error)
}

// NewGenerator creates a generator of the given type. configPath optionally
// points at a per-model JSON config file.
func NewGenerator(modelType, configPath string) (Generator, error) {
	var factory GeneratorFactory

	switch modelType {
	case "google":
		config := GoogleConfig{
			BaseConfig: BaseConfig{
				ConfigPath: configPath,
			},
		}
		if err := config.Load(); err != nil {
			return nil, fmt.Errorf("failed to load Google config: %w", err)
		}
		factory = NewGoogleModelFactory(config)
	case "local":
		config := LocalConfig{
			BaseConfig: BaseConfig{
				ConfigPath: configPath,
			},
		}
		if err := config.Load(); err != nil {
			return nil, fmt.Errorf("failed to load local config: %w", err)
		}
		factory = NewLocalModelFactory(config)
	default:
		return nil, fmt.Errorf("unsupported model type: %s", modelType)
	}
	return factory.CreateGenerator()
}
