package ml

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
)

const defaultGoogleModel = "gemini-2.5-flash-lite"

// GoogleConfig holds configuration for the Google model
type GoogleConfig struct {
	BaseConfig
	ProjectID       string  `json:"project_id"`
	Location        string  `json:"location"`
	CredentialsFile string  `json:"credentials_file"`
	ModelName       string  `json:"model_name"`
	Temperature     float32 `json:"temperature"`
}

// Load loads the Google configuration
func (c *GoogleConfig) Load() error {
	if err := c.LoadConfig(c.ConfigPath, "google", c); err != nil {
		return err
	}

	// Fall back to environment variables if not set
	if c.ProjectID == "" {
		c.ProjectID = os.Getenv("GOOGLE_PROJECT_ID")
	}
	if c.Location == "" {
		c.Location = envOr("GOOGLE_LOCATION", "us-central1")
	}
	if c.CredentialsFile == "" {
		c.CredentialsFile = os.Getenv("GOOGLE_CREDENTIALS_FILE")
	}
	if c.ModelName == "" {
		c.ModelName = envOr("GEMINI_MODEL", defaultGoogleModel)
	}
	if c.Temperature == 0 {
		if v, err := strconv.ParseFloat(os.Getenv("GEMINI_TEMPERATURE"), 32); err == nil {
			c.Temperature = float32(v)
		}
	}

	if c.ProjectID == "" {
		return fmt.Errorf("google project id is not set")
	}
	return nil
}

// GoogleModel implements Generator for Gemini on Vertex AI
type GoogleModel struct {
	config GoogleConfig
	client *genai.Client
	model  *genai.GenerativeModel
}

// GoogleModelFactory implements GeneratorFactory for Google models
type GoogleModelFactory struct {
	config GoogleConfig
}

// NewGoogleModelFactory creates a new Google model factory
func NewGoogleModelFactory(config GoogleConfig) *GoogleModelFactory {
	return &GoogleModelFactory{config: config}
}

// CreateGenerator creates a new Google model instance
func (f *GoogleModelFactory) CreateGenerator() (Generator, error) {
	return &GoogleModel{
		config: f.config,
	}, nil
}

// Load initializes the Vertex AI client
func (m *GoogleModel) Load(ctx context.Context) error {
	opts := []option.ClientOption{}

	if m.config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(m.config.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, m.config.ProjectID, m.config.Location, opts...)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	m.client = client
	m.model = client.GenerativeModel(m.config.ModelName)
	if m.config.Temperature > 0 {
		m.model.SetTemperature(m.config.Temperature)
	}
	return nil
}

// Generate sends the prompt, with the image first when present, and joins the
// text parts of the first candidate.
func (m *GoogleModel) Generate(ctx context.Context, prompt string, image *Image) (string, error) {
	if m.model == nil {
		return "", fmt.Errorf("model not loaded")
	}

	parts := make([]genai.Part, 0, 2)
	if image != nil {
		parts = append(parts, genai.Blob{MIMEType: image.MIMEType, Data: image.Data})
	}
	parts = append(parts, genai.Text(prompt))

	resp, err := m.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to call ai: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no response generated")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text in response")
	}
	return sb.String(), nil
}

// Close closes the Vertex AI client
func (m *GoogleModel) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}
