package ml

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/franckalain/labelverdict/internal/models"
)

// DefaultTimeout bounds a single model call
const DefaultTimeout = 30 * time.Second

var validate = validator.New()

// Gateway turns an AnalysisRequest into exactly one model call and a parsed
// result. It holds no per-request state.
type Gateway struct {
	gen     Generator
	timeout time.Duration
	log     *slog.Logger
}

// NewGateway wraps gen. A non-positive timeout selects DefaultTimeout.
func NewGateway(gen Generator, timeout time.Duration, log *slog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{gen: gen, timeout: timeout, log: log}
}

// Validate checks req without calling the model
func Validate(req *models.AnalysisRequest) error {
	if req == nil {
		return models.NewValidationError("request is empty")
	}
	if req.HasImage() == req.HasText() {
		if req.HasImage() {
			return models.NewValidationError("provide either an image or ingredient text, not both")
		}
		return models.NewValidationError("Image and age are required")
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return models.NewValidationError("invalid " + strings.Join(fields, ", "))
		}
		return models.NewValidationError(err.Error())
	}
	return nil
}

// Analyze validates req, calls the model once and parses its reply.
// Errors wrap models.ErrValidation, models.ErrUpstream or models.ErrFormat.
func (g *Gateway) Analyze(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error) {
	if err := Validate(req); err != nil {
		g.log.Info("Rejected analysis request", "error", err)
		return nil, err
	}

	var image *Image
	if req.HasImage() {
		mime, err := ImageMIME(req.Image, req.ImageMIME)
		if err != nil {
			g.log.Info("Rejected analysis request", "error", err)
			return nil, err
		}
		image = &Image{MIMEType: mime, Data: req.Image}
	}

	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	g.log.Info("Analyzing product", "age", req.Age, "image", image != nil, "persona", req.Persona)
	text, err := g.gen.Generate(ctx, prompt, image)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", g.timeout, err)
		}
		g.log.Error("AI call failed", "error", err, "elapsed", time.Since(started))
		return nil, models.NewUpstreamError(err)
	}

	result, err := ParseAnalysis(text)
	if err != nil {
		g.log.Warn("AI reply could not be parsed", "error", err, "reply", truncate(text, 500))
		return nil, err
	}

	g.log.Info("Analysis complete", "score", result.HealthScore, "verdict", result.Verdict, "elapsed", time.Since(started))
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
