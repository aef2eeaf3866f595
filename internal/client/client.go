// Package client implements analyzer backends that call a remote labelverdict
// server over HTTP or WebSocket.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/franckalain/labelverdict/internal/ml"
	"github.com/franckalain/labelverdict/internal/models"
)

// requestBody is the wire form of an analysis request
type requestBody struct {
	Image              string                     `json:"image,omitempty"`
	Text               string                     `json:"text,omitempty"`
	Age                int                        `json:"age"`
	Goals              []models.NutritionGoal     `json:"goals,omitempty"`
	DietaryPreferences []models.DietaryPreference `json:"dietaryPreferences,omitempty"`
	Persona            models.Persona             `json:"persona,omitempty"`
}

func newRequestBody(req *models.AnalysisRequest) requestBody {
	body := requestBody{
		Text:               req.Text,
		Age:                req.Age,
		Goals:              req.Goals,
		DietaryPreferences: req.DietaryPreferences,
		Persona:            req.Persona,
	}
	if req.HasImage() {
		body.Image = base64.StdEncoding.EncodeToString(req.Image)
		// Undetectable payloads go without a prefix for the server to reject.
		if mime, err := ml.ImageMIME(req.Image, req.ImageMIME); err == nil {
			body.Image = "data:" + mime + ";base64," + body.Image
		}
	}
	return body
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPBackend posts analyses to POST /api/analyze
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend targets the server at baseURL. A nil client uses a client
// whose timeout leaves room for the server's own model timeout.
func NewHTTPBackend(baseURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	return &HTTPBackend{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (b *HTTPBackend) Analyze(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error) {
	payload, err := json.Marshal(newRequestBody(req))
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/analyze", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, models.NewUpstreamError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewUpstreamError(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp.StatusCode, data)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, models.NewFormatError("server returned an unreadable analysis: " + err.Error())
	}
	return &result, nil
}

// decodeError rebuilds the classified error carried by a non-200 response
func decodeError(status int, data []byte) error {
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = fmt.Sprintf("server responded %d", status)
	}
	if body.Code == "" {
		if status >= 400 && status < 500 {
			body.Code = models.CodeValidation
		} else {
			body.Code = models.CodeUpstream
		}
	}
	return models.ErrorFromCode(body.Code, body.Error)
}

// ErrClosed is returned by a WSBackend after Close
var ErrClosed = errors.New("connection closed")
