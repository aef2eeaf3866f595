package ml

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/franckalain/labelverdict/internal/models"
)

// ExtractJSON returns the text from the first '{' to the last '}' of a model
// reply. Models wrap their JSON in prose or markdown fences often enough that
// the reply itself can't be decoded directly.
func ExtractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", models.NewFormatError("no JSON object in reply")
	}
	return text[start : end+1], nil
}

// rawAnalysis accepts every field name used by past prompt revisions
type rawAnalysis struct {
	OverallHealth   *string            `json:"overallHealth"`
	HealthScore     json.RawMessage    `json:"healthScore"`
	AgeAppropriate  json.RawMessage    `json:"ageAppropriate"`
	Ingredients     models.Ingredients `json:"ingredients"`
	Pros            []string           `json:"pros"`
	Cons            []string           `json:"cons"`
	DietaryWarnings []string           `json:"dietaryWarnings"`
	Warnings        []string           `json:"warnings"`
	Recommendations []string           `json:"recommendations"`
	Advice          string             `json:"advice"`
	MomAdvice       string             `json:"momAdvice"`
	ExpertAdvice    string             `json:"expertAdvice"`
	Verdict         string             `json:"verdict"`
	MomVerdict      string             `json:"momVerdict"`
	ExpertVerdict   string             `json:"expertVerdict"`
}

// ParseAnalysis extracts and normalizes an AnalysisResult from a model reply.
// Every failure is an ErrFormat.
func ParseAnalysis(text string) (*models.AnalysisResult, error) {
	payload, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, models.NewFormatError(err.Error())
	}

	if raw.OverallHealth == nil {
		return nil, models.NewFormatError("missing required field 'overallHealth'")
	}
	score, err := parseScore(raw.HealthScore)
	if err != nil {
		return nil, err
	}
	ageAppropriate, err := parseBool(raw.AgeAppropriate)
	if err != nil {
		return nil, err
	}

	return &models.AnalysisResult{
		OverallHealth:   *raw.OverallHealth,
		HealthScore:     score,
		AgeAppropriate:  ageAppropriate,
		Ingredients:     raw.Ingredients,
		Pros:            raw.Pros,
		Cons:            raw.Cons,
		DietaryWarnings: firstNonEmpty(raw.DietaryWarnings, raw.Warnings),
		Recommendations: raw.Recommendations,
		Advice:          firstNonBlank(raw.Advice, raw.MomAdvice, raw.ExpertAdvice),
		Verdict:         models.ParseVerdict(firstNonBlank(raw.Verdict, raw.MomVerdict, raw.ExpertVerdict)),
	}, nil
}

func parseScore(data json.RawMessage) (int, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, models.NewFormatError("missing required field 'healthScore'")
	}

	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		var s string
		if json.Unmarshal(data, &s) != nil {
			return 0, models.NewFormatError("healthScore is not a number")
		}
		parsed, perr := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%")), 64)
		if perr != nil {
			return 0, models.NewFormatError("healthScore is not a number: " + s)
		}
		n = parsed
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, models.NewFormatError("healthScore is not finite")
	}
	return int(math.Round(n)), nil
}

func parseBool(data json.RawMessage) (bool, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return false, nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return parsed, nil
		}
	}
	return false, models.NewFormatError("ageAppropriate is not a boolean")
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}
