package models

import "strings"

// Verdict is the three-way recommendation attached to an analysis
type Verdict string

const (
	VerdictTakeIt     Verdict = "take_it"
	VerdictAvoidIt    Verdict = "avoid_it"
	VerdictThinkTwice Verdict = "think_twice"
)

// Verdicts lists every verdict in display order
var Verdicts = []Verdict{VerdictTakeIt, VerdictThinkTwice, VerdictAvoidIt}

// ParseVerdict normalizes a model-provided verdict. Missing or unrecognized
// values fall back to think_twice.
func ParseVerdict(s string) Verdict {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	switch Verdict(s) {
	case VerdictTakeIt, VerdictAvoidIt, VerdictThinkTwice:
		return Verdict(s)
	default:
		return VerdictThinkTwice
	}
}

// Tone is the color family used when rendering a verdict or score
type Tone string

const (
	TonePositive Tone = "positive"
	ToneCaution  Tone = "caution"
	ToneNegative Tone = "negative"
)

// VerdictMeta is everything a renderer needs to present a verdict
type VerdictMeta struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Tone        Tone   `json:"tone"`
	Icon        string `json:"icon"`
}

var verdictMeta = map[Verdict]VerdictMeta{
	VerdictTakeIt: {
		Label:       "Recommended",
		Description: "Enjoy this product mindfully and keep portions balanced.",
		Tone:        TonePositive,
		Icon:        "heart",
	},
	VerdictAvoidIt: {
		Label:       "Not Recommended",
		Description: "Consider a healthier alternative.",
		Tone:        ToneNegative,
		Icon:        "ban",
	},
	VerdictThinkTwice: {
		Label:       "Consider with Caution",
		Description: "Consume occasionally and with balanced portions.",
		Tone:        ToneCaution,
		Icon:        "alert-triangle",
	},
}

// Meta returns the presentation row for v; unknown verdicts use think_twice
func (v Verdict) Meta() VerdictMeta {
	if meta, ok := verdictMeta[v]; ok {
		return meta
	}
	return verdictMeta[VerdictThinkTwice]
}

// ClampScore bounds a health score to [0,100] for rendering
func ClampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

// ScoreBand buckets a health score into the same tones used for verdicts
func ScoreBand(score int) Tone {
	score = ClampScore(score)
	switch {
	case score >= 70:
		return TonePositive
	case score >= 40:
		return ToneCaution
	default:
		return ToneNegative
	}
}
