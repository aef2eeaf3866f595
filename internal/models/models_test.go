package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		input    string
		expected Verdict
	}{
		{"take_it", VerdictTakeIt},
		{"AVOID_IT", VerdictAvoidIt},
		{"think-twice", VerdictThinkTwice},
		{" take it ", VerdictTakeIt},
		{"", VerdictThinkTwice},
		{"maybe", VerdictThinkTwice},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, ParseVerdict(test.input), "input %q", test.input)
	}
}

func TestVerdictMetaFallsBackToThinkTwice(t *testing.T) {
	assert.Equal(t, VerdictThinkTwice.Meta(), Verdict("bogus").Meta())
	assert.Equal(t, TonePositive, VerdictTakeIt.Meta().Tone)
	assert.Equal(t, ToneNegative, VerdictAvoidIt.Meta().Tone)

	for _, v := range Verdicts {
		assert.NotEmpty(t, v.Meta().Label)
	}
}

func TestScoreBandToleratesOutOfRange(t *testing.T) {
	assert.Equal(t, ToneNegative, ScoreBand(-20))
	assert.Equal(t, ToneNegative, ScoreBand(39))
	assert.Equal(t, ToneCaution, ScoreBand(40))
	assert.Equal(t, TonePositive, ScoreBand(70))
	assert.Equal(t, TonePositive, ScoreBand(250))
	assert.Equal(t, 100, ClampScore(250))
	assert.Equal(t, 0, ClampScore(-1))
}

func TestIngredientsAcceptsEveryForm(t *testing.T) {
	var text Ingredients
	require.NoError(t, json.Unmarshal([]byte(`"sugar, cocoa butter, milk"`), &text))
	assert.False(t, text.IsStructured())
	assert.Equal(t, "sugar, cocoa butter, milk", text.String())

	var names Ingredients
	require.NoError(t, json.Unmarshal([]byte(`["sugar", "salt"]`), &names))
	require.Len(t, names.Items, 2)
	assert.Equal(t, ImpactNeutral, names.Items[0].HealthImpact)
	assert.Equal(t, "sugar, salt", names.String())

	var structured Ingredients
	require.NoError(t, json.Unmarshal([]byte(`[{"name":"oats","description":"whole grain","healthImpact":"Positive"},{"name":"E621","healthImpact":"awful"}]`), &structured))
	require.Len(t, structured.Items, 2)
	assert.Equal(t, ImpactPositive, structured.Items[0].HealthImpact)
	assert.Equal(t, ImpactNeutral, structured.Items[1].HealthImpact)

	var bad Ingredients
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))
}

func TestHistoryEntryRoundTrip(t *testing.T) {
	entries := []HistoryEntry{
		{
			ID:         "a",
			AnalyzedAt: time.Date(2025, 3, 1, 10, 0, 0, 123, time.UTC),
			Age:        8,
			Goals:      []NutritionGoal{GoalLowSugar},
			Result: AnalysisResult{
				OverallHealth:   "Mostly sugar.",
				HealthScore:     22,
				Ingredients:     IngredientsText("sugar, flour"),
				Pros:            []string{"tasty"},
				Cons:            []string{"sugar first"},
				Recommendations: []string{"eat rarely"},
				Advice:          "Skip it.",
				Verdict:         VerdictAvoidIt,
			},
		},
		{
			ID:         "b",
			AnalyzedAt: time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC),
			Age:        35,
			Result: AnalysisResult{
				OverallHealth:   "Fine.",
				HealthScore:     80,
				Ingredients:     Ingredients{Items: []Ingredient{{Name: "oats", HealthImpact: ImpactPositive}}},
				DietaryWarnings: []string{"Contains Egg"},
				Verdict:         VerdictTakeIt,
			},
		},
	}

	for _, entry := range entries {
		data, err := json.Marshal(entry)
		require.NoError(t, err)

		var decoded HistoryEntry
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, entry, decoded)
	}
}

func TestUnlockedAchievements(t *testing.T) {
	assert.Empty(t, UnlockedAchievements(UsageStats{}))
	assert.Equal(t, []string{"first_step"}, UnlockedAchievements(UsageStats{ScanCount: 1}))
	assert.Equal(t,
		[]string{"first_step", "health_nut", "detective", "ingredient_expert", "super_scanner"},
		UnlockedAchievements(UsageStats{ScanCount: 50, HealthyCount: 5, IngredientDetailViews: 5}),
	)
}

func TestUnlockedAchievementsIsMonotonic(t *testing.T) {
	values := []int{0, 1, 4, 5, 9, 10, 49, 50, 51}
	var all []UsageStats
	for _, scans := range values {
		for _, healthy := range values {
			for _, views := range values {
				all = append(all, UsageStats{ScanCount: scans, HealthyCount: healthy, IngredientDetailViews: views})
			}
		}
	}

	for _, a := range all {
		for _, b := range all {
			if b.ScanCount < a.ScanCount || b.HealthyCount < a.HealthyCount || b.IngredientDetailViews < a.IngredientDetailViews {
				continue
			}
			lower := UnlockedAchievements(a)
			upper := UnlockedAchievements(b)
			for _, id := range lower {
				if !assert.Contains(t, upper, id, "stats %+v vs %+v", a, b) {
					return
				}
			}
		}
	}
}

func TestCompare(t *testing.T) {
	left := HistoryEntry{Result: AnalysisResult{HealthScore: 30, Verdict: VerdictAvoidIt}}
	right := HistoryEntry{Result: AnalysisResult{HealthScore: 75, Verdict: VerdictTakeIt}}

	cmp := Compare(left, right)
	assert.Equal(t, 45, cmp.ScoreDiff)
	assert.True(t, cmp.VerdictDiffers)

	same := Compare(left, HistoryEntry{Result: AnalysisResult{HealthScore: 30, Verdict: "AVOID_IT"}})
	assert.Zero(t, same.ScoreDiff)
	assert.False(t, same.VerdictDiffers)
}

func TestErrorCodesRoundTrip(t *testing.T) {
	for _, base := range []error{ErrValidation, ErrUpstream, ErrFormat} {
		code := ErrorCode(base)
		rebuilt := ErrorFromCode(code, "boom")
		assert.True(t, errors.Is(rebuilt, base), "code %s", code)
	}
	assert.Equal(t, CodeUpstream, ErrorCode(errors.New("network down")))
}
