package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SchemaVersion is the version of the canonical analysis schema written to history.
const SchemaVersion = 1

// Persona selects the tone of the prompt sent to the model
type Persona string

const (
	PersonaNutritionist Persona = "nutritionist"
	PersonaParent       Persona = "parent"
)

// NutritionGoal is an optional personal goal used to tailor the analysis
type NutritionGoal string

const (
	GoalLowSugar    NutritionGoal = "low-sugar"
	GoalHighProtein NutritionGoal = "high-protein"
	GoalVegan       NutritionGoal = "vegan"
	GoalNutFree     NutritionGoal = "nut-free"
	GoalDairyFree   NutritionGoal = "dairy-free"
	GoalLowSalt     NutritionGoal = "low-salt"
	GoalLowFat      NutritionGoal = "low-fat"
	GoalGlutenFree  NutritionGoal = "gluten-free"
)

// DietaryPreference is a hard dietary constraint; violating one escalates the verdict
type DietaryPreference string

const (
	PrefVegetarian    DietaryPreference = "vegetarian"
	PrefNonVegetarian DietaryPreference = "non_vegetarian"
	PrefVegan         DietaryPreference = "vegan"
	PrefJain          DietaryPreference = "jain"
	PrefGlutenFree    DietaryPreference = "gluten_free"
	PrefLactoseFree   DietaryPreference = "lactose_free"
	PrefNutFree       DietaryPreference = "nut_free"
	PrefEggFree       DietaryPreference = "egg_free"
)

// AnalysisRequest is one label to analyze for one person
type AnalysisRequest struct {
	Image              []byte              `json:"-"`
	ImageMIME          string              `json:"-"`
	Text               string              `json:"text,omitempty"`
	Age                int                 `json:"age" validate:"required,min=1,max=120"`
	Goals              []NutritionGoal     `json:"goals,omitempty" validate:"dive,oneof=low-sugar high-protein vegan nut-free dairy-free low-salt low-fat gluten-free"`
	DietaryPreferences []DietaryPreference `json:"dietaryPreferences,omitempty" validate:"dive,oneof=vegetarian non_vegetarian vegan jain gluten_free lactose_free nut_free egg_free"`
	Persona            Persona             `json:"persona,omitempty" validate:"omitempty,oneof=nutritionist parent"`
}

// HasImage reports whether the request carries image bytes
func (r *AnalysisRequest) HasImage() bool {
	return len(r.Image) > 0
}

// HasText reports whether the request carries a non-blank ingredient list
func (r *AnalysisRequest) HasText() bool {
	return strings.TrimSpace(r.Text) != ""
}

// HealthImpact classifies a single ingredient
type HealthImpact string

const (
	ImpactPositive HealthImpact = "positive"
	ImpactNeutral  HealthImpact = "neutral"
	ImpactNegative HealthImpact = "negative"
)

// ParseHealthImpact maps free text to an impact, defaulting to neutral
func ParseHealthImpact(s string) HealthImpact {
	switch HealthImpact(strings.ToLower(strings.TrimSpace(s))) {
	case ImpactPositive:
		return ImpactPositive
	case ImpactNegative:
		return ImpactNegative
	default:
		return ImpactNeutral
	}
}

// Ingredient is one identified ingredient
type Ingredient struct {
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	HealthImpact HealthImpact `json:"healthImpact"`
}

// Ingredients holds either an opaque text list or structured items.
// Exactly one form is populated after decoding.
type Ingredients struct {
	Text  string
	Items []Ingredient
}

// IngredientsText returns an Ingredients holding only free text
func IngredientsText(s string) Ingredients {
	return Ingredients{Text: s}
}

// IsStructured reports whether the ingredients were returned as a list
func (in Ingredients) IsStructured() bool {
	return in.Items != nil
}

// String renders the ingredients as a comma separated line
func (in Ingredients) String() string {
	if !in.IsStructured() {
		return in.Text
	}
	names := make([]string, 0, len(in.Items))
	for _, item := range in.Items {
		names = append(names, item.Name)
	}
	return strings.Join(names, ", ")
}

func (in Ingredients) MarshalJSON() ([]byte, error) {
	if in.IsStructured() {
		return json.Marshal(in.Items)
	}
	return json.Marshal(in.Text)
}

func (in *Ingredients) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*in = Ingredients{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		return json.Unmarshal(data, &in.Text)
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		in.Items = make([]Ingredient, 0, len(raw))
		for _, elem := range raw {
			item, err := decodeIngredient(elem)
			if err != nil {
				return err
			}
			in.Items = append(in.Items, item)
		}
		return nil
	default:
		return fmt.Errorf("ingredients must be a string or a list, got %s", data)
	}
}

func decodeIngredient(data json.RawMessage) (Ingredient, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return Ingredient{}, err
		}
		return Ingredient{Name: name, HealthImpact: ImpactNeutral}, nil
	}

	var obj struct {
		Name         string `json:"name"`
		Description  string `json:"description"`
		HealthImpact string `json:"healthImpact"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return Ingredient{}, fmt.Errorf("invalid ingredient %s: %w", data, err)
	}
	return Ingredient{
		Name:         obj.Name,
		Description:  obj.Description,
		HealthImpact: ParseHealthImpact(obj.HealthImpact),
	}, nil
}

// AnalysisResult is the canonical verdict for one label
type AnalysisResult struct {
	OverallHealth   string      `json:"overallHealth"`
	HealthScore     int         `json:"healthScore"` // nominally 0-100, not guaranteed
	AgeAppropriate  bool        `json:"ageAppropriate"`
	Ingredients     Ingredients `json:"ingredients"`
	Pros            []string    `json:"pros"`
	Cons            []string    `json:"cons"`
	DietaryWarnings []string    `json:"dietaryWarnings,omitempty"`
	Recommendations []string    `json:"recommendations"`
	Advice          string      `json:"advice"`
	Verdict         Verdict     `json:"verdict"`
}

// UnmarshalJSON also reads the advice and verdict field names used by
// histories written before the canonical schema.
func (r *AnalysisResult) UnmarshalJSON(data []byte) error {
	type Alias AnalysisResult
	aux := struct {
		*Alias
		MomAdvice  string `json:"momAdvice"`
		MomVerdict string `json:"momVerdict"`
	}{Alias: (*Alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if r.Advice == "" {
		r.Advice = aux.MomAdvice
	}
	if r.Verdict == "" {
		r.Verdict = Verdict(aux.MomVerdict)
	}
	if r.Verdict != "" {
		r.Verdict = ParseVerdict(string(r.Verdict))
	}
	return nil
}

// HistoryEntry is one persisted past analysis
type HistoryEntry struct {
	ID         string          `json:"id"`
	AnalyzedAt time.Time       `json:"analyzedAt"`
	Age        int             `json:"age"`
	Goals      []NutritionGoal `json:"goals,omitempty"`
	Result     AnalysisResult  `json:"analysis"`
}

// Profile is the single age and dietary record of the user
type Profile struct {
	Age                int                 `json:"age"`
	Goals              []NutritionGoal     `json:"goals,omitempty"`
	DietaryPreferences []DietaryPreference `json:"dietaryPreferences,omitempty"`
}

// Valid reports whether the profile has a usable age
func (p Profile) Valid() bool {
	return p.Age >= 1 && p.Age <= 120
}

// Comparison summarizes the difference between two past analyses
type Comparison struct {
	Left           HistoryEntry `json:"left"`
	Right          HistoryEntry `json:"right"`
	ScoreDiff      int          `json:"scoreDiff"`
	VerdictDiffers bool         `json:"verdictDiffers"`
}

// Compare builds a side-by-side comparison of two history entries
func Compare(left, right HistoryEntry) Comparison {
	diff := left.Result.HealthScore - right.Result.HealthScore
	if diff < 0 {
		diff = -diff
	}
	return Comparison{
		Left:           left,
		Right:          right,
		ScoreDiff:      diff,
		VerdictDiffers: ParseVerdict(string(left.Result.Verdict)) != ParseVerdict(string(right.Result.Verdict)),
	}
}
