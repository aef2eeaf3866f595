package models

// UsageStats are cumulative counters feeding the achievement system
type UsageStats struct {
	ScanCount             int `json:"scanCount"`
	HealthyCount          int `json:"healthyCount"` // take_it verdicts
	IngredientDetailViews int `json:"ingredientClicks"`
}

// StatField names one counter in UsageStats
type StatField string

const (
	StatScans             StatField = "scanCount"
	StatHealthy           StatField = "healthyCount"
	StatIngredientDetails StatField = "ingredientClicks"
)

// Increment bumps the named counter; unknown fields are ignored
func (s *UsageStats) Increment(field StatField) {
	switch field {
	case StatScans:
		s.ScanCount++
	case StatHealthy:
		s.HealthyCount++
	case StatIngredientDetails:
		s.IngredientDetailViews++
	}
}

// Achievement is a badge unlocked once its threshold holds
type Achievement struct {
	ID          string
	Title       string
	Description string
	Unlocked    func(UsageStats) bool
}

// Achievements is the fixed badge catalogue
var Achievements = []Achievement{
	{
		ID:          "first_step",
		Title:       "First Step",
		Description: "Complete your first product scan",
		Unlocked:    func(s UsageStats) bool { return s.ScanCount >= 1 },
	},
	{
		ID:          "health_nut",
		Title:       "Health Nut",
		Description: `Find 5 "Recommended" products`,
		Unlocked:    func(s UsageStats) bool { return s.HealthyCount >= 5 },
	},
	{
		ID:          "detective",
		Title:       "Detective",
		Description: "Complete 10 scans",
		Unlocked:    func(s UsageStats) bool { return s.ScanCount >= 10 },
	},
	{
		ID:          "ingredient_expert",
		Title:       "Ingredient Expert",
		Description: "Explore 5 ingredient details",
		Unlocked:    func(s UsageStats) bool { return s.IngredientDetailViews >= 5 },
	},
	{
		ID:          "super_scanner",
		Title:       "Super Scanner",
		Description: "Complete 50 scans",
		Unlocked:    func(s UsageStats) bool { return s.ScanCount >= 50 },
	},
}

// UnlockedAchievements returns the IDs of every achievement satisfied by stats,
// in catalogue order. Every predicate is a lower bound on a counter, so the
// result only grows as stats grow.
func UnlockedAchievements(stats UsageStats) []string {
	unlocked := []string{}
	for _, a := range Achievements {
		if a.Unlocked(stats) {
			unlocked = append(unlocked, a.ID)
		}
	}
	return unlocked
}
