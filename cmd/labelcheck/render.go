package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/franckalain/labelverdict/internal/analyzer"
	"github.com/franckalain/labelverdict/internal/models"
)

// print writes v as JSON with --json, otherwise runs the text renderer
func (a *app) print(cmd *cobra.Command, v any, text func()) error {
	if !a.jsonOutput {
		text()
		return nil
	}
	enc := json.NewEncoder(a.out(cmd))
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var toneMarks = map[models.Tone]string{
	models.TonePositive: "+",
	models.ToneCaution:  "~",
	models.ToneNegative: "-",
}

func renderProfile(w io.Writer, p models.Profile) {
	fmt.Fprintf(w, "Age:         %d\n", p.Age)
	fmt.Fprintf(w, "Goals:       %s\n", joinOrNone(p.Goals))
	fmt.Fprintf(w, "Preferences: %s\n", joinOrNone(p.DietaryPreferences))
}

func renderResult(w io.Writer, r *models.AnalysisResult, age int) {
	meta := r.Verdict.Meta()
	score := models.ClampScore(r.HealthScore)

	fmt.Fprintf(w, "[%s] %s\n", toneMarks[meta.Tone], meta.Label)
	fmt.Fprintf(w, "    %s\n\n", meta.Description)
	fmt.Fprintf(w, "Health score: %d/100 (%s)\n", score, models.ScoreBand(score))
	fmt.Fprintf(w, "Overall:      %s\n", r.OverallHealth)
	appropriate := "no"
	if r.AgeAppropriate {
		appropriate = "yes"
	}
	fmt.Fprintf(w, "Suitable for age %d: %s\n", age, appropriate)

	if len(r.DietaryWarnings) > 0 {
		fmt.Fprintln(w)
		for _, warning := range r.DietaryWarnings {
			fmt.Fprintf(w, "! %s\n", warning)
		}
	}

	fmt.Fprintln(w)
	renderIngredients(w, r.Ingredients)
	renderList(w, "Pros", r.Pros)
	renderList(w, "Cons", r.Cons)
	renderList(w, "Recommendations", r.Recommendations)

	if r.Advice != "" {
		fmt.Fprintf(w, "\nAdvice: %s\n", r.Advice)
	}
}

func renderIngredients(w io.Writer, in models.Ingredients) {
	if !in.IsStructured() {
		fmt.Fprintf(w, "Ingredients: %s\n", in.Text)
		return
	}
	fmt.Fprintln(w, "Ingredients:")
	for i, item := range in.Items {
		fmt.Fprintf(w, "  %2d. [%s] %s\n", i+1, impactMark(item.HealthImpact), item.Name)
	}
}

func renderIngredientDetail(w io.Writer, item models.Ingredient) {
	fmt.Fprintf(w, "%s (%s)\n", item.Name, item.HealthImpact)
	if item.Description != "" {
		fmt.Fprintln(w, item.Description)
	}
}

func impactMark(impact models.HealthImpact) string {
	switch impact {
	case models.ImpactPositive:
		return "+"
	case models.ImpactNegative:
		return "-"
	default:
		return " "
	}
}

func renderList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(w, "  - %s\n", item)
	}
}

func renderHistory(w io.Writer, history []models.HistoryEntry) {
	if len(history) == 0 {
		fmt.Fprintln(w, "No analyses yet")
		return
	}
	for _, e := range history {
		meta := e.Result.Verdict.Meta()
		fmt.Fprintf(w, "%s  %s  age %-3d %3d/100  %-22s %s\n",
			e.ID, e.AnalyzedAt.Local().Format("2006-01-02 15:04"), e.Age,
			models.ClampScore(e.Result.HealthScore), meta.Label, truncate(e.Result.OverallHealth, 40))
	}
}

func renderComparison(w io.Writer, c models.Comparison) {
	row := func(label, left, right string) {
		fmt.Fprintf(w, "%-14s %-30s %-30s\n", label, truncate(left, 30), truncate(right, 30))
	}
	row("", c.Left.ID, c.Right.ID)
	row("Verdict", c.Left.Result.Verdict.Meta().Label, c.Right.Result.Verdict.Meta().Label)
	row("Score", fmt.Sprint(models.ClampScore(c.Left.Result.HealthScore)), fmt.Sprint(models.ClampScore(c.Right.Result.HealthScore)))
	row("Overall", c.Left.Result.OverallHealth, c.Right.Result.OverallHealth)
	row("Age", fmt.Sprint(c.Left.Age), fmt.Sprint(c.Right.Age))
	fmt.Fprintf(w, "\nScore difference: %d\n", c.ScoreDiff)
	if c.VerdictDiffers {
		fmt.Fprintln(w, "The verdicts differ.")
	}
}

func renderAchievements(w io.Writer, stats models.UsageStats, unlocked []string) {
	fmt.Fprintf(w, "Scans: %d  Recommended: %d  Ingredient details: %d\n\n",
		stats.ScanCount, stats.HealthyCount, stats.IngredientDetailViews)

	done := make(map[string]bool, len(unlocked))
	for _, id := range unlocked {
		done[id] = true
	}
	for _, a := range models.Achievements {
		mark := " "
		if done[a.ID] {
			mark = "x"
		}
		fmt.Fprintf(w, "[%s] %-18s %s\n", mark, a.Title, a.Description)
	}
}

// progressBar redraws a single terminal line while an analysis runs
type progressBar struct {
	mu   sync.Mutex
	w    io.Writer
	last int
}

func newProgressBar(w io.Writer) *progressBar {
	return &progressBar{w: w, last: -1}
}

func (b *progressBar) update(s analyzer.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pct := int(s.Progress)
	if pct == b.last {
		return
	}
	b.last = pct
	if pct == 0 {
		fmt.Fprint(b.w, "\r\033[K")
		return
	}
	const width = 30
	filled := pct * width / 100
	fmt.Fprintf(b.w, "\rAnalyzing [%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat(".", width-filled), pct)
}

func joinOrNone[T ~string](values []T) string {
	if len(values) == 0 {
		return "none"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
