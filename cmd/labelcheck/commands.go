package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/franckalain/labelverdict/internal/analyzer"
	"github.com/franckalain/labelverdict/internal/models"
)

func newProfileCmd(a *app) *cobra.Command {
	var age int
	var goals, prefs []string

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update your age, goals and dietary preferences",
		Long: `Show the stored profile, or update it when any flag is given.

Example: labelcheck profile --age 8 --goals low-sugar --prefs vegetarian,egg_free`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o := a.orchestrator(ctx, nil)
			current := o.Snapshot().Profile

			flags := cmd.Flags()
			if !flags.Changed("age") && !flags.Changed("goals") && !flags.Changed("prefs") {
				if !current.Valid() {
					return fmt.Errorf("no profile yet, set one with --age")
				}
				return a.print(cmd, current, func() { renderProfile(a.out(cmd), current) })
			}

			next := current
			if flags.Changed("age") {
				next.Age = age
			}
			if flags.Changed("goals") {
				next.Goals = toGoals(goals)
			}
			if flags.Changed("prefs") {
				next.DietaryPreferences = toPrefs(prefs)
			}
			if err := o.SubmitProfile(ctx, next); err != nil {
				return err
			}
			return a.print(cmd, next, func() { renderProfile(a.out(cmd), next) })
		},
	}

	cmd.Flags().IntVar(&age, "age", 0, "your age (1-120)")
	cmd.Flags().StringSliceVar(&goals, "goals", nil, "nutrition goals, e.g. low-sugar,high-protein")
	cmd.Flags().StringSliceVar(&prefs, "prefs", nil, "dietary preferences, e.g. vegetarian,nut_free")
	return cmd
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var imagePath, text string
	var age int

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a label photo or a typed ingredient list",
		Long: `Analyze one product for the stored profile and record it in history.

Example: labelcheck analyze --image label.jpg
         labelcheck analyze --text "oats, honey, salt" --age 35`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var in analyzer.Input
			if imagePath != "" {
				data, err := os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("failed to read image: %w", err)
				}
				in.Image = data
			}
			in.Text = text

			backend, release, err := a.backend(ctx)
			if err != nil {
				return err
			}
			defer release()

			o := a.orchestrator(ctx, backend)
			if age > 0 {
				profile := o.Snapshot().Profile
				profile.Age = age
				if err := o.SubmitProfile(ctx, profile); err != nil {
					return err
				}
			}
			if !a.jsonOutput {
				bar := newProgressBar(cmd.ErrOrStderr())
				o.Subscribe(bar.update)
			}

			result, err := o.Analyze(ctx, in)
			if err != nil {
				if a.jsonOutput {
					return err
				}
				return fmt.Errorf("%s (%w)", models.UserMessage(err), err)
			}
			snap := o.Snapshot()
			return a.print(cmd, result, func() { renderResult(a.out(cmd), result, snap.ResultAge) })
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "path to a photo of the ingredient label")
	cmd.Flags().StringVar(&text, "text", "", "ingredient list typed by hand")
	cmd.Flags().IntVar(&age, "age", 0, "set the age before analyzing")
	cmd.MarkFlagsMutuallyExclusive("image", "text")
	cmd.MarkFlagsOneRequired("image", "text")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history := a.orchestrator(cmd.Context(), nil).History(cmd.Context())
			return a.print(cmd, history, func() { renderHistory(a.out(cmd), history) })
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show [id]",
			Short: "Show a past analysis and make its age current",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				entry, err := a.orchestrator(cmd.Context(), nil).SelectHistory(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.print(cmd, entry, func() {
					renderResult(a.out(cmd), &entry.Result, entry.Age)
				})
			},
		},
		&cobra.Command{
			Use:   "delete [id]",
			Short: "Delete one past analysis",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.orchestrator(cmd.Context(), nil).DeleteHistory(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(a.out(cmd), "Deleted", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete every past analysis",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.orchestrator(cmd.Context(), nil).ClearHistory(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(a.out(cmd), "History cleared")
				return nil
			},
		},
		&cobra.Command{
			Use:   "compare [id] [id]",
			Short: "Compare two past analyses side by side",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				cmp, err := a.orchestrator(cmd.Context(), nil).Compare(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return a.print(cmd, cmp, func() { renderComparison(a.out(cmd), cmp) })
			},
		},
	)
	return cmd
}

func newIngredientsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingredients [id] [n]",
		Short: "List the ingredients of a past analysis, or open the detail of ingredient n",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o := a.orchestrator(ctx, nil)

			var entry *models.HistoryEntry
			history := o.History(ctx)
			for i := range history {
				if history[i].ID == args[0] {
					entry = &history[i]
					break
				}
			}
			if entry == nil {
				return analyzer.ErrHistoryNotFound
			}
			ingredients := entry.Result.Ingredients

			if len(args) == 1 {
				return a.print(cmd, ingredients, func() { renderIngredients(a.out(cmd), ingredients) })
			}

			if !ingredients.IsStructured() {
				return fmt.Errorf("this analysis only has an ingredient summary: %s", ingredients.Text)
			}
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 || n > len(ingredients.Items) {
				return fmt.Errorf("ingredient must be between 1 and %d", len(ingredients.Items))
			}
			item := ingredients.Items[n-1]
			o.ViewIngredientDetail(ctx)
			return a.print(cmd, item, func() { renderIngredientDetail(a.out(cmd), item) })
		},
	}
}

func newAchievementsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "achievements",
		Short: "Show usage counters and unlocked achievements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			stats := a.store.Stats(ctx)
			unlocked := a.orchestrator(ctx, nil).Achievements(ctx)

			payload := struct {
				Stats    models.UsageStats `json:"stats"`
				Unlocked []string          `json:"unlocked"`
			}{stats, unlocked}
			return a.print(cmd, payload, func() { renderAchievements(a.out(cmd), stats, unlocked) })
		},
	}
}

func toGoals(values []string) []models.NutritionGoal {
	goals := make([]models.NutritionGoal, 0, len(values))
	for _, v := range values {
		goals = append(goals, models.NutritionGoal(v))
	}
	return goals
}

func toPrefs(values []string) []models.DietaryPreference {
	prefs := make([]models.DietaryPreference, 0, len(values))
	for _, v := range values {
		prefs = append(prefs, models.DietaryPreference(v))
	}
	return prefs
}
