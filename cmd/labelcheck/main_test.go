package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franckalain/labelverdict/internal/models"
)

const cannedReply = "```json\n" + `{
  "overallHealth": "Wholesome breakfast cereal",
  "healthScore": 82,
  "ageAppropriate": true,
  "ingredients": [
    {"name": "Rolled oats", "description": "Whole grain rich in fiber", "healthImpact": "positive"},
    {"name": "Honey", "description": "Added sugar", "healthImpact": "negative"}
  ],
  "pros": ["High fiber"],
  "cons": ["Some added sugar"],
  "recommendations": ["Pair with fruit"],
  "advice": "A solid everyday choice.",
  "verdict": "take_it"
}` + "\n```"

type cliEnv struct {
	config string
	store  string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()

	reply := filepath.Join(dir, "reply.json")
	require.NoError(t, os.WriteFile(reply, []byte(cannedReply), 0o600))
	t.Setenv("LOCAL_REPLY_PATH", reply)
	t.Setenv("LOG_LEVEL", "error")

	cfg := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfg, []byte(`{"ml": {"type": "local"}, "client": {"transport": "direct"}}`), 0o600))

	return cliEnv{config: cfg, store: filepath.Join(dir, "store.db")}
}

func (e cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{}
	root := newRootCmd(a)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", e.config, "--store", e.store}, args...))

	err := root.ExecuteContext(context.Background())
	a.close()
	return out.String(), err
}

func TestAnalyzeRecordsHistoryAndAchievements(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "analyze", "--text", "oats, honey")
	require.Error(t, err, "analysis without a profile must fail")

	out, err := env.run(t, "profile", "--age", "8", "--prefs", "vegetarian")
	require.NoError(t, err)
	assert.Contains(t, out, "vegetarian")

	out, err = env.run(t, "analyze", "--text", "oats, honey")
	require.NoError(t, err)
	assert.Contains(t, out, "Recommended")
	assert.Contains(t, out, "Health score: 82/100")
	assert.Contains(t, out, "Rolled oats")

	out, err = env.run(t, "--json", "history")
	require.NoError(t, err)
	var history []models.HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	require.Len(t, history, 1)
	assert.Equal(t, 8, history[0].Age)
	assert.Equal(t, models.VerdictTakeIt, history[0].Result.Verdict)

	out, err = env.run(t, "ingredients", history[0].ID, "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Added sugar")

	out, err = env.run(t, "--json", "achievements")
	require.NoError(t, err)
	var achievements struct {
		Stats    models.UsageStats `json:"stats"`
		Unlocked []string          `json:"unlocked"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &achievements))
	assert.Equal(t, models.UsageStats{ScanCount: 1, HealthyCount: 1, IngredientDetailViews: 1}, achievements.Stats)
	assert.Equal(t, []string{"first_step"}, achievements.Unlocked)
}

func TestHistoryCommands(t *testing.T) {
	env := newCLIEnv(t)

	for i := 0; i < 2; i++ {
		_, err := env.run(t, "analyze", "--text", "oats, honey", "--age", "30")
		require.NoError(t, err)
	}

	out, err := env.run(t, "--json", "history")
	require.NoError(t, err)
	var history []models.HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	require.Len(t, history, 2)

	out, err = env.run(t, "history", "compare", history[0].ID, history[1].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Score difference: 0")

	out, err = env.run(t, "history", "show", history[1].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Suitable for age 30: yes")

	_, err = env.run(t, "history", "delete", history[0].ID)
	require.NoError(t, err)
	_, err = env.run(t, "history", "delete", history[0].ID)
	assert.Error(t, err)

	_, err = env.run(t, "history", "clear")
	require.NoError(t, err)
	out, err = env.run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No analyses yet")
}

func TestAnalyzeRequiresExactlyOneInput(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "analyze", "--age", "30")
	assert.Error(t, err)
	_, err = env.run(t, "analyze", "--age", "30", "--text", "oats", "--image", "label.jpg")
	assert.Error(t, err)
}
