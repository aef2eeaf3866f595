package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/franckalain/labelverdict/internal/database"
	"github.com/franckalain/labelverdict/internal/models"
	"github.com/franckalain/labelverdict/internal/storage"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Analyze(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*models.AnalysisResult)
	return result, args.Error(1)
}

var analyzedAt = time.Date(2025, 3, 14, 9, 30, 0, 0, time.FixedZone("CET", 3600))

func sugaryResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		OverallHealth:   "Very sugary",
		HealthScore:     28,
		Ingredients:     models.IngredientsText("sugar, cocoa, egg"),
		Pros:            []string{},
		Cons:            []string{"High sugar"},
		DietaryWarnings: []string{"Contains Egg"},
		Recommendations: []string{},
		Advice:          "Keep it as a rare treat.",
		Verdict:         models.VerdictTakeIt,
	}
}

func newTestOrchestrator(t *testing.T, backend Backend, profile *models.Profile) (*Orchestrator, *storage.Local) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	local := storage.NewLocal(database.NewMemoryDB(), log)
	if profile != nil {
		require.NoError(t, local.SaveProfile(context.Background(), *profile))
	}

	var mu sync.Mutex
	n := 0
	ids := func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}

	o := New(context.Background(), backend, local,
		WithLogger(log),
		WithClock(func() time.Time { return analyzedAt }),
		WithIDGenerator(ids),
		WithProgress(WithTicks(newManualTicks().source), WithResetDelay(0)),
	)
	return o, local
}

func TestNewStartsFromStoredProfile(t *testing.T) {
	o, _ := newTestOrchestrator(t, &MockBackend{}, nil)
	assert.Equal(t, StateProfile, o.State())

	o, _ = newTestOrchestrator(t, &MockBackend{}, &models.Profile{Age: 8, Goals: []models.NutritionGoal{models.GoalLowSugar}})
	snap := o.Snapshot()
	assert.Equal(t, StateCapture, snap.State)
	assert.Equal(t, 8, snap.Profile.Age)
	assert.Equal(t, []models.NutritionGoal{models.GoalLowSugar}, snap.Profile.Goals)
}

func TestAnalyzeRequiresProfile(t *testing.T) {
	backend := &MockBackend{}
	o, _ := newTestOrchestrator(t, backend, nil)

	_, err := o.Analyze(context.Background(), Input{Image: pngHeader})
	assert.ErrorIs(t, err, ErrProfileRequired)
	assert.Equal(t, StateProfile, o.State())
	backend.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestSubmitProfileRejectsInvalidAge(t *testing.T) {
	o, local := newTestOrchestrator(t, &MockBackend{}, nil)

	for _, age := range []int{0, -3, 121} {
		err := o.SubmitProfile(context.Background(), models.Profile{Age: age})
		assert.ErrorIs(t, err, models.ErrValidation)
	}
	assert.Equal(t, StateProfile, o.State())
	_, ok := local.Profile(context.Background())
	assert.False(t, ok)
}

func TestAnalyzeInvalidInputStaysInCapture(t *testing.T) {
	backend := &MockBackend{}
	o, _ := newTestOrchestrator(t, backend, &models.Profile{Age: 30})

	_, err := o.Analyze(context.Background(), Input{})
	assert.ErrorIs(t, err, models.ErrValidation)

	snap := o.Snapshot()
	assert.Equal(t, StateCapture, snap.State)
	assert.ErrorIs(t, snap.Err, models.ErrValidation)
	assert.False(t, snap.Loading)
	backend.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestAnalyzeSuccessRecordsHistoryAndStats(t *testing.T) {
	ctx := context.Background()
	backend := &MockBackend{}
	backend.On("Analyze", mock.Anything, mock.MatchedBy(func(req *models.AnalysisRequest) bool {
		return req.Age == 8 && req.HasImage() && !req.HasText() &&
			len(req.DietaryPreferences) == 1 && req.DietaryPreferences[0] == models.PrefVegetarian
	})).Return(sugaryResult(), nil).Once()

	o, local := newTestOrchestrator(t, backend, &models.Profile{
		Age:                8,
		DietaryPreferences: []models.DietaryPreference{models.PrefVegetarian},
	})

	result, err := o.Analyze(ctx, Input{Image: pngHeader})
	require.NoError(t, err)
	// The verdict is shown as returned even when it contradicts the warnings.
	assert.Equal(t, models.VerdictTakeIt, result.Verdict)
	assert.Equal(t, []string{"Contains Egg"}, result.DietaryWarnings)

	snap := o.Snapshot()
	assert.Equal(t, StateResult, snap.State)
	assert.Equal(t, 8, snap.ResultAge)
	assert.False(t, snap.Loading)
	assert.NoError(t, snap.Err)

	history := local.History(ctx)
	require.Len(t, history, 1)
	assert.Equal(t, "id-1", history[0].ID)
	assert.Equal(t, analyzedAt.UTC(), history[0].AnalyzedAt)
	assert.Equal(t, time.UTC, history[0].AnalyzedAt.Location())
	assert.Equal(t, 8, history[0].Age)
	assert.Equal(t, *sugaryResult(), history[0].Result)

	assert.Equal(t, models.UsageStats{ScanCount: 1, HealthyCount: 1}, local.Stats(ctx))
	assert.Equal(t, []string{"first_step"}, o.Achievements(ctx))
	backend.AssertExpectations(t)
}

func TestAnalyzeOnlyCountsTakeItAsHealthy(t *testing.T) {
	ctx := context.Background()
	result := sugaryResult()
	result.Verdict = models.VerdictAvoidIt

	backend := &MockBackend{}
	backend.On("Analyze", mock.Anything, mock.Anything).Return(result, nil)
	o, local := newTestOrchestrator(t, backend, &models.Profile{Age: 30})

	_, err := o.Analyze(ctx, Input{Text: "sugar, palm oil"})
	require.NoError(t, err)
	assert.Equal(t, models.UsageStats{ScanCount: 1}, local.Stats(ctx))
}

func TestAnalyzeFailurePersistsNothing(t *testing.T) {
	ctx := context.Background()
	backend := &MockBackend{}
	backend.On("Analyze", mock.Anything, mock.Anything).Return(nil, models.NewUpstreamError(errors.New("boom"))).Once()
	o, local := newTestOrchestrator(t, backend, &models.Profile{Age: 30})

	_, err := o.Analyze(ctx, Input{Image: pngHeader})
	assert.ErrorIs(t, err, models.ErrUpstream)

	snap := o.Snapshot()
	assert.Equal(t, StateCapture, snap.State)
	assert.ErrorIs(t, snap.Err, models.ErrUpstream)
	assert.Nil(t, snap.Result)
	assert.False(t, snap.Loading)
	assert.Empty(t, local.History(ctx))
	assert.Equal(t, models.UsageStats{}, local.Stats(ctx))
}

func TestAnalyzeRejectsSecondSubmissionWhileBusy(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	backend := &MockBackend{}
	backend.On("Analyze", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(sugaryResult(), nil).Once()
	o, local := newTestOrchestrator(t, backend, &models.Profile{Age: 30})

	done := make(chan error, 1)
	go func() {
		_, err := o.Analyze(ctx, Input{Image: pngHeader})
		done <- err
	}()
	require.Eventually(t, func() bool { return o.Snapshot().Loading }, time.Second, 5*time.Millisecond)

	_, err := o.Analyze(ctx, Input{Image: pngHeader})
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, o.EditProfile(), ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, local.History(ctx), 1)
	backend.AssertNumberOfCalls(t, "Analyze", 1)
}

func TestProgressEndsAtDoneThenZero(t *testing.T) {
	backend := &MockBackend{}
	backend.On("Analyze", mock.Anything, mock.Anything).Return(sugaryResult(), nil)
	o, _ := newTestOrchestrator(t, backend, &models.Profile{Age: 30})

	var mu sync.Mutex
	var seen []float64
	o.Subscribe(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 || seen[len(seen)-1] != s.Progress {
			seen = append(seen, s.Progress)
		}
	})

	_, err := o.Analyze(context.Background(), Input{Image: pngHeader})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float64{0, 8, 100, 0}, seen)
}

func TestThirteenthAnalysisEvictsFirst(t *testing.T) {
	ctx := context.Background()
	backend := &MockBackend{}
	backend.On("Analyze", mock.Anything, mock.Anything).Return(sugaryResult(), nil)
	o, local := newTestOrchestrator(t, backend, &models.Profile{Age: 30})

	for i := 0; i < 13; i++ {
		_, err := o.Analyze(ctx, Input{Text: "water"})
		require.NoError(t, err)
		require.NoError(t, o.AnalyzeAnother())
	}

	history := local.History(ctx)
	require.Len(t, history, storage.HistoryLimit)
	assert.Equal(t, "id-13", history[0].ID)
	assert.Equal(t, "id-2", history[len(history)-1].ID)
	assert.Equal(t, 13, local.Stats(ctx).ScanCount)
}

func TestSelectHistoryShowsResultWithoutBackend(t *testing.T) {
	ctx := context.Background()
	backend := &MockBackend{}
	o, local := newTestOrchestrator(t, backend, &models.Profile{Age: 30})

	past := models.HistoryEntry{ID: "past", AnalyzedAt: analyzedAt.UTC(), Age: 5, Result: *sugaryResult()}
	_, err := local.AppendHistory(ctx, past)
	require.NoError(t, err)

	_, err = o.SelectHistory(ctx, "missing")
	assert.ErrorIs(t, err, ErrHistoryNotFound)

	entry, err := o.SelectHistory(ctx, "past")
	require.NoError(t, err)
	assert.Equal(t, past, entry)

	snap := o.Snapshot()
	assert.Equal(t, StateResult, snap.State)
	assert.Equal(t, 5, snap.ResultAge)
	assert.Equal(t, 5, snap.Profile.Age)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 28, snap.Result.HealthScore)

	stored, ok := local.Profile(ctx)
	require.True(t, ok)
	assert.Equal(t, 5, stored.Age)
	backend.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestEditProfileAndCancel(t *testing.T) {
	ctx := context.Background()
	backend := &MockBackend{}
	backend.On("Analyze", mock.Anything, mock.Anything).Return(sugaryResult(), nil)
	o, _ := newTestOrchestrator(t, backend, &models.Profile{Age: 30})

	assert.ErrorIs(t, o.CancelEdit(), ErrInvalidTransition)

	require.NoError(t, o.EditProfile())
	assert.Equal(t, StateProfile, o.State())
	assert.True(t, o.Snapshot().Editing)
	require.NoError(t, o.CancelEdit())
	assert.Equal(t, StateCapture, o.State())

	_, err := o.Analyze(ctx, Input{Image: pngHeader})
	require.NoError(t, err)
	require.NoError(t, o.EditProfile())
	require.NoError(t, o.CancelEdit())
	assert.Equal(t, StateResult, o.State())

	require.NoError(t, o.EditProfile())
	require.NoError(t, o.SubmitProfile(ctx, models.Profile{Age: 45}))
	snap := o.Snapshot()
	assert.Equal(t, StateCapture, snap.State)
	assert.Nil(t, snap.Result)
	assert.Equal(t, 45, snap.Profile.Age)
	assert.False(t, snap.Editing)
}

func TestAnalyzeAnotherOnlyFromResult(t *testing.T) {
	o, _ := newTestOrchestrator(t, &MockBackend{}, &models.Profile{Age: 30})
	assert.ErrorIs(t, o.AnalyzeAnother(), ErrInvalidTransition)
}

func TestDeleteClearAndCompareHistory(t *testing.T) {
	ctx := context.Background()
	o, local := newTestOrchestrator(t, &MockBackend{}, &models.Profile{Age: 30})

	better := *sugaryResult()
	better.HealthScore = 70
	better.Verdict = models.VerdictThinkTwice
	_, err := local.AppendHistory(ctx, models.HistoryEntry{ID: "a", Age: 30, Result: *sugaryResult()})
	require.NoError(t, err)
	_, err = local.AppendHistory(ctx, models.HistoryEntry{ID: "b", Age: 30, Result: better})
	require.NoError(t, err)

	cmp, err := o.Compare(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 42, cmp.ScoreDiff)
	assert.True(t, cmp.VerdictDiffers)

	_, err = o.Compare(ctx, "a", "zzz")
	assert.ErrorIs(t, err, ErrHistoryNotFound)

	require.NoError(t, o.DeleteHistory(ctx, "a"))
	assert.ErrorIs(t, o.DeleteHistory(ctx, "a"), ErrHistoryNotFound)
	assert.Len(t, o.History(ctx), 1)

	require.NoError(t, o.ClearHistory(ctx))
	assert.Empty(t, o.History(ctx))
}

func TestIngredientDetailViewsUnlockAchievement(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t, &MockBackend{}, &models.Profile{Age: 30})

	var stats models.UsageStats
	for i := 0; i < 5; i++ {
		stats = o.ViewIngredientDetail(ctx)
	}
	assert.Equal(t, 5, stats.IngredientDetailViews)
	assert.Contains(t, o.Achievements(ctx), "ingredient_expert")
}
