// Package analyzer drives the profile → capture → result workflow of a single
// user session and records each completed analysis.
package analyzer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/franckalain/labelverdict/internal/ml"
	"github.com/franckalain/labelverdict/internal/models"
	"github.com/franckalain/labelverdict/internal/storage"
)

// State is a step of the workflow
type State string

const (
	StateProfile State = "profile"
	StateCapture State = "capture"
	StateResult  State = "result"
)

var (
	ErrBusy              = errors.New("an analysis is already in progress")
	ErrProfileRequired   = errors.New("please set your age before analyzing a product")
	ErrInvalidTransition = errors.New("action not available in the current step")
	ErrHistoryNotFound   = errors.New("history entry not found")
)

// Backend performs one analysis. ml.Gateway and the client backends implement it.
type Backend interface {
	Analyze(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error)
}

// Input is what the user captured: an image or typed ingredients
type Input struct {
	Image     []byte
	ImageMIME string
	Text      string
}

// Snapshot is a consistent view of the workflow for rendering
type Snapshot struct {
	State     State
	Editing   bool
	Profile   models.Profile
	Result    *models.AnalysisResult
	ResultAge int
	Loading   bool
	Progress  float64
	Err       error
}

// Orchestrator owns the workflow state. It allows one analysis in flight at a time.
type Orchestrator struct {
	backend Backend
	store   *storage.Local
	log     *slog.Logger
	now     func() time.Time
	newID   func() string
	persona models.Persona

	progress     *Progress
	progressOpts []ProgressOption

	mu        sync.Mutex
	state     State
	editing   bool
	profile   models.Profile
	result    *models.AnalysisResult
	resultAge int
	busy      bool
	pct       float64
	err       error
	listeners []func(Snapshot)
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

func WithPersona(p models.Persona) Option {
	return func(o *Orchestrator) { o.persona = p }
}

func WithProgress(opts ...ProgressOption) Option {
	return func(o *Orchestrator) { o.progressOpts = append(o.progressOpts, opts...) }
}

// New restores the stored profile. The workflow starts in the capture step
// when an age is stored and in the profile step otherwise.
func New(ctx context.Context, backend Backend, store *storage.Local, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend: backend,
		store:   store,
		log:     slog.Default(),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
		state:   StateProfile,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.progress = NewProgress(o.onProgress, o.progressOpts...)

	if profile, ok := store.Profile(ctx); ok {
		o.profile = profile
		o.state = StateCapture
	}
	return o
}

// Subscribe registers fn to receive every state change
func (o *Orchestrator) Subscribe(fn func(Snapshot)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// Snapshot returns the current view
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// State returns the current step
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	return Snapshot{
		State:     o.state,
		Editing:   o.editing,
		Profile:   o.profile,
		Result:    o.result,
		ResultAge: o.resultAge,
		Loading:   o.busy,
		Progress:  o.pct,
		Err:       o.err,
	}
}

// unlockAndNotify releases o.mu and publishes the snapshot taken under it
func (o *Orchestrator) unlockAndNotify() {
	snap := o.snapshotLocked()
	listeners := append([]func(Snapshot){}, o.listeners...)
	o.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

func (o *Orchestrator) onProgress(v float64) {
	o.mu.Lock()
	o.pct = v
	o.unlockAndNotify()
}

// SubmitProfile stores the profile and moves to the capture step
func (o *Orchestrator) SubmitProfile(ctx context.Context, p models.Profile) error {
	if !p.Valid() {
		return models.NewValidationError("age must be between 1 and 120")
	}

	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return ErrBusy
	}
	o.mu.Unlock()

	if err := o.store.SaveProfile(ctx, p); err != nil {
		o.log.Warn("Failed to persist profile", "error", err)
	}

	o.mu.Lock()
	o.profile = p
	o.editing = false
	o.result = nil
	o.resultAge = 0
	o.err = nil
	o.state = StateCapture
	o.unlockAndNotify()
	return nil
}

// EditProfile reopens the profile step from capture or result
func (o *Orchestrator) EditProfile() error {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return ErrBusy
	}
	if o.state == StateProfile {
		o.mu.Unlock()
		return nil
	}
	o.editing = true
	o.state = StateProfile
	o.unlockAndNotify()
	return nil
}

// CancelEdit leaves the profile step without saving, returning to the result
// if one is shown, else to capture when a profile exists.
func (o *Orchestrator) CancelEdit() error {
	o.mu.Lock()
	if !o.editing {
		o.mu.Unlock()
		return ErrInvalidTransition
	}
	o.editing = false
	switch {
	case o.result != nil:
		o.state = StateResult
	case o.profile.Valid():
		o.state = StateCapture
	default:
		o.state = StateProfile
	}
	o.unlockAndNotify()
	return nil
}

// Analyze sends the captured input for analysis. On success the result is
// recorded in history and stats and the workflow moves to the result step.
// On failure the workflow stays in capture and nothing is persisted.
func (o *Orchestrator) Analyze(ctx context.Context, in Input) (*models.AnalysisResult, error) {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	if !o.profile.Valid() {
		o.state = StateProfile
		o.unlockAndNotify()
		return nil, ErrProfileRequired
	}
	if o.state != StateCapture {
		o.mu.Unlock()
		return nil, ErrInvalidTransition
	}

	req := &models.AnalysisRequest{
		Image:              in.Image,
		ImageMIME:          in.ImageMIME,
		Text:               in.Text,
		Age:                o.profile.Age,
		Goals:              o.profile.Goals,
		DietaryPreferences: o.profile.DietaryPreferences,
		Persona:            o.persona,
	}
	if err := ml.Validate(req); err != nil {
		o.err = err
		o.unlockAndNotify()
		return nil, err
	}

	o.busy = true
	o.err = nil
	o.unlockAndNotify()

	o.progress.Start()
	result, err := o.backend.Analyze(ctx, req)
	o.progress.Finish()

	if err != nil {
		o.log.Error("Analysis failed", "error", err, "code", models.ErrorCode(err))
		o.mu.Lock()
		o.busy = false
		o.err = err
		o.unlockAndNotify()
		return nil, err
	}

	o.record(context.WithoutCancel(ctx), req, result)

	o.mu.Lock()
	o.busy = false
	o.result = result
	o.resultAge = req.Age
	o.state = StateResult
	o.unlockAndNotify()
	return result, nil
}

func (o *Orchestrator) record(ctx context.Context, req *models.AnalysisRequest, result *models.AnalysisResult) {
	entry := models.HistoryEntry{
		ID:         o.newID(),
		AnalyzedAt: o.now().UTC(),
		Age:        req.Age,
		Goals:      req.Goals,
		Result:     *result,
	}
	if _, err := o.store.AppendHistory(ctx, entry); err != nil {
		o.log.Warn("Failed to record history", "error", err)
	}

	fields := []models.StatField{models.StatScans}
	if result.Verdict == models.VerdictTakeIt {
		fields = append(fields, models.StatHealthy)
	}
	if _, err := o.store.IncrementStats(ctx, fields...); err != nil {
		o.log.Warn("Failed to update stats", "error", err)
	}
}

// AnalyzeAnother returns from the result step to capture
func (o *Orchestrator) AnalyzeAnother() error {
	o.mu.Lock()
	if o.state != StateResult {
		o.mu.Unlock()
		return ErrInvalidTransition
	}
	o.result = nil
	o.resultAge = 0
	o.state = StateCapture
	o.unlockAndNotify()
	return nil
}

// SelectHistory shows a past analysis without calling the backend. The
// entry's age becomes the current age.
func (o *Orchestrator) SelectHistory(ctx context.Context, id string) (models.HistoryEntry, error) {
	o.mu.Lock()
	busy := o.busy
	o.mu.Unlock()
	if busy {
		return models.HistoryEntry{}, ErrBusy
	}

	entry, ok := o.store.HistoryEntry(ctx, id)
	if !ok {
		return models.HistoryEntry{}, ErrHistoryNotFound
	}
	if err := o.store.SaveAge(ctx, entry.Age); err != nil {
		o.log.Warn("Failed to persist age", "error", err)
	}

	result := entry.Result
	o.mu.Lock()
	o.profile.Age = entry.Age
	o.result = &result
	o.resultAge = entry.Age
	o.editing = false
	o.err = nil
	o.state = StateResult
	o.unlockAndNotify()
	return entry, nil
}

// History returns stored analyses, newest first
func (o *Orchestrator) History(ctx context.Context) []models.HistoryEntry {
	return o.store.History(ctx)
}

// DeleteHistory removes one stored analysis
func (o *Orchestrator) DeleteHistory(ctx context.Context, id string) error {
	deleted, err := o.store.DeleteHistory(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrHistoryNotFound
	}
	return nil
}

// ClearHistory removes every stored analysis
func (o *Orchestrator) ClearHistory(ctx context.Context) error {
	return o.store.ClearHistory(ctx)
}

// Compare compares two stored analyses
func (o *Orchestrator) Compare(ctx context.Context, leftID, rightID string) (models.Comparison, error) {
	left, ok := o.store.HistoryEntry(ctx, leftID)
	if !ok {
		return models.Comparison{}, ErrHistoryNotFound
	}
	right, ok := o.store.HistoryEntry(ctx, rightID)
	if !ok {
		return models.Comparison{}, ErrHistoryNotFound
	}
	return models.Compare(left, right), nil
}

// ViewIngredientDetail counts one opened ingredient detail
func (o *Orchestrator) ViewIngredientDetail(ctx context.Context) models.UsageStats {
	stats, err := o.store.IncrementStats(ctx, models.StatIngredientDetails)
	if err != nil {
		o.log.Warn("Failed to update stats", "error", err)
	}
	return stats
}

// Achievements returns the unlocked achievement IDs
func (o *Orchestrator) Achievements(ctx context.Context) []string {
	return o.store.Achievements(ctx)
}
