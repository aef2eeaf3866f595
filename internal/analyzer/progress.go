package analyzer

import (
	"math/rand"
	"sync"
	"time"
)

const (
	progressStart      = 8.0
	progressCap        = 95.0
	progressDone       = 100.0
	progressInterval   = 350 * time.Millisecond
	progressResetDelay = 400 * time.Millisecond
)

// TickSource returns a tick channel and a function releasing it
type TickSource func() (<-chan time.Time, func())

// IntervalTicks is the wall-clock TickSource
func IntervalTicks(d time.Duration) TickSource {
	return func() (<-chan time.Time, func()) {
		t := time.NewTicker(d)
		return t.C, t.Stop
	}
}

// Progress simulates progress for a call that reports none. While running,
// every tick adds a small random increment, never passing progressCap.
// Finish snaps to 100 and later back to 0.
//
// onChange runs with the progress lock held and must not call back into
// the Progress.
type Progress struct {
	mu         sync.Mutex
	value      float64
	running    bool
	generation int
	stop       chan struct{}

	ticks      TickSource
	increment  func() float64
	resetDelay time.Duration
	onChange   func(float64)
}

// ProgressOption configures a Progress
type ProgressOption func(*Progress)

// WithTicks replaces the wall-clock ticker
func WithTicks(ticks TickSource) ProgressOption {
	return func(p *Progress) { p.ticks = ticks }
}

// WithIncrement replaces the random per-tick increment
func WithIncrement(fn func() float64) ProgressOption {
	return func(p *Progress) { p.increment = fn }
}

// WithResetDelay sets how long 100% is shown before resetting to 0.
// Zero resets immediately.
func WithResetDelay(d time.Duration) ProgressOption {
	return func(p *Progress) { p.resetDelay = d }
}

func NewProgress(onChange func(float64), opts ...ProgressOption) *Progress {
	p := &Progress{
		ticks:      IntervalTicks(progressInterval),
		increment:  func() float64 { return 1 + rand.Float64()*9 },
		resetDelay: progressResetDelay,
		onChange:   onChange,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.onChange == nil {
		p.onChange = func(float64) {}
	}
	return p
}

// Value returns the current progress percentage
func (p *Progress) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Start begins a new simulated run
func (p *Progress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		close(p.stop)
	}
	p.running = true
	p.generation++
	p.stop = make(chan struct{})
	p.set(progressStart)

	ticks, release := p.ticks()
	go p.run(p.stop, ticks, release)
}

func (p *Progress) run(stop <-chan struct{}, ticks <-chan time.Time, release func()) {
	defer release()
	for {
		select {
		case <-stop:
			return
		case <-ticks:
			p.Advance()
		}
	}
}

// Advance applies one tick. It does nothing unless a run is in progress.
func (p *Progress) Advance() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running || p.value >= progressCap {
		return
	}
	next := p.value + p.increment()
	if next > progressCap {
		next = progressCap
	}
	if next > p.value {
		p.set(next)
	}
}

// Finish ends the run: the value snaps to 100, then resets to 0
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		close(p.stop)
		p.running = false
	}
	p.set(progressDone)

	if p.resetDelay <= 0 {
		p.set(0)
		return
	}
	generation := p.generation
	time.AfterFunc(p.resetDelay, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.generation == generation && !p.running {
			p.set(0)
		}
	})
}

func (p *Progress) set(v float64) {
	p.value = v
	p.onChange(v)
}
