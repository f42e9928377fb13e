// Package runner is the host side of a session: it calls Update at a fixed
// cadence with the measured time delta and serializes transport calls with
// those updates.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/repcoach/internal/session"
)

// DefaultInterval is roughly one display frame.
const DefaultInterval = 16 * time.Millisecond

// Scheduler is driven by the runner. *session.Engine implements it.
type Scheduler interface {
	Update(dt float64)
	State() session.State
}

// Option configures a Runner.
type Option func(*Runner)

// WithInterval sets the update cadence.
func WithInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithClock sets the clock used to measure deltas.
func WithClock(c session.Clock) Option { return func(r *Runner) { r.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.log = l } }

// Runner feeds a Scheduler from a ticker. While the scheduler is idle or
// paused the loop blocks instead of ticking, so paused wall time is never
// turned into a delta.
type Runner struct {
	log      *slog.Logger
	interval time.Duration
	clock    session.Clock

	mu    sync.Mutex
	sched Scheduler
	last  time.Time

	wake chan struct{}
}

// New creates a runner for s.
func New(s Scheduler, opts ...Option) *Runner {
	r := &Runner{
		log:      slog.Default(),
		interval: DefaultInterval,
		clock:    session.SystemClock,
		sched:    s,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs fn with exclusive access to the scheduler. Time elapsed since the
// last update is delivered first, so a Pause lands exactly where the user
// pressed it.
func (r *Runner) Do(fn func()) {
	r.mu.Lock()
	if r.sched.State() == session.StateActive {
		r.advanceLocked()
	}
	fn()
	r.last = r.clock.Now()
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run drives the scheduler until it completes or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.mu.Lock()
	if r.last.IsZero() {
		r.last = r.clock.Now()
	}
	r.mu.Unlock()

	r.log.Debug("runner started", "interval", r.interval)
	for {
		r.mu.Lock()
		state := r.sched.State()
		r.mu.Unlock()

		switch state {
		case session.StateComplete:
			r.log.Debug("runner finished")
			return nil
		case session.StateIdle, session.StatePaused:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.wake:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.wake:
		case <-ticker.C:
			r.mu.Lock()
			if r.sched.State() == session.StateActive {
				r.advanceLocked()
			}
			r.mu.Unlock()
		}
	}
}

func (r *Runner) advanceLocked() {
	now := r.clock.Now()
	dt := now.Sub(r.last).Seconds()
	r.last = now
	if dt < 0 {
		dt = 0
	}
	r.sched.Update(dt)
}
