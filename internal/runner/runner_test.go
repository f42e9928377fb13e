package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/session"
	"go.uber.org/goleak"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func runAsync(t *testing.T, ctx context.Context, r *Runner) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return done
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestRunCompletesSession verifies the loop returns once the last step
// finishes on its own.
func TestRunCompletesSession(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	eng := session.New([]models.Step{
		{Type: models.StepRest, Duration: 0.02},
		{Type: models.StepWork, Duration: 0.02},
	}, session.WithLogger(quietLogger()))

	var mu sync.Mutex
	completed := 0
	eng.OnCompleted(func(session.CompletedEvent) {
		mu.Lock()
		completed++
		mu.Unlock()
	})

	r := New(eng, WithInterval(time.Millisecond), WithLogger(quietLogger()))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := runAsync(t, ctx, r)
	r.Do(eng.Start)

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if completed != 1 {
		t.Errorf("completed events = %d, want 1", completed)
	}
	if eng.State() != session.StateComplete {
		t.Errorf("State() = %s, want complete", eng.State())
	}
}

// TestRunCancel verifies cancellation stops the loop whatever the state.
func TestRunCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tests := []struct {
		name  string
		setup func(*session.Engine)
	}{
		{name: "idle", setup: func(*session.Engine) {}},
		{name: "active", setup: func(e *session.Engine) { e.Start() }},
		{name: "paused", setup: func(e *session.Engine) { e.Start(); e.Pause() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := session.New([]models.Step{{Type: models.StepSummary}}, session.WithLogger(quietLogger()))
			r := New(eng, WithInterval(time.Millisecond), WithLogger(quietLogger()))
			r.Do(func() { tt.setup(eng) })

			ctx, cancel := context.WithCancel(context.Background())
			done := runAsync(t, ctx, r)
			time.Sleep(10 * time.Millisecond)
			cancel()

			select {
			case err := <-done:
				if !errors.Is(err, context.Canceled) {
					t.Errorf("Run = %v, want context.Canceled", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("Run did not return after cancel")
			}
		})
	}
}

// TestPausedTimeNotDelivered verifies wall time spent paused never reaches
// the scheduler as a delta.
func TestPausedTimeNotDelivered(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clock := &fakeClock{now: time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)}
	eng := session.New([]models.Step{{Type: models.StepRest, Duration: 600}, {Type: models.StepSummary}},
		session.WithClock(clock), session.WithLogger(quietLogger()))
	r := New(eng, WithInterval(time.Millisecond), WithClock(clock), WithLogger(quietLogger()))

	stepElapsed := func() float64 {
		var v float64
		r.Do(func() { v = eng.Snapshot(false).Step.Elapsed })
		return v
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(t, ctx, r)

	r.Do(eng.Start)
	clock.Advance(2 * time.Second)
	eventually(t, func() bool { return stepElapsed() >= 2 })

	r.Do(eng.Pause)
	clock.Advance(time.Hour)
	r.Do(eng.Resume)
	clock.Advance(time.Second)
	eventually(t, func() bool { return stepElapsed() >= 3 })

	if got := stepElapsed(); got != 3 {
		t.Errorf("step elapsed = %v, want 3", got)
	}
	var snap session.Snapshot
	r.Do(func() { snap = eng.Snapshot(false) })
	if snap.ElapsedSeconds != 3 {
		t.Errorf("session elapsed = %v, want 3", snap.ElapsedSeconds)
	}

	cancel()
	<-done
}

// TestDoFlushesBeforeTransport verifies pending time is applied before a
// transport call.
func TestDoFlushesBeforeTransport(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)}
	eng := session.New([]models.Step{{Type: models.StepRest, Duration: 60}, {Type: models.StepSummary}},
		session.WithClock(clock), session.WithLogger(quietLogger()))
	r := New(eng, WithClock(clock), WithLogger(quietLogger()))

	r.Do(eng.Start)
	clock.Advance(1500 * time.Millisecond)
	r.Do(eng.Pause)

	if got := eng.Snapshot(false).Step.Elapsed; got != 1.5 {
		t.Errorf("step elapsed at pause = %v, want 1.5", got)
	}
}
