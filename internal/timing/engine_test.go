package timing

import (
	"testing"

	"github.com/claude/repcoach/internal/models"
)

func count(events []Event, kind EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// TestDurationCompletesRegardlessOfSplit verifies that a duration step
// completes exactly once with remaining 0 however its time is delivered.
func TestDurationCompletesRegardlessOfSplit(t *testing.T) {
	const d = 30.0
	splits := map[string][]float64{
		"single call":   {30},
		"one-second":    repeat(1, 30),
		"tenths":        repeat(0.1, 300),
		"60Hz":          repeat(1.0/60, 1800),
		"overshoot":     {20, 20},
		"uneven thirds": {7.5, 12.25, 10.25},
	}
	for name, dts := range splits {
		e := New(models.Step{Type: models.StepRest, Duration: d})
		e.Start()

		var all []Event
		for _, dt := range dts {
			all = append(all, e.Update(dt)...)
		}
		if got := count(all, EventComplete); got != 1 {
			t.Errorf("%s: complete events = %d, want 1", name, got)
			continue
		}
		var lastTick Event
		for _, ev := range all {
			if ev.Kind == EventTick {
				lastTick = ev
			}
		}
		if !lastTick.HasRemaining || lastTick.Remaining != 0 {
			t.Errorf("%s: final remaining = %v (has=%v), want 0", name, lastTick.Remaining, lastTick.HasRemaining)
		}
		if e.Active() {
			t.Errorf("%s: engine still active after complete", name)
		}
	}
}

func repeat(dt float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = dt
	}
	return out
}

// TestDurationTickPayload verifies every update emits one tick with elapsed
// and remaining.
func TestDurationTickPayload(t *testing.T) {
	e := New(models.Step{Type: models.StepWork, Duration: 10})
	e.Start()
	events := e.Update(4)
	if len(events) != 1 || events[0].Kind != EventTick {
		t.Fatalf("events = %+v, want single tick", events)
	}
	if events[0].Elapsed != 4 || events[0].Remaining != 6 {
		t.Errorf("tick = %+v, want elapsed 4 remaining 6", events[0])
	}
	if got := e.Progress(); got != 0.4 {
		t.Errorf("Progress() = %v, want 0.4", got)
	}
}

// TestZeroDurationNeverCompletes verifies the terminal summary step must be
// advanced externally.
func TestZeroDurationNeverCompletes(t *testing.T) {
	e := New(models.Step{Type: models.StepSummary})
	e.Start()
	for range 100 {
		for _, ev := range e.Update(10) {
			if ev.Kind == EventComplete {
				t.Fatal("zero-duration step completed on its own")
			}
			if ev.HasRemaining {
				t.Fatal("zero-duration tick must not carry remaining")
			}
		}
	}
	if e.Elapsed() != 1000 {
		t.Errorf("Elapsed() = %v, want 1000", e.Elapsed())
	}
}

// TestInactiveUpdateIsNoop verifies Update does nothing before Start, while
// paused and after Stop.
func TestInactiveUpdateIsNoop(t *testing.T) {
	e := New(models.Step{Type: models.StepRest, Duration: 10})
	if ev := e.Update(1); ev != nil {
		t.Errorf("before Start: %+v", ev)
	}

	e.Start()
	e.Update(2)
	e.Pause()
	if ev := e.Update(100); ev != nil {
		t.Errorf("while paused: %+v", ev)
	}
	e.Resume()
	ev := e.Update(1)
	if len(ev) != 1 || ev[0].Elapsed != 3 {
		t.Errorf("after resume: %+v, want elapsed 3", ev)
	}

	e.Stop()
	e.Resume()
	if ev := e.Update(1); ev != nil {
		t.Errorf("after Stop: %+v", ev)
	}
}

// TestNegativeDeltaIgnored verifies time never runs backwards.
func TestNegativeDeltaIgnored(t *testing.T) {
	e := New(models.Step{Type: models.StepRest, Duration: 10})
	e.Start()
	e.Update(3)
	ev := e.Update(-2)
	if ev[0].Elapsed != 3 {
		t.Errorf("elapsed = %v, want 3", ev[0].Elapsed)
	}
}

func tempoStep(reps int) models.Step {
	return models.Step{
		Type:     models.StepWork,
		Duration: 4 * float64(reps),
		TempoPhases: []models.TempoPhase{
			{Kind: models.PhaseEccentric, Duration: 2},
			{Kind: models.PhaseHold, Duration: 1},
			{Kind: models.PhaseConcentric, Duration: 1},
		},
		TargetReps: reps,
	}
}

// TestTempoScenario drives a 3-rep [2,1,1] tempo step with one-second ticks:
// 12 ticks, 8 phase changes each paired with a cue, one complete on tick 12.
func TestTempoScenario(t *testing.T) {
	e := New(tempoStep(3))
	if e.Mode() != ModeTempo {
		t.Fatalf("Mode() = %s, want tempo", e.Mode())
	}
	e.Start()

	var all []Event
	completeTick := -1
	for i := 1; e.Active() && i <= 50; i++ {
		events := e.Update(1)
		if count(events, EventComplete) > 0 {
			completeTick = i
		}
		all = append(all, events...)
	}

	if got := count(all, EventTick); got != 12 {
		t.Errorf("ticks = %d, want 12", got)
	}
	if got := count(all, EventPhaseChange); got != 8 {
		t.Errorf("phase changes = %d, want 8", got)
	}
	if got := count(all, EventCue); got != 8 {
		t.Errorf("cues = %d, want 8", got)
	}
	if completeTick != 12 {
		t.Errorf("complete on tick %d, want 12", completeTick)
	}

	seen := map[[2]int]bool{}
	for _, ev := range all {
		if ev.Kind != EventCue {
			continue
		}
		key := [2]int{ev.PhaseIndex, ev.Rep}
		if seen[key] {
			t.Errorf("duplicate cue for phase %d rep %d", ev.PhaseIndex, ev.Rep)
		}
		seen[key] = true
		if key == [2]int{0, 1} {
			t.Error("initial phase must not be re-announced")
		}
	}
}

// TestTempoTickPayload verifies ticks carry phase, rep and capped progress.
func TestTempoTickPayload(t *testing.T) {
	e := New(tempoStep(2))
	e.Start()
	ev := e.Update(1)
	if ev[0].Phase != models.PhaseEccentric || ev[0].Rep != 1 || ev[0].Progress != 0.5 {
		t.Errorf("tick = %+v, want eccentric rep 1 progress 0.5", ev[0])
	}
	if !ev[0].HasRemaining || ev[0].Remaining != 7 {
		t.Errorf("remaining = %v, want 7", ev[0].Remaining)
	}

	ev = e.Update(1.5)
	if ev[0].Progress != 1 {
		t.Errorf("progress = %v, want capped at 1", ev[0].Progress)
	}
	if e.Phase() != models.PhaseHold {
		t.Errorf("Phase() = %s, want hold", e.Phase())
	}
}

// TestTempoEventOrder verifies tick, cue, phaseChange, complete ordering when
// several apply to one update.
func TestTempoEventOrder(t *testing.T) {
	e := New(tempoStep(2))
	e.Start()
	events := e.Update(8)

	last := -1
	for _, ev := range events {
		r := ev.Kind.rank()
		if r < last {
			t.Fatalf("out of order: %+v", events)
		}
		last = r
	}
	if events[0].Kind != EventTick || events[len(events)-1].Kind != EventComplete {
		t.Errorf("first=%s last=%s, want tick..complete", events[0].Kind, events[len(events)-1].Kind)
	}
	if got := count(events, EventPhaseChange); got != 5 {
		t.Errorf("phase changes = %d, want 5", got)
	}
}

// TestTempoRestart verifies Start rewinds rep and phase.
func TestTempoRestart(t *testing.T) {
	e := New(tempoStep(3))
	e.Start()
	e.Update(5)
	e.Start()
	if e.Rep() != 1 || e.PhaseIndex() != 0 || e.Elapsed() != 0 {
		t.Errorf("after restart: rep=%d phase=%d elapsed=%v", e.Rep(), e.PhaseIndex(), e.Elapsed())
	}
}
