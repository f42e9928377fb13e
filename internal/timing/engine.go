// Package timing owns the clock of a single active step. It runs either a
// plain duration countdown or a tempo phase cycle and reports what happened
// on each advance as a list of events. It knows nothing about the timeline.
package timing

import (
	"math"
	"sort"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/tempo"
)

// Mode selects the timing discipline of a step.
type Mode string

const (
	ModeDuration Mode = "duration"
	ModeTempo    Mode = "tempo"
)

// EventKind identifies a timing event.
type EventKind string

const (
	EventTick        EventKind = "tick"
	EventCue         EventKind = "cue"
	EventPhaseChange EventKind = "phaseChange"
	EventComplete    EventKind = "complete"
)

// rank fixes the order of events emitted by one Update call.
func (k EventKind) rank() int {
	switch k {
	case EventTick:
		return 0
	case EventCue:
		return 1
	case EventPhaseChange:
		return 2
	default:
		return 3
	}
}

// Event is one thing that happened during an Update call. Phase, PhaseIndex,
// Rep and Progress are only meaningful in tempo mode.
type Event struct {
	Kind         EventKind
	Elapsed      float64
	Remaining    float64
	HasRemaining bool
	Phase        models.PhaseKind
	PhaseIndex   int
	Rep          int
	Progress     float64
}

const epsilon = 1e-9

// Engine times one step. It is not safe for concurrent use.
type Engine struct {
	mode     Mode
	duration float64
	cycle    *tempo.Cycle

	elapsed float64
	running bool
	paused  bool
}

// New creates an engine for step. Tempo mode is used when the step carries
// tempo phases.
func New(step models.Step) *Engine {
	e := &Engine{mode: ModeDuration, duration: step.Duration}
	if step.IsTempo() {
		e.mode = ModeTempo
		e.cycle = tempo.NewCycle(step.TempoPhases, step.TargetReps)
	}
	return e
}

// Start resets the clocks and activates the engine.
func (e *Engine) Start() {
	e.elapsed = 0
	if e.cycle != nil {
		e.cycle.Reset()
	}
	e.running = true
	e.paused = false
}

// Pause suspends time accounting.
func (e *Engine) Pause() {
	if e.running {
		e.paused = true
	}
}

// Resume continues after Pause. It has no effect on a stopped engine.
func (e *Engine) Resume() {
	if e.running {
		e.paused = false
	}
}

// Stop deactivates the engine until the next Start.
func (e *Engine) Stop() {
	e.running = false
	e.paused = false
}

// Active reports whether Update advances time.
func (e *Engine) Active() bool {
	return e.running && !e.paused
}

// Mode returns the timing discipline.
func (e *Engine) Mode() Mode { return e.mode }

// Elapsed returns the time accumulated since Start.
func (e *Engine) Elapsed() float64 { return e.elapsed }

// Phase returns the current tempo phase, or "" in duration mode.
func (e *Engine) Phase() models.PhaseKind {
	if e.cycle == nil {
		return ""
	}
	return e.cycle.Phase()
}

// PhaseIndex returns the current tempo phase index.
func (e *Engine) PhaseIndex() int {
	if e.cycle == nil {
		return 0
	}
	return e.cycle.PhaseIndex()
}

// Rep returns the current repetition, or 0 in duration mode.
func (e *Engine) Rep() int {
	if e.cycle == nil {
		return 0
	}
	return e.cycle.Rep()
}

// Progress returns the fraction of the current phase (tempo) or of the whole
// step (duration) that has elapsed.
func (e *Engine) Progress() float64 {
	if e.cycle != nil {
		return e.cycle.Progress()
	}
	if e.duration <= 0 {
		return 0
	}
	return math.Min(1, e.elapsed/e.duration)
}

// Update advances time by dt seconds and returns the resulting events in
// the order tick, cue, phaseChange, complete. It returns nil when inactive.
func (e *Engine) Update(dt float64) []Event {
	if !e.Active() {
		return nil
	}
	if dt < 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		dt = 0
	}
	e.elapsed += dt

	var events []Event
	if e.mode == ModeTempo {
		events = e.updateTempo(dt)
	} else {
		events = e.updateDuration()
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Kind.rank() < events[j].Kind.rank()
	})
	return events
}

func (e *Engine) updateDuration() []Event {
	tick := Event{Kind: EventTick, Elapsed: e.elapsed}
	if e.duration <= 0 {
		return []Event{tick}
	}

	tick.HasRemaining = true
	tick.Remaining = math.Max(0, e.duration-e.elapsed)
	if e.elapsed+epsilon < e.duration {
		return []Event{tick}
	}

	tick.Remaining = 0
	e.running = false
	return []Event{tick, {Kind: EventComplete, Elapsed: e.elapsed, HasRemaining: true}}
}

func (e *Engine) updateTempo(dt float64) []Event {
	e.cycle.Accumulate(dt)
	tick := Event{
		Kind:       EventTick,
		Elapsed:    e.elapsed,
		Phase:      e.cycle.Phase(),
		PhaseIndex: e.cycle.PhaseIndex(),
		Rep:        e.cycle.Rep(),
		Progress:   e.cycle.Progress(),
	}
	if e.duration > 0 {
		tick.HasRemaining = true
		tick.Remaining = math.Max(0, e.duration-e.elapsed)
	}
	events := []Event{tick}

	transitions, completed := e.cycle.Settle()
	for _, t := range transitions {
		if t.Announce {
			events = append(events, Event{
				Kind:       EventCue,
				Elapsed:    e.elapsed,
				Phase:      t.Phase,
				PhaseIndex: t.PhaseIndex,
				Rep:        t.Rep,
			})
		}
		events = append(events, Event{
			Kind:       EventPhaseChange,
			Elapsed:    e.elapsed,
			Phase:      t.Phase,
			PhaseIndex: t.PhaseIndex,
			Rep:        t.Rep,
		})
	}
	if completed {
		e.running = false
		events = append(events, Event{
			Kind:       EventComplete,
			Elapsed:    e.elapsed,
			Rep:        e.cycle.TargetReps(),
			Progress:   1,
		})
	}
	return events
}
