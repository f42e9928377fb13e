// Package session drives a workout timeline: it owns the play state, times
// the active step through a timing engine, schedules voice cues and
// publishes typed events to passive subscribers.
package session

import (
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/timing"
	"github.com/google/uuid"
)

// State is the session play state.
type State string

const (
	StateIdle     State = "idle"
	StateActive   State = "active"
	StatePaused   State = "paused"
	StateComplete State = "complete"
)

// Clock supplies wall time for global elapsed accounting.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads time.Now.
var SystemClock Clock = systemClock{}

const cueEpsilon = 1e-9

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the wall clock used for elapsed accounting.
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithSettings records the builder settings the timeline was made with.
func WithSettings(s models.Settings) Option { return func(e *Engine) { e.settings = s } }

// WithID sets the session ID instead of generating one.
func WithID(id uuid.UUID) Option { return func(e *Engine) { e.id = id } }

type scheduledCue struct {
	key string
	cue models.VoiceCue
}

// Engine runs one session. It is single-threaded: Update and the transport
// methods must be called from one goroutine at a time, and handlers must
// not call them re-entrantly. Subscribing is safe from any goroutine.
type Engine struct {
	id       uuid.UUID
	timeline []models.Step
	settings models.Settings
	clock    Clock
	log      *slog.Logger
	bus      *bus

	state   State
	index   int
	reached int
	timer   *timing.Engine
	cues    []scheduledCue
	fired   map[string]bool

	lastMovement models.PhaseKind

	startTime  time.Time
	pausedAt   time.Time
	pausedAcc  time.Duration
	elapsed    float64
	finishedAt time.Time
	aborted    bool
}

// New creates an idle session over a copy of timeline.
func New(timeline []models.Step, opts ...Option) *Engine {
	e := &Engine{
		timeline: models.CloneTimeline(timeline),
		clock:    SystemClock,
		log:      slog.Default(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.id == uuid.Nil {
		e.id = uuid.New()
	}
	e.log = e.log.With("session", e.id)
	e.bus = newBus(e.log)
	return e
}

// ID returns the session identifier.
func (e *Engine) ID() uuid.UUID { return e.id }

// State returns the current play state.
func (e *Engine) State() State { return e.state }

// CurrentIndex returns the index of the active step.
func (e *Engine) CurrentIndex() int { return e.index }

// Len returns the number of steps in the timeline.
func (e *Engine) Len() int { return len(e.timeline) }

// On subscribes fn to events of kind and returns its unsubscribe function.
func (e *Engine) On(kind Kind, fn Handler) func() {
	return e.bus.on(kind, fn)
}

// OnTick subscribes to tick events.
func (e *Engine) OnTick(fn func(TickEvent)) func() {
	return e.On(KindTick, func(ev Event) { fn(ev.(TickEvent)) })
}

// OnStepChange subscribes to step activations.
func (e *Engine) OnStepChange(fn func(StepChangeEvent)) func() {
	return e.On(KindStepChange, func(ev Event) { fn(ev.(StepChangeEvent)) })
}

// OnStatusChange subscribes to state transitions.
func (e *Engine) OnStatusChange(fn func(StatusChangeEvent)) func() {
	return e.On(KindStatusChange, func(ev Event) { fn(ev.(StatusChangeEvent)) })
}

// OnCue subscribes to voice cues.
func (e *Engine) OnCue(fn func(CueEvent)) func() {
	return e.On(KindCue, func(ev Event) { fn(ev.(CueEvent)) })
}

// OnCompleted subscribes to session completion.
func (e *Engine) OnCompleted(fn func(CompletedEvent)) func() {
	return e.On(KindCompleted, func(ev Event) { fn(ev.(CompletedEvent)) })
}

// OnVisualState subscribes to the rendering signal.
func (e *Engine) OnVisualState(fn func(VisualStateEvent)) func() {
	return e.On(KindVisualState, func(ev Event) { fn(ev.(VisualStateEvent)) })
}

// Start moves idle to active and activates step 0. An empty timeline goes
// straight to complete.
func (e *Engine) Start() {
	if e.state != StateIdle {
		return
	}
	e.startTime = e.clock.Now()
	if len(e.timeline) == 0 {
		e.finish(false)
		return
	}
	e.setState(StateActive)
	e.activate(0)
}

// Pause suspends the active step. Elapsed time is frozen until Resume.
func (e *Engine) Pause() {
	if e.state != StateActive {
		return
	}
	e.refreshElapsed()
	e.pausedAt = e.clock.Now()
	e.timer.Pause()
	e.setState(StatePaused)
}

// Resume continues a paused session and re-announces the current tempo
// phase so a listener regains context.
func (e *Engine) Resume() {
	if e.state != StatePaused {
		return
	}
	if d := e.clock.Now().Sub(e.pausedAt); d > 0 {
		e.pausedAcc += d
	}
	e.timer.Resume()
	e.setState(StateActive)
	if e.timer.Mode() == timing.ModeTempo {
		e.emitTempoCue(e.timer.Phase(), e.timer.PhaseIndex(), e.timer.Rep())
	}
}

// Next activates the following step, or completes the session on the last.
func (e *Engine) Next() {
	if !e.running() {
		return
	}
	if e.index >= len(e.timeline)-1 {
		e.finish(false)
		return
	}
	e.activate(e.index + 1)
}

// Previous re-activates the preceding step, clamped at step 0.
func (e *Engine) Previous() {
	if !e.running() {
		return
	}
	e.activate(max(0, e.index-1))
}

// SkipExercise moves forward past any rest steps that follow the current
// step and activates the first non-rest step.
func (e *Engine) SkipExercise() {
	if !e.running() {
		return
	}
	j := e.index + 1
	for j < len(e.timeline) && e.timeline[j].Type == models.StepRest {
		j++
	}
	if j >= len(e.timeline) {
		e.finish(false)
		return
	}
	e.activate(j)
}

// Stop aborts an active or paused session. It is the only way out of a
// running session other than finishing it, and it is terminal.
func (e *Engine) Stop() {
	if !e.running() {
		return
	}
	e.finish(true)
}

// Complete finishes an active or paused session normally.
func (e *Engine) Complete() {
	if !e.running() {
		return
	}
	e.finish(false)
}

// Update advances the active step by dt seconds and publishes the resulting
// events. It does nothing unless the session is active.
func (e *Engine) Update(dt float64) {
	if e.state != StateActive {
		return
	}
	events := e.timer.Update(dt)
	if len(events) == 0 {
		return
	}
	e.refreshElapsed()

	completed := false
	for _, ev := range events {
		switch ev.Kind {
		case timing.EventTick:
			e.bus.emit(TickEvent{
				StepIndex:      e.index,
				StepElapsed:    ev.Elapsed,
				Remaining:      ev.Remaining,
				HasRemaining:   ev.HasRemaining,
				SessionElapsed: e.elapsed,
				Phase:          ev.Phase,
				Rep:            ev.Rep,
				Progress:       ev.Progress,
			})
			e.fireDue(ev.Elapsed)
		case timing.EventCue:
			e.emitTempoCue(ev.Phase, ev.PhaseIndex, ev.Rep)
		case timing.EventPhaseChange:
			e.noteMovement(ev.Phase)
		case timing.EventComplete:
			completed = true
		}
	}
	e.emitVisual()

	if !completed {
		return
	}
	e.log.Debug("step complete", "index", e.index, "type", e.timeline[e.index].Type)
	if e.index >= len(e.timeline)-1 {
		e.finish(false)
		return
	}
	e.activate(e.index + 1)
}

func (e *Engine) running() bool {
	return e.state == StateActive || e.state == StatePaused
}

// activate makes step i current with a fresh timer and an empty fired set.
// A paused session stays paused; the new timer is paused with it.
func (e *Engine) activate(i int) {
	if e.timer != nil {
		e.timer.Stop()
	}
	prev := e.index
	e.index = i
	e.reached = max(e.reached, i+1)

	step := e.timeline[i]
	e.timer = timing.New(step)
	e.timer.Start()
	if e.state == StatePaused {
		e.timer.Pause()
	}
	e.scheduleCues(step)
	e.lastMovement = ""

	e.log.Debug("step activated", "index", i, "type", step.Type, "exercise", step.ExerciseName)
	e.bus.emit(StepChangeEvent{Index: i, Previous: prev, Step: step.Clone()})
	e.fireDue(0)
	if e.timer.Mode() == timing.ModeTempo {
		e.noteMovement(e.timer.Phase())
		e.emitTempoCue(e.timer.Phase(), e.timer.PhaseIndex(), e.timer.Rep())
	}
	e.emitVisual()
}

// scheduleCues orders the step's cues by offset and gives each a unique
// firing key.
func (e *Engine) scheduleCues(step models.Step) {
	e.cues = e.cues[:0]
	seen := make(map[string]int, len(step.VoiceCues))
	for _, c := range step.VoiceCues {
		key := c.Key()
		seen[key]++
		if n := seen[key]; n > 1 {
			key += "#" + strconv.Itoa(n)
		}
		e.cues = append(e.cues, scheduledCue{key: key, cue: c.Clone()})
	}
	sort.SliceStable(e.cues, func(i, j int) bool {
		return e.cues[i].cue.Offset < e.cues[j].cue.Offset
	})
	e.fired = make(map[string]bool, len(e.cues))
}

// fireDue emits every not-yet-fired cue whose offset has been reached.
func (e *Engine) fireDue(stepElapsed float64) {
	for _, sc := range e.cues {
		if sc.cue.Offset > stepElapsed+cueEpsilon || e.fired[sc.key] {
			continue
		}
		e.fired[sc.key] = true
		ev := CueEvent{
			Type:      CueGeneral,
			StepIndex: e.index,
			Text:      sc.cue.Text,
			CueID:     sc.key,
		}
		if sc.cue.Options != nil {
			opts := *sc.cue.Options
			ev.Options = &opts
		}
		e.bus.emit(ev)
	}
}

func (e *Engine) emitTempoCue(phase models.PhaseKind, index, rep int) {
	e.bus.emit(CueEvent{Type: CueTempo, StepIndex: e.index, Phase: phase, PhaseIndex: index, Rep: rep})
}

func (e *Engine) noteMovement(p models.PhaseKind) {
	if p == models.PhaseEccentric || p == models.PhaseConcentric {
		e.lastMovement = p
	}
}

func (e *Engine) emitVisual() {
	step := e.timeline[e.index]
	ev := VisualStateEvent{
		StepIndex:         e.index,
		Progress:          e.timer.Progress(),
		LastMovementPhase: e.lastMovement,
		Intensity:         step.VisualIntensity,
	}
	if e.timer.Mode() == timing.ModeTempo {
		ev.Phase = e.timer.Phase()
		ev.Rep = e.timer.Rep()
		if ev.Phase == models.PhaseHold {
			ev.HoldAnchor = anchorAfter(e.lastMovement)
		}
	}
	e.bus.emit(ev)
}

// anchorAfter places a hold at the bottom after lowering and at the top
// after lifting.
func anchorAfter(last models.PhaseKind) HoldAnchor {
	switch last {
	case models.PhaseEccentric:
		return AnchorBottom
	case models.PhaseConcentric:
		return AnchorTop
	}
	return AnchorNone
}

func (e *Engine) setState(to State) {
	if e.state == to {
		return
	}
	from := e.state
	e.state = to
	e.log.Debug("session state changed", "from", from, "to", to)
	e.bus.emit(StatusChangeEvent{From: from, To: to})
}

// refreshElapsed recomputes global elapsed from the clock. It never moves
// backwards, even if the clock does.
func (e *Engine) refreshElapsed() {
	now := e.clock.Now()
	if e.state == StatePaused {
		now = e.pausedAt
	}
	secs := (now.Sub(e.startTime) - e.pausedAcc).Seconds()
	e.elapsed = math.Max(e.elapsed, secs)
}

func (e *Engine) finish(aborted bool) {
	if e.running() {
		e.refreshElapsed()
		if e.state == StatePaused {
			if d := e.clock.Now().Sub(e.pausedAt); d > 0 {
				e.pausedAcc += d
			}
		}
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.aborted = aborted
	e.finishedAt = e.clock.Now()
	e.setState(StateComplete)
	e.log.Info("session finished",
		"elapsed_s", e.elapsed, "steps_reached", e.reached, "steps_total", len(e.timeline), "aborted", aborted)
	e.bus.emit(CompletedEvent{
		ElapsedSeconds: e.elapsed,
		StepsReached:   e.reached,
		StepsTotal:     len(e.timeline),
		Aborted:        aborted,
	})
}
