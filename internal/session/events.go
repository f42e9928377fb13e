package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/claude/repcoach/internal/models"
)

// Kind names an event type on the session bus.
type Kind string

const (
	KindTick         Kind = "tick"
	KindStepChange   Kind = "stepChange"
	KindStatusChange Kind = "statusChange"
	KindCue          Kind = "cue"
	KindCompleted    Kind = "completed"
	KindVisualState  Kind = "visualState"
)

// Kinds lists every event kind in a fixed order.
var Kinds = []Kind{KindTick, KindStepChange, KindStatusChange, KindCue, KindCompleted, KindVisualState}

// Event is implemented only by the event types in this package. Payloads are
// values; nothing in them aliases engine state.
type Event interface {
	Kind() Kind
	sealed()
}

// TickEvent reports the clock after each update of an active step.
type TickEvent struct {
	StepIndex      int              `json:"step_index"`
	StepElapsed    float64          `json:"step_elapsed_seconds"`
	Remaining      float64          `json:"remaining_seconds,omitempty"`
	HasRemaining   bool             `json:"has_remaining"`
	SessionElapsed float64          `json:"session_elapsed_seconds"`
	Phase          models.PhaseKind `json:"phase,omitempty"`
	Rep            int              `json:"rep,omitempty"`
	Progress       float64          `json:"progress"`
}

// StepChangeEvent is published when a step is activated.
type StepChangeEvent struct {
	Index    int         `json:"index"`
	Previous int         `json:"previous"`
	Step     models.Step `json:"step"`
}

// StatusChangeEvent is published on every state machine transition.
type StatusChangeEvent struct {
	From State `json:"from"`
	To   State `json:"to"`
}

// CueType separates tempo phase announcements from authored cues.
type CueType string

const (
	CueTempo   CueType = "tempo"
	CueGeneral CueType = "general"
)

// CueEvent asks the voice collaborator to say something. Tempo cues carry
// Phase and Rep; general cues carry Text and optional Options.
type CueEvent struct {
	Type       CueType            `json:"type"`
	StepIndex  int                `json:"step_index"`
	Phase      models.PhaseKind   `json:"phase,omitempty"`
	PhaseIndex int                `json:"phase_index,omitempty"`
	Rep        int                `json:"rep,omitempty"`
	Text       string             `json:"text,omitempty"`
	Options    *models.CueOptions `json:"options,omitempty"`
	CueID      string             `json:"cue_id,omitempty"`
}

// CompletedEvent is published once when the session reaches complete.
type CompletedEvent struct {
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	StepsReached   int     `json:"steps_reached"`
	StepsTotal     int     `json:"steps_total"`
	Aborted        bool    `json:"aborted"`
}

// HoldAnchor tells the renderer where a hold phase sits in the movement.
type HoldAnchor string

const (
	AnchorNone   HoldAnchor = ""
	AnchorBottom HoldAnchor = "bottom"
	AnchorTop    HoldAnchor = "top"
)

// VisualStateEvent is a continuous signal for the rendering collaborator.
type VisualStateEvent struct {
	StepIndex         int              `json:"step_index"`
	Phase             models.PhaseKind `json:"phase,omitempty"`
	Rep               int              `json:"rep,omitempty"`
	Progress          float64          `json:"progress"`
	HoldAnchor        HoldAnchor       `json:"hold_anchor,omitempty"`
	LastMovementPhase models.PhaseKind `json:"last_movement_phase,omitempty"`
	Intensity         float64          `json:"intensity"`
}

func (TickEvent) Kind() Kind         { return KindTick }
func (StepChangeEvent) Kind() Kind   { return KindStepChange }
func (StatusChangeEvent) Kind() Kind { return KindStatusChange }
func (CueEvent) Kind() Kind          { return KindCue }
func (CompletedEvent) Kind() Kind    { return KindCompleted }
func (VisualStateEvent) Kind() Kind  { return KindVisualState }

func (TickEvent) sealed()         {}
func (StepChangeEvent) sealed()   {}
func (StatusChangeEvent) sealed() {}
func (CueEvent) sealed()          {}
func (CompletedEvent) sealed()    {}
func (VisualStateEvent) sealed()  {}

// Handler receives events of the kind it subscribed to.
type Handler func(Event)

type subscriber struct {
	id int
	fn Handler
}

// bus fans events out to subscribers in subscription order. Subscribing is
// safe from any goroutine; delivery happens on the publishing goroutine.
type bus struct {
	log *slog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[Kind][]subscriber
}

func newBus(log *slog.Logger) *bus {
	return &bus{log: log, subs: make(map[Kind][]subscriber)}
}

func (b *bus) on(kind Kind, fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscriber{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[kind]
			for i, s := range list {
				if s.id == id {
					b.subs[kind] = append(list[:i:i], list[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *bus) emit(ev Event) {
	b.mu.Lock()
	list := b.subs[ev.Kind()]
	b.mu.Unlock()

	for _, s := range list {
		b.deliver(s, ev)
	}
}

func (b *bus) deliver(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", "kind", ev.Kind(), "panic", fmt.Sprint(r))
		}
	}()
	s.fn(ev)
}
