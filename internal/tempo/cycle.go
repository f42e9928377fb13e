package tempo

import (
	"math"

	"github.com/claude/repcoach/internal/models"
)

// epsilon absorbs float drift from summing many small deltas.
const epsilon = 1e-9

// Transition describes entering a new phase.
type Transition struct {
	PhaseIndex int
	Phase      models.PhaseKind
	Rep        int
	// Announce is false when this (phase, rep) pair was already announced.
	Announce bool
}

// Cycle walks a phase list repeatedly, counting repetitions. It carries
// overflow time into the next phase so the total matches the sum of phase
// durations regardless of how time is delivered.
type Cycle struct {
	phases     []models.TempoPhase
	targetReps int

	index        int
	phaseElapsed float64
	rep          int

	lastEmittedPhase int
	lastEmittedRep   int
}

// NewCycle creates a cycle positioned at the first phase of rep 1. The
// phases must already satisfy models.ValidatePhases.
func NewCycle(phases []models.TempoPhase, targetReps int) *Cycle {
	c := &Cycle{
		phases:     append([]models.TempoPhase(nil), phases...),
		targetReps: targetReps,
	}
	c.Reset()
	return c
}

// Reset rewinds to phase 0 of rep 1. The first phase counts as announced;
// callers pre-announce it on activation.
func (c *Cycle) Reset() {
	c.index = 0
	c.phaseElapsed = 0
	c.rep = 1
	c.lastEmittedPhase = 0
	c.lastEmittedRep = 1
}

// MaxAdvances bounds the phase transitions processed by one Settle call.
// A step can never have more transitions than this, so the bound only bites
// when a caller feeds a cycle whose phases are all zero length.
func (c *Cycle) MaxAdvances() int {
	return len(c.phases) * c.targetReps
}

// Accumulate adds dt to the current phase.
func (c *Cycle) Accumulate(dt float64) {
	c.phaseElapsed += dt
}

// Settle advances past every phase whose duration has elapsed, up to
// MaxAdvances. It reports completed once the rep after the last target rep
// would begin.
func (c *Cycle) Settle() (transitions []Transition, completed bool) {
	if len(c.phases) == 0 {
		return nil, false
	}
	for n := 0; n < c.MaxAdvances(); n++ {
		d := c.phases[c.index].Duration
		if c.phaseElapsed+epsilon < d {
			break
		}
		c.phaseElapsed = math.Max(0, c.phaseElapsed-d)
		c.index = (c.index + 1) % len(c.phases)
		if c.index == 0 {
			c.rep++
		}
		if c.rep > c.targetReps {
			c.phaseElapsed = 0
			return transitions, true
		}

		t := Transition{PhaseIndex: c.index, Phase: c.phases[c.index].Kind, Rep: c.rep}
		if c.index != c.lastEmittedPhase || c.rep != c.lastEmittedRep {
			t.Announce = true
			c.lastEmittedPhase = c.index
			c.lastEmittedRep = c.rep
		}
		transitions = append(transitions, t)
	}
	return transitions, false
}

// Progress is the fraction of the current phase that has elapsed, in [0,1].
func (c *Cycle) Progress() float64 {
	if len(c.phases) == 0 {
		return 0
	}
	d := c.phases[c.index].Duration
	if d <= 0 {
		return 1
	}
	return math.Min(1, c.phaseElapsed/d)
}

// PhaseIndex returns the index of the current phase.
func (c *Cycle) PhaseIndex() int { return c.index }

// Phase returns the kind of the current phase.
func (c *Cycle) Phase() models.PhaseKind {
	if len(c.phases) == 0 {
		return ""
	}
	return c.phases[c.index].Kind
}

// Rep returns the current repetition, starting at 1.
func (c *Cycle) Rep() int { return c.rep }

// TargetReps returns the rep target.
func (c *Cycle) TargetReps() int { return c.targetReps }

// Len returns the number of phases per repetition.
func (c *Cycle) Len() int { return len(c.phases) }
