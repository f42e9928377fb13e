package models

import (
	"errors"
	"fmt"
	"math"
)

// StepType classifies a timeline entry.
type StepType string

const (
	StepSetup      StepType = "setup"
	StepWarmup     StepType = "warmup"
	StepWork       StepType = "work"
	StepRest       StepType = "rest"
	StepTransition StepType = "transition"
	StepSummary    StepType = "summary"
)

// Valid reports whether t is one of the known step types.
func (t StepType) Valid() bool {
	switch t {
	case StepSetup, StepWarmup, StepWork, StepRest, StepTransition, StepSummary:
		return true
	}
	return false
}

// PhaseKind is one part of a single repetition.
type PhaseKind string

const (
	PhaseEccentric  PhaseKind = "eccentric"
	PhaseConcentric PhaseKind = "concentric"
	PhaseHold       PhaseKind = "hold"
)

// Valid reports whether k is one of the known phase kinds.
func (k PhaseKind) Valid() bool {
	return k == PhaseEccentric || k == PhaseConcentric || k == PhaseHold
}

// TempoPhase is one timed sub-interval of a repetition.
type TempoPhase struct {
	Kind     PhaseKind `json:"phase" yaml:"phase"`
	Duration float64   `json:"duration_seconds" yaml:"duration_seconds"`
}

// CueOptions are passed through untouched to the voice collaborator.
type CueOptions struct {
	Voice     string  `json:"voice,omitempty" yaml:"voice,omitempty"`
	Rate      float64 `json:"rate,omitempty" yaml:"rate,omitempty"`
	Pitch     float64 `json:"pitch,omitempty" yaml:"pitch,omitempty"`
	Volume    float64 `json:"volume,omitempty" yaml:"volume,omitempty"`
	Interrupt bool    `json:"interrupt,omitempty" yaml:"interrupt,omitempty"`
}

// VoiceCue is a spoken announcement scheduled relative to step activation.
type VoiceCue struct {
	ID      string      `json:"id"`
	Text    string      `json:"text"`
	Offset  float64     `json:"offset_seconds"`
	Options *CueOptions `json:"options,omitempty"`
}

// Key returns the identifier used for at-most-once firing. Cues without an
// explicit ID fall back to their content so reordering never changes identity.
func (c VoiceCue) Key() string {
	if c.ID != "" {
		return c.ID
	}
	return fmt.Sprintf("%s@%g", c.Text, c.Offset)
}

// Step is one entry in a session timeline.
type Step struct {
	Type            StepType     `json:"type"`
	Duration        float64      `json:"duration_seconds"`
	TempoPhases     []TempoPhase `json:"tempo_phases,omitempty"`
	TargetReps      int          `json:"target_reps,omitempty"`
	VoiceCues       []VoiceCue   `json:"voice_cues"`
	VisualIntensity float64      `json:"visual_intensity"`

	SetNumber    int      `json:"set_number,omitempty"`
	TotalSets    int      `json:"total_sets,omitempty"`
	Load         *float64 `json:"load_kg,omitempty"`
	ExerciseName string   `json:"exercise_name,omitempty"`
}

var (
	errEmptyPhases     = errors.New("tempo step has no phases")
	errNoPositivePhase = errors.New("tempo step has no phase with positive duration")
)

// IsTempo reports whether the step is driven by tempo phases.
func (s Step) IsTempo() bool {
	return len(s.TempoPhases) > 0
}

// Validate checks the structural invariants of a step.
func (s Step) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("unknown step type %q", s.Type)
	}
	if s.Duration < 0 || math.IsNaN(s.Duration) || math.IsInf(s.Duration, 0) {
		return fmt.Errorf("%s step: invalid duration %v", s.Type, s.Duration)
	}
	if s.Duration == 0 && s.Type != StepSummary {
		return fmt.Errorf("%s step: zero duration is only valid for summary", s.Type)
	}
	if s.VisualIntensity < 0 || s.VisualIntensity > 1 {
		return fmt.Errorf("%s step: visual intensity %v outside [0,1]", s.Type, s.VisualIntensity)
	}
	if s.TempoPhases != nil {
		if err := ValidatePhases(s.TempoPhases, s.TargetReps); err != nil {
			return fmt.Errorf("%s step %q: %w", s.Type, s.ExerciseName, err)
		}
	} else if s.TargetReps != 0 {
		return fmt.Errorf("%s step %q: target reps without tempo phases", s.Type, s.ExerciseName)
	}
	for _, c := range s.VoiceCues {
		if c.Offset < 0 {
			return fmt.Errorf("%s step: cue %q has negative offset", s.Type, c.Text)
		}
	}
	return nil
}

// ValidatePhases checks a tempo phase list against its rep target.
func ValidatePhases(phases []TempoPhase, targetReps int) error {
	if len(phases) == 0 {
		return errEmptyPhases
	}
	positive := false
	for i, p := range phases {
		if !p.Kind.Valid() {
			return fmt.Errorf("phase %d: unknown kind %q", i, p.Kind)
		}
		if p.Duration < 0 || math.IsNaN(p.Duration) {
			return fmt.Errorf("phase %d: negative duration %v", i, p.Duration)
		}
		if p.Duration > 0 {
			positive = true
		}
	}
	if !positive {
		return errNoPositivePhase
	}
	if targetReps <= 0 {
		return fmt.Errorf("target reps must be positive, got %d", targetReps)
	}
	return nil
}

// Clone returns a deep copy so consumers never share slices with the engine.
func (s Step) Clone() Step {
	c := s
	if s.TempoPhases != nil {
		c.TempoPhases = append([]TempoPhase(nil), s.TempoPhases...)
	}
	if s.VoiceCues != nil {
		c.VoiceCues = make([]VoiceCue, len(s.VoiceCues))
		for i, cue := range s.VoiceCues {
			c.VoiceCues[i] = cue.Clone()
		}
	}
	if s.Load != nil {
		load := *s.Load
		c.Load = &load
	}
	return c
}

// Clone returns a copy of the cue with its own options value.
func (c VoiceCue) Clone() VoiceCue {
	if c.Options != nil {
		opts := *c.Options
		c.Options = &opts
	}
	return c
}

// CloneTimeline deep-copies a step list.
func CloneTimeline(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = s.Clone()
	}
	return out
}
