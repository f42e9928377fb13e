package models

// WorkoutDefinition is the static workout content a timeline is built from.
// A definition may mix major lifts, accessory groups and an externally
// authored exercise list; they are laid out in that order.
type WorkoutDefinition struct {
	Name        string           `json:"name" yaml:"name"`
	Lifts       []MajorLift      `json:"lifts,omitempty" yaml:"lifts,omitempty"`
	Accessories []AccessoryGroup `json:"accessories,omitempty" yaml:"accessories,omitempty"`
	Exercises   []ExerciseEntry  `json:"exercises,omitempty" yaml:"exercises,omitempty"`
}

// MajorLift is a barbell lift programmed off a training max.
type MajorLift struct {
	Name          string     `json:"name" yaml:"name"`
	TrainingMaxKg float64    `json:"training_max_kg" yaml:"training_max_kg"`
	Tempo         string     `json:"tempo,omitempty" yaml:"tempo,omitempty"`
	Warmup        []RampStep `json:"warmup,omitempty" yaml:"warmup,omitempty"`
	Sets          []LiftSet  `json:"sets" yaml:"sets"`
}

// RampStep is one warm-up set expressed as a fraction of the training max.
type RampStep struct {
	Percent float64 `json:"percent" yaml:"percent"`
	Reps    int     `json:"reps" yaml:"reps"`
}

// LiftSet is one working set of a major lift.
type LiftSet struct {
	Percent float64 `json:"percent" yaml:"percent"`
	Reps    int     `json:"reps" yaml:"reps"`
	AMRAP   bool    `json:"amrap,omitempty" yaml:"amrap,omitempty"`
}

// AccessoryGroup is a block of accessory exercises done after the main lifts.
type AccessoryGroup struct {
	Name      string      `json:"name" yaml:"name"`
	Exercises []Accessory `json:"exercises" yaml:"exercises"`
}

// Accessory is a single accessory exercise. Load is a load spec such as
// "bw", "bw+10", "24kg" or "60%squat".
type Accessory struct {
	Name  string `json:"name" yaml:"name"`
	Sets  int    `json:"sets" yaml:"sets"`
	Reps  int    `json:"reps" yaml:"reps"`
	Load  string `json:"load,omitempty" yaml:"load,omitempty"`
	Tempo string `json:"tempo,omitempty" yaml:"tempo,omitempty"`
}

// ExerciseEntry is one exercise of an externally authored list, e.g. an
// Alpha Progression export.
type ExerciseEntry struct {
	Name        string      `json:"name" yaml:"name"`
	Equipment   string      `json:"equipment,omitempty" yaml:"equipment,omitempty"`
	Sets        int         `json:"sets" yaml:"sets"`
	Reps        int         `json:"reps" yaml:"reps"`
	LoadKg      *float64    `json:"load_kg,omitempty" yaml:"load_kg,omitempty"`
	Tempo       string      `json:"tempo,omitempty" yaml:"tempo,omitempty"`
	RestSeconds float64     `json:"rest_seconds,omitempty" yaml:"rest_seconds,omitempty"`
	Warmups     []WarmupSet `json:"warmups,omitempty" yaml:"warmups,omitempty"`
}

// WarmupSet is an explicit warm-up set with an absolute load.
type WarmupSet struct {
	LoadKg float64 `json:"load_kg" yaml:"load_kg"`
	Reps   int     `json:"reps" yaml:"reps"`
}

// Progression raises training maxes by a fixed amount per completed cycle.
type Progression struct {
	Cycle       int     `json:"cycle" yaml:"cycle"`
	IncrementKg float64 `json:"increment_kg" yaml:"increment_kg"`
}

// Settings control how a definition is laid out into steps.
type Settings struct {
	SetupSeconds         float64     `json:"setup_seconds" yaml:"setup_seconds"`
	RestSeconds          float64     `json:"rest_seconds" yaml:"rest_seconds"`
	AccessoryRestSeconds float64     `json:"accessory_rest_seconds" yaml:"accessory_rest_seconds"`
	WarmupRestSeconds    float64     `json:"warmup_rest_seconds" yaml:"warmup_rest_seconds"`
	TransitionSeconds    float64     `json:"transition_seconds" yaml:"transition_seconds"`
	SecondsPerRep        float64     `json:"seconds_per_rep" yaml:"seconds_per_rep"`
	PlateIncrementKg     float64     `json:"plate_increment_kg" yaml:"plate_increment_kg"`
	Progression          Progression `json:"progression" yaml:"progression"`

	// Pointers so that an explicit false survives WithDefaults.
	TempoEnabled  *bool `json:"tempo_enabled,omitempty" yaml:"tempo_enabled,omitempty"`
	CountdownCues *bool `json:"countdown_cues,omitempty" yaml:"countdown_cues,omitempty"`
}

// DefaultSettings returns the stock rest and pacing values.
func DefaultSettings() Settings {
	return Settings{}.WithDefaults()
}

// WithDefaults fills every unset field with its default.
func (s Settings) WithDefaults() Settings {
	if s.SetupSeconds <= 0 {
		s.SetupSeconds = 10
	}
	if s.RestSeconds <= 0 {
		s.RestSeconds = 90
	}
	if s.AccessoryRestSeconds <= 0 {
		s.AccessoryRestSeconds = 60
	}
	if s.WarmupRestSeconds <= 0 {
		s.WarmupRestSeconds = 45
	}
	if s.TransitionSeconds <= 0 {
		s.TransitionSeconds = 120
	}
	if s.SecondsPerRep <= 0 {
		s.SecondsPerRep = 4
	}
	if s.PlateIncrementKg <= 0 {
		s.PlateIncrementKg = 2.5
	}
	if s.TempoEnabled == nil {
		s.TempoEnabled = boolPtr(true)
	}
	if s.CountdownCues == nil {
		s.CountdownCues = boolPtr(true)
	}
	return s
}

// Tempo reports whether tempo-driven work steps are enabled.
func (s Settings) Tempo() bool {
	return s.TempoEnabled == nil || *s.TempoEnabled
}

// Countdown reports whether rest steps carry countdown cues.
func (s Settings) Countdown() bool {
	return s.CountdownCues == nil || *s.CountdownCues
}

func boolPtr(b bool) *bool { return &b }
