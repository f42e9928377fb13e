package session

import (
	"time"

	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
)

// Snapshot is a point-in-time copy of a session. Mutating it has no effect
// on the engine.
type Snapshot struct {
	ID                       uuid.UUID       `json:"id"`
	State                    State           `json:"state"`
	CurrentStepIndex         int             `json:"current_step_index"`
	StepsTotal               int             `json:"steps_total"`
	StepsReached             int             `json:"steps_reached"`
	StartTime                time.Time       `json:"start_time,omitzero"`
	FinishedAt               time.Time       `json:"finished_at,omitzero"`
	ElapsedSeconds           float64         `json:"elapsed_seconds"`
	PausedAccumulatedSeconds float64         `json:"paused_accumulated_seconds"`
	Aborted                  bool            `json:"aborted"`
	Settings                 models.Settings `json:"settings"`
	Step                     *StepStatus     `json:"step,omitempty"`
	Timeline                 []models.Step   `json:"timeline,omitempty"`
}

// StepStatus describes the active step's clock.
type StepStatus struct {
	Type         models.StepType  `json:"type"`
	ExerciseName string           `json:"exercise_name,omitempty"`
	Elapsed      float64          `json:"elapsed_seconds"`
	Duration     float64          `json:"duration_seconds"`
	Phase        models.PhaseKind `json:"phase,omitempty"`
	Rep          int              `json:"rep,omitempty"`
	TargetReps   int              `json:"target_reps,omitempty"`
}

// Snapshot returns the current session state. The timeline is included only
// when withTimeline is set.
func (e *Engine) Snapshot(withTimeline bool) Snapshot {
	if e.state == StateActive || e.state == StatePaused {
		e.refreshElapsed()
	}
	s := Snapshot{
		ID:                       e.id,
		State:                    e.state,
		CurrentStepIndex:         e.index,
		StepsTotal:               len(e.timeline),
		StepsReached:             e.reached,
		StartTime:                e.startTime,
		FinishedAt:               e.finishedAt,
		ElapsedSeconds:           e.elapsed,
		PausedAccumulatedSeconds: e.pausedAcc.Seconds(),
		Aborted:                  e.aborted,
		Settings:                 e.settings,
	}
	if withTimeline {
		s.Timeline = models.CloneTimeline(e.timeline)
	}
	if e.timer != nil && e.state != StateComplete {
		step := e.timeline[e.index]
		s.Step = &StepStatus{
			Type:         step.Type,
			ExerciseName: step.ExerciseName,
			Elapsed:      e.timer.Elapsed(),
			Duration:     step.Duration,
			Phase:        e.timer.Phase(),
			Rep:          e.timer.Rep(),
			TargetReps:   step.TargetReps,
		}
	}
	return s
}
