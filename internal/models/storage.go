package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkoutSource records where a stored definition came from.
type WorkoutSource string

const (
	SourceManual WorkoutSource = "manual"
	SourceAlpha  WorkoutSource = "alpha"
	SourceSync   WorkoutSource = "sync"
)

// WorkoutRow is a row of the workouts table: a stored timeline-builder input.
type WorkoutRow struct {
	ID         uuid.UUID         `json:"id"`
	UserID     int               `json:"-"`
	Name       string            `json:"name"`
	Source     WorkoutSource     `json:"source"`
	Definition WorkoutDefinition `json:"definition"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// SessionHistoryRow is a row of the session_history table. It snapshots the
// builder inputs of a finished session so it can be repeated, never the
// engine's runtime state.
type SessionHistoryRow struct {
	ID             uuid.UUID  `json:"id"`
	UserID         int        `json:"-"`
	WorkoutID      *uuid.UUID `json:"workout_id,omitempty"`
	WorkoutName    string     `json:"workout_name"`
	Settings       Settings   `json:"settings"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     time.Time  `json:"finished_at"`
	ElapsedSeconds float64    `json:"elapsed_seconds"`
	StepsTotal     int        `json:"steps_total"`
	StepsReached   int        `json:"steps_reached"`
	Aborted        bool       `json:"aborted"`
}
