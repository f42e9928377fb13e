package ingest

import "github.com/google/uuid"

// Result holds the outcome of an ingest operation.
type Result struct {
	SessionsReceived int         `json:"sessions_received"`
	WorkoutsStored   int         `json:"workouts_stored"`
	WorkoutIDs       []uuid.UUID `json:"workout_ids,omitempty"`
	Skipped          []string    `json:"skipped,omitempty"`

	Message string `json:"message,omitempty"`
}
