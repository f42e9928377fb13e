package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
)

// InsertSessionHistory records a finished session.
func (db *DB) InsertSessionHistory(ctx context.Context, row models.SessionHistoryRow) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	settings, err := json.Marshal(row.Settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	_, err = db.Pool.Exec(ctx,
		`INSERT INTO session_history (id, user_id, workout_id, workout_name, settings,
		 started_at, finished_at, elapsed_seconds, steps_total, steps_reached, aborted)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 ON CONFLICT (id) DO NOTHING`,
		row.ID, row.UserID, row.WorkoutID, row.WorkoutName, settings,
		row.StartedAt, row.FinishedAt, row.ElapsedSeconds, row.StepsTotal, row.StepsReached, row.Aborted)
	if err != nil {
		return fmt.Errorf("inserting session history %s: %w", row.ID, err)
	}
	return nil
}

// ListSessionHistory returns a user's finished sessions, newest first.
func (db *DB) ListSessionHistory(ctx context.Context, userID, limit int) ([]models.SessionHistoryRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, workout_id, workout_name, settings, started_at, finished_at,
		 elapsed_seconds, steps_total, steps_reached, aborted
		 FROM session_history
		 WHERE user_id = $1
		 ORDER BY finished_at DESC
		 LIMIT $2`,
		userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying session history: %w", err)
	}
	defer rows.Close()

	var result []models.SessionHistoryRow
	for rows.Next() {
		var (
			h        models.SessionHistoryRow
			settings []byte
		)
		if err := rows.Scan(&h.ID, &h.UserID, &h.WorkoutID, &h.WorkoutName, &settings,
			&h.StartedAt, &h.FinishedAt, &h.ElapsedSeconds, &h.StepsTotal, &h.StepsReached, &h.Aborted); err != nil {
			return nil, fmt.Errorf("scanning session history: %w", err)
		}
		if err := json.Unmarshal(settings, &h.Settings); err != nil {
			return nil, fmt.Errorf("decoding settings for %s: %w", h.ID, err)
		}
		result = append(result, h)
	}
	return result, rows.Err()
}
