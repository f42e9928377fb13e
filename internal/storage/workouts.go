package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
)

// UpsertWorkout stores a definition under (user, name). A second upload with
// the same name replaces the definition and keeps the original id.
func (db *DB) UpsertWorkout(ctx context.Context, row models.WorkoutRow) (models.WorkoutRow, error) {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Name == "" {
		row.Name = row.Definition.Name
	}
	if row.Source == "" {
		row.Source = models.SourceManual
	}
	def, err := json.Marshal(row.Definition)
	if err != nil {
		return row, fmt.Errorf("encoding definition %q: %w", row.Name, err)
	}

	err = db.Pool.QueryRow(ctx,
		`INSERT INTO workouts (id, user_id, name, source, definition)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (user_id, name) DO UPDATE
			SET source = EXCLUDED.source, definition = EXCLUDED.definition, updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		row.ID, row.UserID, row.Name, string(row.Source), def,
	).Scan(&row.ID, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return row, fmt.Errorf("upserting workout %q: %w", row.Name, err)
	}
	return row, nil
}

// GetWorkout returns one stored definition or ErrNotFound.
func (db *DB) GetWorkout(ctx context.Context, userID int, id uuid.UUID) (models.WorkoutRow, error) {
	var (
		row    models.WorkoutRow
		source string
		def    []byte
	)
	err := db.Pool.QueryRow(ctx,
		`SELECT id, user_id, name, source, definition, created_at, updated_at
		 FROM workouts WHERE user_id = $1 AND id = $2`,
		userID, id,
	).Scan(&row.ID, &row.UserID, &row.Name, &source, &def, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return row, fmt.Errorf("getting workout %s: %w", id, notFound(err))
	}
	row.Source = models.WorkoutSource(source)
	if err := json.Unmarshal(def, &row.Definition); err != nil {
		return row, fmt.Errorf("decoding workout %s: %w", id, err)
	}
	return row, nil
}

// ListWorkouts returns a user's definitions, most recently updated first.
// Definitions are included so callers can build timelines without a second
// round trip.
func (db *DB) ListWorkouts(ctx context.Context, userID, limit int) ([]models.WorkoutRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, name, source, definition, created_at, updated_at
		 FROM workouts
		 WHERE user_id = $1
		 ORDER BY updated_at DESC
		 LIMIT $2`,
		userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying workouts: %w", err)
	}
	defer rows.Close()

	var result []models.WorkoutRow
	for rows.Next() {
		var (
			w      models.WorkoutRow
			source string
			def    []byte
		)
		if err := rows.Scan(&w.ID, &w.UserID, &w.Name, &source, &def, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning workout: %w", err)
		}
		w.Source = models.WorkoutSource(source)
		if err := json.Unmarshal(def, &w.Definition); err != nil {
			return nil, fmt.Errorf("decoding workout %s: %w", w.ID, err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// DeleteWorkout removes a definition. History rows keep their copy of the name.
func (db *DB) DeleteWorkout(ctx context.Context, userID int, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM workouts WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("deleting workout %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting workout %s: %w", id, ErrNotFound)
	}
	return nil
}
