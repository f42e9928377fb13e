package mcp

import (
	"context"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/storage"
	"github.com/google/uuid"
)

// DataSource abstracts the data layer for MCP tools. Both *storage.DB (local)
// and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	ListWorkouts(ctx context.Context, userID, limit int) ([]models.WorkoutRow, error)
	GetWorkout(ctx context.Context, userID int, id uuid.UUID) (models.WorkoutRow, error)
	ListSessionHistory(ctx context.Context, userID, limit int) ([]models.SessionHistoryRow, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)
