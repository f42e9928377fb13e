package alpha

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/claude/repcoach/internal/ingest"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/timeline"
)

// WorkoutWriter persists converted definitions. *storage.DB satisfies it.
type WorkoutWriter interface {
	UpsertWorkout(ctx context.Context, row models.WorkoutRow) (models.WorkoutRow, error)
}

// Provider turns Alpha Progression CSV exports into stored exercise-list
// workouts that can be replayed as guided sessions.
type Provider struct {
	db  WorkoutWriter
	log *slog.Logger
}

// NewProvider creates a new Alpha Progression ingest provider.
func NewProvider(db WorkoutWriter, log *slog.Logger) *Provider {
	return &Provider{db: db, log: log}
}

// Ingest parses a CSV export, converts each session into a definition and
// stores it. Sessions that cannot be laid out into a timeline are skipped and
// reported, not fatal.
func (p *Provider) Ingest(ctx context.Context, r io.Reader, userID int) (*ingest.Result, error) {
	sessions, err := Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}

	result := &ingest.Result{SessionsReceived: len(sessions)}
	for _, s := range sessions {
		name := definitionName(s)
		def := timeline.FromAlphaSession(s)
		def.Name = name
		if len(def.Exercises) == 0 {
			result.Skipped = append(result.Skipped, name)
			p.log.Warn("alpha session has no working sets", "session", name)
			continue
		}
		if _, err := timeline.Build(def, models.Settings{}); err != nil {
			result.Skipped = append(result.Skipped, name)
			p.log.Warn("alpha session rejected", "session", name, "error", err)
			continue
		}

		row, err := p.db.UpsertWorkout(ctx, models.WorkoutRow{
			UserID:     userID,
			Name:       name,
			Source:     models.SourceAlpha,
			Definition: def,
		})
		if err != nil {
			return nil, fmt.Errorf("storing session %q: %w", name, err)
		}
		result.WorkoutsStored++
		result.WorkoutIDs = append(result.WorkoutIDs, row.ID)
	}

	if len(result.Skipped) > 0 {
		result.Message = fmt.Sprintf("%d of %d sessions skipped", len(result.Skipped), len(sessions))
	}
	return result, nil
}

// definitionName keeps re-imports of the same session idempotent: the store
// upserts on name, so the date disambiguates repeated routines.
func definitionName(s models.AlphaSession) string {
	if s.Date.IsZero() {
		return s.Name
	}
	return fmt.Sprintf("%s (%s)", s.Name, s.Date.Format("2006-01-02"))
}
