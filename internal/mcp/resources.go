package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/timeline"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

func (h *handlers) recentSessions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uid := UserIDFromContext(ctx)
	since := time.Now().AddDate(0, 0, -14)

	rows, err := h.ds.ListSessionHistory(ctx, uid, 200)
	if err != nil {
		return nil, err
	}
	recent := []models.SessionHistoryRow{}
	for _, r := range rows {
		if r.FinishedAt.After(since) {
			recent = append(recent, r)
		}
	}
	return jsonContents(req.Params.URI, recent)
}

// catalogEntry summarises a stored workout without its full definition.
type catalogEntry struct {
	ID             uuid.UUID            `json:"id"`
	Name           string               `json:"name"`
	Source         models.WorkoutSource `json:"source"`
	Exercises      []string             `json:"exercises"`
	PlannedSeconds float64              `json:"planned_seconds,omitempty"`
	BuildError     string               `json:"build_error,omitempty"`
}

func (h *handlers) workoutCatalog(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	rows, err := h.ds.ListWorkouts(ctx, UserIDFromContext(ctx), 200)
	if err != nil {
		return nil, err
	}
	catalog := make([]catalogEntry, 0, len(rows))
	for _, r := range rows {
		e := catalogEntry{ID: r.ID, Name: r.Name, Source: r.Source, Exercises: exerciseNames(r.Definition)}
		if steps, err := timeline.Build(r.Definition, h.defaults); err != nil {
			e.BuildError = err.Error()
		} else {
			e.PlannedSeconds = timeline.TotalSeconds(steps)
		}
		catalog = append(catalog, e)
	}
	return jsonContents(req.Params.URI, catalog)
}

func exerciseNames(def models.WorkoutDefinition) []string {
	var names []string
	for _, l := range def.Lifts {
		names = append(names, l.Name)
	}
	for _, g := range def.Accessories {
		for _, a := range g.Exercises {
			names = append(names, a.Name)
		}
	}
	for _, e := range def.Exercises {
		names = append(names, e.Name)
	}
	return names
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
