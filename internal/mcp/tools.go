package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/storage"
	"github.com/claude/repcoach/internal/timeline"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// --- Tool definitions ---

var toolListWorkouts = mcp.NewTool("list_workouts",
	mcp.WithDescription("List stored workout definitions, most recently updated first. Returns id, name, source (manual, alpha, sync) and the definition."),
	mcp.WithNumber("limit", mcp.Description("Maximum number of workouts. Defaults to 50.")),
)

var toolGetWorkout = mcp.NewTool("get_workout",
	mcp.WithDescription("Get one stored workout definition by id: major lifts with training maxes, accessory groups and exercise lists."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Workout UUID")),
)

var toolBuildTimeline = mcp.NewTool("build_timeline",
	mcp.WithDescription("Lay a workout out into the timed step sequence a guided session runs: setup, warmups, working sets, rests, transitions and summary, with voice cue texts and tempo phases. Pass either workout_id or an inline definition."),
	mcp.WithString("workout_id", mcp.Description("Stored workout UUID")),
	mcp.WithString("definition", mcp.Description("Inline workout definition as YAML or JSON text")),
	mcp.WithString("format", mcp.Description("Format of the inline definition. Defaults to yaml."), mcp.Enum("yaml", "json")),
	mcp.WithNumber("rest_seconds", mcp.Description("Rest between major lift sets. Defaults to 90.")),
	mcp.WithNumber("accessory_rest_seconds", mcp.Description("Rest between accessory and exercise-list sets. Defaults to 60.")),
	mcp.WithNumber("progression_cycle", mcp.Description("Completed progression cycles added to every training max.")),
	mcp.WithBoolean("tempo", mcp.Description("Drive work steps by tempo when an exercise has one. Defaults to true.")),
	mcp.WithBoolean("countdown", mcp.Description("Add rest countdown cues. Defaults to true.")),
)

var toolGetSessionHistory = mcp.NewTool("get_session_history",
	mcp.WithDescription("Finished guided sessions, newest first: workout name, start and finish time, elapsed seconds, steps reached and whether the session was aborted."),
	mcp.WithNumber("limit", mcp.Description("Maximum number of sessions. Defaults to 20.")),
	mcp.WithString("workout", mcp.Description("Filter by workout name (partial match, case-insensitive)")),
)

// --- Tool handlers ---

func (h *handlers) listWorkouts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, err := h.ds.ListWorkouts(ctx, UserIDFromContext(ctx), req.GetInt("limit", 50))
	if err != nil {
		h.log.Error("mcp list_workouts", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(rows)
}

func (h *handlers) getWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return mcp.NewToolResultError("invalid id: " + err.Error()), nil
	}

	row, err := h.ds.GetWorkout(ctx, UserIDFromContext(ctx), id)
	if errors.Is(err, storage.ErrNotFound) {
		return mcp.NewToolResultError("workout not found"), nil
	}
	if err != nil {
		h.log.Error("mcp get_workout", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(row)
}

// timelineStep is the condensed step shape returned to the model.
type timelineStep struct {
	Index      int                 `json:"index"`
	Type       models.StepType     `json:"type"`
	Exercise   string              `json:"exercise,omitempty"`
	Set        string              `json:"set,omitempty"`
	LoadKg     *float64            `json:"load_kg,omitempty"`
	Duration   float64             `json:"duration_seconds"`
	TargetReps int                 `json:"target_reps,omitempty"`
	Tempo      []models.TempoPhase `json:"tempo,omitempty"`
	Cues       []string            `json:"cues,omitempty"`
}

type timelineSummary struct {
	Name            string          `json:"name"`
	DurationSeconds float64         `json:"duration_seconds"`
	Settings        models.Settings `json:"settings"`
	Steps           []timelineStep  `json:"steps"`
}

func (h *handlers) buildTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var def models.WorkoutDefinition
	switch {
	case req.GetString("workout_id", "") != "":
		id, err := uuid.Parse(req.GetString("workout_id", ""))
		if err != nil {
			return mcp.NewToolResultError("invalid workout_id: " + err.Error()), nil
		}
		row, err := h.ds.GetWorkout(ctx, UserIDFromContext(ctx), id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcp.NewToolResultError("workout not found"), nil
		}
		if err != nil {
			h.log.Error("mcp build_timeline", "error", err)
			return mcp.NewToolResultError("query failed: " + err.Error()), nil
		}
		def = row.Definition
	case req.GetString("definition", "") != "":
		var err error
		def, err = timeline.LoadDefinition(strings.NewReader(req.GetString("definition", "")), req.GetString("format", timeline.FormatYAML))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	default:
		return mcp.NewToolResultError("workout_id or definition is required"), nil
	}

	settings := h.settingsFrom(req)
	steps, err := timeline.Build(def, settings)
	if err != nil {
		return mcp.NewToolResultError("cannot build timeline: " + err.Error()), nil
	}
	return jsonResult(summarize(def.Name, settings, steps))
}

// settingsFrom applies tool-call overrides on top of the server defaults.
func (h *handlers) settingsFrom(req mcp.CallToolRequest) models.Settings {
	s := h.defaults
	s.RestSeconds = req.GetFloat("rest_seconds", s.RestSeconds)
	s.AccessoryRestSeconds = req.GetFloat("accessory_rest_seconds", s.AccessoryRestSeconds)
	s.Progression.Cycle = req.GetInt("progression_cycle", s.Progression.Cycle)
	args := req.GetArguments()
	if _, ok := args["tempo"]; ok {
		v := req.GetBool("tempo", true)
		s.TempoEnabled = &v
	}
	if _, ok := args["countdown"]; ok {
		v := req.GetBool("countdown", true)
		s.CountdownCues = &v
	}
	return s.WithDefaults()
}

func summarize(name string, settings models.Settings, steps []models.Step) timelineSummary {
	out := timelineSummary{
		Name:            name,
		DurationSeconds: timeline.TotalSeconds(steps),
		Settings:        settings,
		Steps:           make([]timelineStep, len(steps)),
	}
	for i, s := range steps {
		ts := timelineStep{
			Index:      i,
			Type:       s.Type,
			Exercise:   s.ExerciseName,
			LoadKg:     s.Load,
			Duration:   s.Duration,
			TargetReps: s.TargetReps,
			Tempo:      s.TempoPhases,
		}
		if s.TotalSets > 0 {
			ts.Set = fmt.Sprintf("%d/%d", s.SetNumber, s.TotalSets)
		}
		for _, c := range s.VoiceCues {
			ts.Cues = append(ts.Cues, c.Text)
		}
		out.Steps[i] = ts
	}
	return out
}

func (h *handlers) getSessionHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, err := h.ds.ListSessionHistory(ctx, UserIDFromContext(ctx), req.GetInt("limit", 20))
	if err != nil {
		h.log.Error("mcp get_session_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	if filter := strings.ToLower(req.GetString("workout", "")); filter != "" {
		kept := rows[:0]
		for _, r := range rows {
			if strings.Contains(strings.ToLower(r.WorkoutName), filter) {
				kept = append(kept, r)
			}
		}
		rows = kept
	}
	if rows == nil {
		rows = []models.SessionHistoryRow{}
	}
	return jsonResult(rows)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
