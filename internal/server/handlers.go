package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/claude/repcoach/internal/ingest"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/storage"
	"github.com/claude/repcoach/internal/timeline"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxBodyBytes = 4 << 20

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

// handleCreateWorkout stores a YAML or JSON definition. The definition must
// lay out into a valid timeline with the server's default settings.
func (s *Server) handleCreateWorkout(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = timeline.FormatYAML
		if strings.Contains(r.Header.Get("Content-Type"), "json") {
			format = timeline.FormatJSON
		}
	}

	def, err := timeline.LoadDefinition(http.MaxBytesReader(w, r.Body, maxBodyBytes), format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if name := r.URL.Query().Get("name"); name != "" {
		def.Name = name
	}
	if def.Name == "" {
		writeError(w, http.StatusBadRequest, "workout name is required")
		return
	}
	if _, err := timeline.Build(def, s.opts.Defaults); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	source := models.SourceManual
	if r.URL.Query().Get("source") == string(models.SourceSync) {
		source = models.SourceSync
	}

	row, err := s.db.UpsertWorkout(r.Context(), models.WorkoutRow{
		UserID:     userIDFromContext(r),
		Name:       def.Name,
		Source:     source,
		Definition: def,
	})
	if err != nil {
		s.log.Error("storing workout", "name", def.Name, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (s *Server) handleListWorkouts(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.ListWorkouts(r.Context(), userIDFromContext(r), queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []models.WorkoutRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetWorkout(w http.ResponseWriter, r *http.Request) {
	row, ok := s.loadWorkout(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleDeleteWorkout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	if err := s.db.DeleteWorkout(r.Context(), userIDFromContext(r), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// timelineRequest is the body of the timeline preview endpoints. Settings
// left out fall back to the server defaults.
type timelineRequest struct {
	Definition *models.WorkoutDefinition `json:"definition,omitempty"`
	Settings   *models.Settings          `json:"settings,omitempty"`
}

type timelineResponse struct {
	Name            string          `json:"name"`
	Settings        models.Settings `json:"settings"`
	DurationSeconds float64         `json:"duration_seconds"`
	Steps           []models.Step   `json:"steps"`
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTimelineRequest(w, r)
	if !ok {
		return
	}
	if req.Definition == nil {
		writeError(w, http.StatusBadRequest, "definition is required")
		return
	}
	s.writeTimeline(w, *req.Definition, s.settingsOr(req.Settings))
}

func (s *Server) handleWorkoutTimeline(w http.ResponseWriter, r *http.Request) {
	row, ok := s.loadWorkout(w, r)
	if !ok {
		return
	}
	req, ok := decodeTimelineRequest(w, r)
	if !ok {
		return
	}
	s.writeTimeline(w, row.Definition, s.settingsOr(req.Settings))
}

func (s *Server) writeTimeline(w http.ResponseWriter, def models.WorkoutDefinition, settings models.Settings) {
	steps, err := timeline.Build(def, settings)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, timelineResponse{
		Name:            def.Name,
		Settings:        settings,
		DurationSeconds: timeline.TotalSeconds(steps),
		Steps:           steps,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.ListSessionHistory(r.Context(), userIDFromContext(r), queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []models.SessionHistoryRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleAlphaIngest(w http.ResponseWriter, r *http.Request) {
	uid := userIDFromContext(r)
	start := time.Now()
	logID := s.startImport(uid, "alpha")
	result, err := s.alpha.Ingest(r.Context(), http.MaxBytesReader(w, r.Body, maxBodyBytes), uid)
	s.finishImport(logID, uid, "alpha", result, err, int(time.Since(start).Milliseconds()))
	if err != nil {
		s.log.Error("alpha ingest error", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.db.QueryImportLogs(r.Context(), userIDFromContext(r), queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if logs == nil {
		logs = []storage.ImportLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// startImport records a running import so an interrupted one stays visible.
// It returns 0 when the row could not be written.
func (s *Server) startImport(uid int, source string) int64 {
	ctx, cancel := contextWithTimeout()
	defer cancel()

	id, err := s.db.InsertImportLog(ctx, storage.ImportLog{UserID: uid, Source: source, Status: "running"})
	if err != nil {
		s.log.Error("failed to log import", "source", source, "error", err)
		return 0
	}
	return id
}

// finishImport records an import operation's result to the import_logs table.
func (s *Server) finishImport(id int64, uid int, source string, result *ingest.Result, importErr error, durationMs int) {
	entry := storage.ImportLog{
		UserID:     uid,
		Source:     source,
		Status:     "success",
		DurationMs: &durationMs,
	}
	if importErr != nil {
		msg := importErr.Error()
		entry.Status = "error"
		entry.ErrorMessage = &msg
	}
	if result != nil {
		entry.SessionsReceived = result.SessionsReceived
		entry.WorkoutsStored = result.WorkoutsStored
		entry.Skipped = len(result.Skipped)
	}

	ctx, cancel := contextWithTimeout()
	defer cancel()

	var err error
	if id == 0 {
		_, err = s.db.InsertImportLog(ctx, entry)
	} else {
		err = s.db.UpdateImportLog(ctx, id, entry)
	}
	if err != nil {
		s.log.Error("failed to log import", "source", source, "error", err)
	}
}

func (s *Server) loadWorkout(w http.ResponseWriter, r *http.Request) (models.WorkoutRow, bool) {
	id, ok := pathUUID(w, r)
	if !ok {
		return models.WorkoutRow{}, false
	}
	row, err := s.db.GetWorkout(r.Context(), userIDFromContext(r), id)
	if err != nil {
		writeStoreError(w, err)
		return row, false
	}
	return row, true
}

func (s *Server) settingsOr(override *models.Settings) models.Settings {
	if override == nil {
		return s.opts.Defaults
	}
	return override.WithDefaults()
}

func decodeTimelineRequest(w http.ResponseWriter, r *http.Request) (timelineRequest, bool) {
	var req timelineRequest
	if r.ContentLength == 0 {
		return req, true
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return req, false
	}
	return req, true
}

func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func queryLimit(r *http.Request) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// contextWithTimeout returns a background context with a 5-second timeout for
// writes that must outlive the request.
func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
