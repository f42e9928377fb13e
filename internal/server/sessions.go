package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/runner"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/timeline"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// transport maps action path segments onto engine transport methods.
var transport = map[string]func(*session.Engine){
	"start":    (*session.Engine).Start,
	"pause":    (*session.Engine).Pause,
	"resume":   (*session.Engine).Resume,
	"next":     (*session.Engine).Next,
	"previous": (*session.Engine).Previous,
	"skip":     (*session.Engine).SkipExercise,
	"stop":     (*session.Engine).Stop,
	"complete": (*session.Engine).Complete,
}

// sseEvent is an SSE message to send to subscribers.
type sseEvent struct {
	Event string
	Data  string
}

// hosted is a session driven by its own runner goroutine. Every engine call
// goes through runner.Do.
type hosted struct {
	userID      int
	workoutID   uuid.UUID
	workoutName string

	engine *session.Engine
	runner *runner.Runner
	cancel context.CancelFunc
	doneCh chan struct{} // closed when the runner exits

	subs   map[chan sseEvent]struct{}
	subsMu sync.Mutex
}

func (h *hosted) snapshot(withTimeline bool) session.Snapshot {
	var snap session.Snapshot
	h.runner.Do(func() { snap = h.engine.Snapshot(withTimeline) })
	return snap
}

func (h *hosted) broadcast(event sseEvent) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			// slow subscriber, skip
		}
	}
}

func (h *hosted) subscribe() chan sseEvent {
	ch := make(chan sseEvent, 32)
	h.subsMu.Lock()
	h.subs[ch] = struct{}{}
	h.subsMu.Unlock()
	return ch
}

func (h *hosted) unsubscribe(ch chan sseEvent) {
	h.subsMu.Lock()
	delete(h.subs, ch)
	h.subsMu.Unlock()
}

// shutdown aborts a running session and waits for the runner to exit.
func (h *hosted) shutdown() {
	h.runner.Do(h.engine.Stop)
	h.cancel()
	<-h.doneCh
}

type registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*hosted
}

func newRegistry() *registry {
	return &registry{sessions: make(map[uuid.UUID]*hosted)}
}

// add stores h unless max unfinished sessions are already hosted. Finished
// sessions are evicted first to make room.
func (reg *registry) add(id uuid.UUID, h *hosted, max int) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if max > 0 && len(reg.sessions) >= max {
		for k, other := range reg.sessions {
			select {
			case <-other.doneCh:
				delete(reg.sessions, k)
			default:
			}
		}
		if len(reg.sessions) >= max {
			return false
		}
	}
	reg.sessions[id] = h
	return true
}

func (reg *registry) get(id uuid.UUID, userID int) (*hosted, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	h, ok := reg.sessions[id]
	if !ok || h.userID != userID {
		return nil, false
	}
	return h, true
}

func (reg *registry) remove(id uuid.UUID) {
	reg.mu.Lock()
	delete(reg.sessions, id)
	reg.mu.Unlock()
}

func (reg *registry) drain() []*hosted {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*hosted, 0, len(reg.sessions))
	for id, h := range reg.sessions {
		out = append(out, h)
		delete(reg.sessions, id)
	}
	return out
}

type createSessionRequest struct {
	WorkoutID uuid.UUID        `json:"workout_id"`
	Settings  *models.Settings `json:"settings,omitempty"`
	AutoStart bool             `json:"autostart"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	uid := userIDFromContext(r)
	row, err := s.db.GetWorkout(r.Context(), uid, req.WorkoutID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	settings := s.settingsOr(req.Settings)
	steps, err := timeline.Build(row.Definition, settings)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h := s.host(uid, row, steps, settings)
	if !s.sessions.add(h.engine.ID(), h, s.opts.MaxActive) {
		h.cancel()
		<-h.doneCh
		writeError(w, http.StatusTooManyRequests, fmt.Sprintf("at most %d sessions can be hosted", s.opts.MaxActive))
		return
	}
	if req.AutoStart {
		h.runner.Do(h.engine.Start)
	}
	writeJSON(w, http.StatusCreated, h.snapshot(true))
}

// host wires an engine to its runner, history recording and event fan-out,
// then starts the runner goroutine.
func (s *Server) host(uid int, row models.WorkoutRow, steps []models.Step, settings models.Settings) *hosted {
	eng := session.New(steps, session.WithLogger(s.log), session.WithSettings(settings))
	ctx, cancel := context.WithCancel(context.Background())
	h := &hosted{
		userID:      uid,
		workoutID:   row.ID,
		workoutName: row.Name,
		engine:      eng,
		runner:      runner.New(eng, runner.WithInterval(s.opts.TickInterval), runner.WithLogger(s.log)),
		cancel:      cancel,
		doneCh:      make(chan struct{}),
		subs:        make(map[chan sseEvent]struct{}),
	}

	for _, kind := range []session.Kind{session.KindStatusChange, session.KindStepChange, session.KindCue, session.KindCompleted} {
		eng.On(kind, func(ev session.Event) {
			h.broadcast(sseEvent{Event: string(ev.Kind()), Data: mustJSON(ev)})
		})
	}
	// Runs on whichever goroutine finished the session, inside runner.Do or
	// the runner loop, so the snapshot needs no extra locking.
	eng.OnCompleted(func(ev session.CompletedEvent) {
		s.recordHistory(h, eng.Snapshot(false), ev)
	})

	go func() {
		defer close(h.doneCh)
		if err := h.runner.Run(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("session runner failed", "session", eng.ID(), "error", err)
		}
	}()
	return h
}

func (s *Server) recordHistory(h *hosted, snap session.Snapshot, ev session.CompletedEvent) {
	started := snap.StartTime
	if started.IsZero() {
		started = snap.FinishedAt
	}
	workoutID := h.workoutID
	row := models.SessionHistoryRow{
		ID:             snap.ID,
		UserID:         h.userID,
		WorkoutID:      &workoutID,
		WorkoutName:    h.workoutName,
		Settings:       snap.Settings,
		StartedAt:      started,
		FinishedAt:     snap.FinishedAt,
		ElapsedSeconds: ev.ElapsedSeconds,
		StepsTotal:     ev.StepsTotal,
		StepsReached:   ev.StepsReached,
		Aborted:        ev.Aborted,
	}

	ctx, cancel := contextWithTimeout()
	defer cancel()
	if err := s.db.InsertSessionHistory(ctx, row); err != nil {
		s.log.Error("failed to record session history", "session", snap.ID, "error", err)
	}
}

func (s *Server) hostedFromPath(w http.ResponseWriter, r *http.Request) (*hosted, bool) {
	id, ok := pathUUID(w, r)
	if !ok {
		return nil, false
	}
	h, ok := s.sessions.get(id, userIDFromContext(r))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return h, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hostedFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot(r.URL.Query().Get("timeline") == "true"))
}

// handleSessionAction applies a transport command. Commands that are invalid
// in the current state are no-ops, so the response is always the snapshot.
func (s *Server) handleSessionAction(w http.ResponseWriter, r *http.Request) {
	fn, ok := transport[chi.URLParam(r, "action")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	h, ok := s.hostedFromPath(w, r)
	if !ok {
		return
	}
	h.runner.Do(func() { fn(h.engine) })
	writeJSON(w, http.StatusOK, h.snapshot(false))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hostedFromPath(w, r)
	if !ok {
		return
	}
	s.sessions.remove(h.engine.ID())
	h.shutdown()
	w.WriteHeader(http.StatusNoContent)
}

// handleSessionEvents streams status, step, cue and completion events. Ticks
// and visual state are left to in-process renderers.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hostedFromPath(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	snap := h.snapshot(false)
	fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", mustJSON(snap))
	flusher.Flush()
	if snap.State == session.StateComplete {
		return
	}

	send := func(evt sseEvent) bool {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data)
		flusher.Flush()
		return evt.Event != string(session.KindCompleted)
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			if !send(evt) {
				return
			}
		case <-h.doneCh:
			// The runner is gone; deliver what is already buffered.
			for {
				select {
				case evt := <-ch:
					if !send(evt) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{}`
	}
	return string(b)
}
