package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/storage"
	"github.com/google/uuid"
)

// newTestServer creates an httptest server that routes requests to handler functions
// keyed by path. Verifies the HTTP client sends correct paths and query params.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

// TestListWorkouts verifies the limit parameter and array decoding.
func TestListWorkouts(t *testing.T) {
	id := uuid.New()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/workouts": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("limit"); got != "5" {
				t.Errorf("limit=%q, want 5", got)
			}
			writeTestJSON(t, w, []models.WorkoutRow{{ID: id, Name: "Leg day", Source: models.SourceManual}})
		},
	})
	defer ts.Close()

	rows, err := NewHTTPClient(ts.URL).ListWorkouts(context.Background(), 1, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ID != id || rows[0].Name != "Leg day" {
		t.Errorf("rows = %+v", rows)
	}
}

// TestGetWorkoutNotFound verifies a 404 maps to storage.ErrNotFound.
func TestGetWorkoutNotFound(t *testing.T) {
	id := uuid.New()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/workouts/" + id.String(): func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		},
	})
	defer ts.Close()

	_, err := NewHTTPClient(ts.URL).GetWorkout(context.Background(), 1, id)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// TestListSessionHistory verifies history rows decode with their settings.
func TestListSessionHistory(t *testing.T) {
	finished := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/history": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery != "" {
				t.Errorf("query = %q, want none", r.URL.RawQuery)
			}
			writeTestJSON(t, w, []models.SessionHistoryRow{{
				ID:          uuid.New(),
				WorkoutName: "Leg day",
				Settings:    models.Settings{RestSeconds: 120},
				FinishedAt:  finished,
				StepsTotal:  7,
				Aborted:     true,
			}})
		},
	})
	defer ts.Close()

	rows, err := NewHTTPClient(ts.URL).ListSessionHistory(context.Background(), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || !rows[0].FinishedAt.Equal(finished) || rows[0].Settings.RestSeconds != 120 || !rows[0].Aborted {
		t.Errorf("rows = %+v", rows)
	}
}

// TestServerError verifies non-200 responses surface the body.
func TestServerError(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/history": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
	})
	defer ts.Close()

	_, err := NewHTTPClient(ts.URL).ListSessionHistory(context.Background(), 1, 10)
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want a non-not-found error", err)
	}
}
