package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/claude/repcoach/internal/session"
	"go.uber.org/goleak"
)

func createSession(t *testing.T, s *Server, body string) session.Snapshot {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/v1/sessions", body, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, body = %s", rec.Code, rec.Body)
	}
	var snap session.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return snap
}

func sessionAction(t *testing.T, s *Server, id, action string) session.Snapshot {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/"+action, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("%s status = %d, body = %s", action, rec.Code, rec.Body)
	}
	var snap session.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return snap
}

// TestHostedSessionLifecycle drives a hosted session through transport
// actions and checks the history row written on abort.
func TestHostedSessionLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	db := newMemStore()
	s := newTestServer(db, SessionOptions{})
	defer s.Close()
	row := createLegDay(t, s)

	snap := createSession(t, s, `{"workout_id":"`+row.ID.String()+`"}`)
	if snap.State != session.StateIdle || snap.StepsTotal != 7 || len(snap.Timeline) != 7 {
		t.Fatalf("created snapshot = %+v", snap)
	}
	id := snap.ID.String()

	if got := sessionAction(t, s, id, "start"); got.State != session.StateActive {
		t.Errorf("after start state = %s", got.State)
	}
	if got := sessionAction(t, s, id, "pause"); got.State != session.StatePaused {
		t.Errorf("after pause state = %s", got.State)
	}
	if got := sessionAction(t, s, id, "next"); got.CurrentStepIndex != 1 || got.State != session.StatePaused {
		t.Errorf("after next = index %d state %s", got.CurrentStepIndex, got.State)
	}
	if got := sessionAction(t, s, id, "resume"); got.State != session.StateActive {
		t.Errorf("after resume state = %s", got.State)
	}
	got := sessionAction(t, s, id, "stop")
	if got.State != session.StateComplete || !got.Aborted {
		t.Errorf("after stop = %s aborted=%v", got.State, got.Aborted)
	}

	if n := db.historyLen(); n != 1 {
		t.Fatalf("history rows = %d, want 1", n)
	}
	rec := do(t, s, http.MethodGet, "/api/v1/history", "", nil)
	var hist []struct {
		WorkoutName  string `json:"workout_name"`
		StepsReached int    `json:"steps_reached"`
		Aborted      bool   `json:"aborted"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&hist); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hist) != 1 || hist[0].WorkoutName != "Leg day" || !hist[0].Aborted || hist[0].StepsReached != 2 {
		t.Errorf("history = %+v", hist)
	}

	if rec := do(t, s, http.MethodDelete, "/api/v1/sessions/"+id, "", nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/v1/sessions/"+id, "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

// TestSessionActionErrors covers unknown actions, sessions and workouts.
func TestSessionActionErrors(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestServer(newMemStore(), SessionOptions{})
	defer s.Close()
	row := createLegDay(t, s)
	snap := createSession(t, s, `{"workout_id":"`+row.ID.String()+`"}`)

	if rec := do(t, s, http.MethodPost, "/api/v1/sessions/"+snap.ID.String()+"/rewind", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown action status = %d, want 404", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/sessions/"+row.ID.String()+"/start", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/sessions", `{"workout_id":"`+snap.ID.String()+`"}`, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown workout status = %d, want 404", rec.Code)
	}
}

// TestSessionLimit verifies the hosted session cap.
func TestSessionLimit(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestServer(newMemStore(), SessionOptions{MaxActive: 1})
	defer s.Close()
	row := createLegDay(t, s)
	body := `{"workout_id":"` + row.ID.String() + `"}`

	first := createSession(t, s, body)
	if rec := do(t, s, http.MethodPost, "/api/v1/sessions", body, nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second session status = %d, want 429", rec.Code)
	}

	// A finished session frees its slot once its runner has exited.
	sessionAction(t, s, first.ID.String(), "start")
	sessionAction(t, s, first.ID.String(), "complete")
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec := do(t, s, http.MethodPost, "/api/v1/sessions", body, nil)
		if rec.Code == http.StatusCreated {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("slot never freed, last status %d", rec.Code)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestSessionEventStream verifies the SSE feed carries the snapshot, the
// transport-driven events and ends on completion.
func TestSessionEventStream(t *testing.T) {
		s := newTestServer(newMemStore(), SessionOptions{})
	ts := httptest.NewServer(s)
	defer ts.Close()
	defer s.Close()

	row := createLegDay(t, s)
	snap := createSession(t, s, `{"workout_id":"`+row.ID.String()+`"}`)
	id := snap.ID.String()

	resp, err := http.Get(ts.URL + "/api/v1/sessions/" + id + "/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		t.Helper()
		for lines.Scan() {
			if name, ok := strings.CutPrefix(lines.Text(), "event: "); ok {
				return name
			}
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return ""
	}

	if got := next(); got != "snapshot" {
		t.Fatalf("first event = %q, want snapshot", got)
	}
	sessionAction(t, s, id, "start")
	sessionAction(t, s, id, "complete")

	var seen []string
	for {
		ev := next()
		seen = append(seen, ev)
		if ev == string(session.KindCompleted) {
			break
		}
	}
	want := []string{"statusChange", "stepChange", "cue", "statusChange", "completed"}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", seen, want)
	}
}
