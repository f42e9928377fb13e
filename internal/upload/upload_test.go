package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/claude/repcoach/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

const squatYAML = `name: Leg day
exercises:
  - name: Squat
    sets: 3
    reps: 5
    load_kg: 100
`

const benchJSON = `{"exercises":[{"name":"Bench","sets":2,"reps":8,"load_kg":60}]}`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type received struct {
	name   string
	format string
	source string
	body   string
}

// fakeServer records accepted definitions and answers like the workout endpoint.
type fakeServer struct {
	mu       sync.Mutex
	got      []received
	statuses []int
}

func (f *fakeServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/workouts" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)

		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.statuses) > 0 {
			code := f.statuses[0]
			f.statuses = f.statuses[1:]
			if code != http.StatusCreated {
				http.Error(w, "nope", code)
				return
			}
		}
		q := r.URL.Query()
		f.got = append(f.got, received{name: q.Get("name"), format: q.Get("format"), source: q.Get("source"), body: string(body)})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.WorkoutRow{ID: uuid.New(), Name: q.Get("name"), Source: models.SourceSync})
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func openState(t *testing.T) *StateDB {
	t.Helper()
	state, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = state.Close() })
	return state
}

// TestRunUploadsAndSkipsUnchanged verifies new files are sent once and a
// second run skips them.
func TestRunUploadsAndSkipsUnchanged(t *testing.T) {
	fs := &fakeServer{}
	ts := httptest.NewServer(fs.handler(t))
	defer ts.Close()

	root := t.TempDir()
	writeFile(t, root, "legs.yaml", squatYAML)
	writeFile(t, root, "upper/bench.json", benchJSON)
	writeFile(t, root, "notes.txt", "ignored")
	writeFile(t, root, ".git/config.yaml", "ignored: true")

	state := openState(t)
	client := NewClient(ts.URL, "secret")

	stats, err := New(client, state, root, models.Settings{}, false, quietLogger()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesTotal != 2 || stats.FilesUploaded != 2 || stats.FilesErrored != 0 {
		t.Errorf("first run stats = %+v", stats)
	}

	sort.Slice(fs.got, func(i, j int) bool { return fs.got[i].name < fs.got[j].name })
	want := []received{
		{name: "Leg day", format: "yaml", source: "sync", body: squatYAML},
		{name: "bench", format: "json", source: "sync", body: benchJSON},
	}
	if diff := cmp.Diff(want, fs.got, cmp.AllowUnexported(received{})); diff != "" {
		t.Errorf("received (-want +got):\n%s", diff)
	}

	stats, err = New(client, state, root, models.Settings{}, false, quietLogger()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesSkipped != 2 || stats.FilesUploaded != 0 {
		t.Errorf("second run stats = %+v", stats)
	}

	last, err := state.GetSyncState(LastSyncKey)
	if err != nil || last == "" {
		t.Errorf("last sync = %q, %v", last, err)
	}
}

// TestRunInvalidDefinitions verifies local and server rejections are counted
// and never marked uploaded.
func TestRunInvalidDefinitions(t *testing.T) {
	fs := &fakeServer{statuses: []int{http.StatusBadRequest}}
	ts := httptest.NewServer(fs.handler(t))
	defer ts.Close()

	root := t.TempDir()
	writeFile(t, root, "broken.yaml", "exercises: [")
	writeFile(t, root, "legs.yaml", squatYAML)

	state := openState(t)
	stats, err := New(NewClient(ts.URL, "secret"), state, root, models.Settings{}, false, quietLogger()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesErrored != 2 || stats.FilesUploaded != 0 {
		t.Errorf("stats = %+v", stats)
	}
	sort.Strings(stats.Invalid)
	if diff := cmp.Diff([]string{"broken.yaml", "legs.yaml"}, stats.Invalid); diff != "" {
		t.Errorf("invalid (-want +got):\n%s", diff)
	}

	hash, _ := HashFile(filepath.Join(root, "legs.yaml"))
	if ok, _ := state.IsUploaded("legs.yaml", int64(len(squatYAML)), hash); ok {
		t.Error("rejected file marked uploaded")
	}
}

// TestRunDryRun verifies nothing is sent or recorded.
func TestRunDryRun(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "legs.yml", squatYAML)

	state := openState(t)
	stats, err := New(nil, state, root, models.Settings{}, true, quietLogger()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesUploaded != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if last, _ := state.GetSyncState(LastSyncKey); last != "" {
		t.Errorf("dry run saved last sync %q", last)
	}
}

// TestSendDefinitionRetries verifies 5xx responses are retried and 4xx are not.
func TestSendDefinitionRetries(t *testing.T) {
	fs := &fakeServer{statuses: []int{http.StatusBadGateway, http.StatusCreated}}
	ts := httptest.NewServer(fs.handler(t))
	defer ts.Close()

	c := NewClient(ts.URL, "secret")
	c.backoff = time.Millisecond

	row, err := c.SendDefinition(context.Background(), "Leg day", "yaml", []byte(squatYAML))
	if err != nil {
		t.Fatal(err)
	}
	if row.Name != "Leg day" || row.ID == uuid.Nil {
		t.Errorf("row = %+v", row)
	}

	c.apiKey = "wrong"
	_, err = c.SendDefinition(context.Background(), "Leg day", "yaml", []byte(squatYAML))
	if !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
}

// TestSyncState verifies the sync_state table operations.
func TestSyncState(t *testing.T) {
	state := openState(t)

	val, err := state.GetSyncState(LastSyncKey)
	if err != nil {
		t.Fatalf("GetSyncState returned error: %v", err)
	}
	if val != "" {
		t.Errorf("expected empty string, got %q", val)
	}

	for _, want := range []string{"2026-02-01T00:00:00Z", "2026-03-01T00:00:00Z"} {
		if err := state.SetSyncState(LastSyncKey, want); err != nil {
			t.Fatalf("SetSyncState returned error: %v", err)
		}
		val, err = state.GetSyncState(LastSyncKey)
		if err != nil {
			t.Fatalf("GetSyncState returned error: %v", err)
		}
		if val != want {
			t.Errorf("expected %s, got %q", want, val)
		}
	}
}
