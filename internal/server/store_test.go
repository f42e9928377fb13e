package server

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/repcoach/internal/ingest/alpha"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/storage"
	"github.com/google/uuid"
)

const testAPIKey = "secret"

// memStore is an in-memory Store.
type memStore struct {
	mu       sync.Mutex
	users    map[string]int
	workouts map[uuid.UUID]models.WorkoutRow
	history  []models.SessionHistoryRow
	imports  []storage.ImportLog
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]int),
		workouts: make(map[uuid.UUID]models.WorkoutRow),
	}
}

func (m *memStore) GetOrCreateUser(_ context.Context, login, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.users[login]; ok {
		return id, nil
	}
	id := len(m.users) + 1
	m.users[login] = id
	return id, nil
}

func (m *memStore) UpsertWorkout(_ context.Context, row models.WorkoutRow) (models.WorkoutRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.workouts {
		if existing.UserID == row.UserID && existing.Name == row.Name {
			row.ID = id
			row.CreatedAt = existing.CreatedAt
		}
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
		row.CreatedAt = time.Now()
	}
	row.UpdatedAt = time.Now()
	m.workouts[row.ID] = row
	return row, nil
}

func (m *memStore) GetWorkout(_ context.Context, userID int, id uuid.UUID) (models.WorkoutRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.workouts[id]
	if !ok || row.UserID != userID {
		return models.WorkoutRow{}, storage.ErrNotFound
	}
	return row, nil
}

func (m *memStore) ListWorkouts(_ context.Context, userID, _ int) ([]models.WorkoutRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkoutRow
	for _, row := range m.workouts {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memStore) DeleteWorkout(_ context.Context, userID int, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.workouts[id]
	if !ok || row.UserID != userID {
		return storage.ErrNotFound
	}
	delete(m.workouts, id)
	return nil
}

func (m *memStore) InsertSessionHistory(_ context.Context, row models.SessionHistoryRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, row)
	return nil
}

func (m *memStore) ListSessionHistory(_ context.Context, userID, _ int) ([]models.SessionHistoryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SessionHistoryRow
	for _, h := range m.history {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memStore) InsertImportLog(_ context.Context, l storage.ImportLog) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = int64(len(m.imports) + 1)
	m.imports = append(m.imports, l)
	return l.ID, nil
}

func (m *memStore) UpdateImportLog(_ context.Context, id int64, l storage.ImportLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.imports {
		if m.imports[i].ID == id {
			l.ID, l.CreatedAt = id, m.imports[i].CreatedAt
			m.imports[i] = l
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *memStore) QueryImportLogs(_ context.Context, userID, _ int) ([]storage.ImportLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ImportLog
	for _, l := range m.imports {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) historyLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(db *memStore, opts SessionOptions) *Server {
	log := quietLogger()
	if opts.TickInterval == 0 {
		opts.TickInterval = time.Millisecond
	}
	return New(db, alpha.NewProvider(db, log), testAPIKey, opts, log)
}
