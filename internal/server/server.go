package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/claude/repcoach/internal/ingest/alpha"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Store is the persistence the handlers need. *storage.DB satisfies it.
type Store interface {
	GetOrCreateUser(ctx context.Context, login, displayName string) (int, error)

	UpsertWorkout(ctx context.Context, row models.WorkoutRow) (models.WorkoutRow, error)
	GetWorkout(ctx context.Context, userID int, id uuid.UUID) (models.WorkoutRow, error)
	ListWorkouts(ctx context.Context, userID, limit int) ([]models.WorkoutRow, error)
	DeleteWorkout(ctx context.Context, userID int, id uuid.UUID) error

	InsertSessionHistory(ctx context.Context, row models.SessionHistoryRow) error
	ListSessionHistory(ctx context.Context, userID, limit int) ([]models.SessionHistoryRow, error)

	InsertImportLog(ctx context.Context, log storage.ImportLog) (int64, error)
	UpdateImportLog(ctx context.Context, id int64, log storage.ImportLog) error
	QueryImportLogs(ctx context.Context, userID, limit int) ([]storage.ImportLog, error)
}

// SessionOptions configures hosted sessions.
type SessionOptions struct {
	TickInterval time.Duration
	MaxActive    int
	Defaults     models.Settings
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	db       Store
	alpha    *alpha.Provider
	log      *slog.Logger
	apiKey   string
	router   chi.Router
	opts     SessionOptions
	whois    WhoIser
	sessions *registry
}

// New creates a new Server with all routes configured.
func New(db Store, alphaProvider *alpha.Provider, apiKey string, opts SessionOptions, log *slog.Logger) *Server {
	opts.Defaults = opts.Defaults.WithDefaults()
	s := &Server{
		db:       db,
		alpha:    alphaProvider,
		log:      log,
		apiKey:   apiKey,
		router:   chi.NewRouter(),
		opts:     opts,
		sessions: newRegistry(),
	}
	s.routes()
	return s
}

// SetTailscale resolves request identities through the tailnet instead of
// the single local dev user.
func (s *Server) SetTailscale(w WhoIser) {
	s.whois = w
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close aborts every hosted session and waits for their runners to exit.
func (s *Server) Close() {
	for _, h := range s.sessions.drain() {
		h.shutdown()
	}
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Group(func(r chi.Router) {
		r.Use(s.identity)

		// Write endpoints (API key required)
		r.Group(func(r chi.Router) {
			r.Use(APIKeyAuth(s.apiKey))
			r.Post("/api/v1/workouts", s.handleCreateWorkout)
			r.Delete("/api/v1/workouts/{id}", s.handleDeleteWorkout)
			r.Post("/api/v1/ingest/alpha", s.handleAlphaIngest)
		})

		r.Get("/api/v1/me", s.handleMe)
		r.Get("/api/v1/workouts", s.handleListWorkouts)
		r.Get("/api/v1/workouts/{id}", s.handleGetWorkout)
		r.Post("/api/v1/workouts/{id}/timeline", s.handleWorkoutTimeline)
		r.Post("/api/v1/timeline", s.handleTimeline)

		r.Post("/api/v1/sessions", s.handleCreateSession)
		r.Get("/api/v1/sessions/{id}", s.handleGetSession)
		r.Get("/api/v1/sessions/{id}/events", s.handleSessionEvents)
		r.Post("/api/v1/sessions/{id}/{action}", s.handleSessionAction)
		r.Delete("/api/v1/sessions/{id}", s.handleDeleteSession)

		r.Get("/api/v1/history", s.handleHistory)
		r.Get("/api/v1/imports", s.handleImportLogs)
	})
}
