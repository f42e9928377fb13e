package mcp

import (
	"context"
	"log/slog"

	"github.com/claude/repcoach/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server with all tools and resources registered.
// defaults are the builder settings used when a tool call does not override them.
func New(ds DataSource, defaults models.Settings, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("repcoach", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("repcoach guided workout server. List stored workouts, preview the timed step timeline a workout produces, and review finished sessions. All data is scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, defaults: defaults.WithDefaults(), log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolListWorkouts, Handler: h.listWorkouts},
		server.ServerTool{Tool: toolGetWorkout, Handler: h.getWorkout},
		server.ServerTool{Tool: toolBuildTimeline, Handler: h.buildTimeline},
		server.ServerTool{Tool: toolGetSessionHistory, Handler: h.getSessionHistory},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resRecentSessions, Handler: h.recentSessions},
		server.ServerResource{Resource: resWorkoutCatalog, Handler: h.workoutCatalog},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds       DataSource
	defaults models.Settings
	log      *slog.Logger
}

// --- Resource definitions ---

var resRecentSessions = mcp.NewResource(
	"repcoach://recent_sessions",
	"Recent Sessions",
	mcp.WithResourceDescription("Guided sessions finished in the last 14 days"),
	mcp.WithMIMEType("application/json"),
)

var resWorkoutCatalog = mcp.NewResource(
	"repcoach://workout_catalog",
	"Workout Catalog",
	mcp.WithResourceDescription("Stored workouts with their exercise names and planned duration"),
	mcp.WithMIMEType("application/json"),
)
