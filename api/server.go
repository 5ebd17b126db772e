package api

import (
	"context"
	"net/http"
	"time"

	"github.com/anthropics/convergence-engine/internal/engine"
	"github.com/anthropics/convergence-engine/internal/orchestration"
)

// Server represents the HTTP server fronting the convergence engine: the
// goal-convergence surface (spec.md §6's run_goal/status/force_strategy,
// POST /api/v1/goals and friends) over one in-process *engine.Engine.
type Server struct {
	goalHandlers *GoalHandlers
	engine       *engine.Engine
	httpServer   *http.Server
}

// NewServer creates a new Server instance with executor as the sole
// engine collaborator override, the common case for tests and simple
// deployments. Callers that also need a static workflow pipeline or a
// custom model catalog use NewServerWithConfig.
func NewServer(addr string, executor orchestration.TaskExecutorFunc) *Server {
	return NewServerWithConfig(addr, engine.Config{TaskExecutor: executor})
}

// NewServerWithConfig creates a new Server instance serving engine.Config
// cfg's goal-convergence surface.
func NewServerWithConfig(addr string, cfg engine.Config) *Server {
	eng := engine.New(cfg)
	goalHandlers := NewGoalHandlers(eng)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/goals", goalHandlers.HandleCreateGoal)
	mux.HandleFunc("GET /api/v1/goals/{id}", goalHandlers.HandleGetGoalStatus)
	mux.HandleFunc("POST /api/v1/goals/{id}/force-strategy", goalHandlers.HandleForceStrategy)

	return &Server{
		goalHandlers: goalHandlers,
		engine:       eng,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start starts the HTTP server.
// Blocks until the server is stopped or an error occurs.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server. In-flight goal runs keep
// running in their own background goroutines (spec.md's convergence loop
// has no mid-iteration cancellation point short of the per-task context
// WaveExecutor already propagates); Shutdown only stops accepting new
// requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Engine returns the convergence Engine for testing purposes.
func (s *Server) Engine() *engine.Engine {
	return s.engine
}
