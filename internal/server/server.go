// Package server exposes the plan generation pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/grouperhq/grouper/internal/auth"
	"github.com/grouperhq/grouper/internal/notify"
	"github.com/grouperhq/grouper/internal/plan"
	"gorm.io/gorm"
)

// Server wires the HTTP entry points to the generator and the store.
type Server struct {
	db             *gorm.DB
	verifier       auth.Verifier
	generator      *plan.Generator
	notifier       notify.Adapter
	model          string
	allowDebugSkip bool
	port           int
}

// Opts holds configuration for the server.
type Opts struct {
	DB        *gorm.DB
	Verifier  auth.Verifier
	Generator *plan.Generator
	// Notifier announces attempt outcomes. Optional.
	Notifier notify.Adapter
	// Model is recorded on audit rows.
	Model string
	// AllowDebugSkip honors the debug_skip_openai request flag. Keep off
	// in production.
	AllowDebugSkip bool
	Port           int
}

// New creates a Server.
func New(opts Opts) (*Server, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("server: db is required")
	}
	if opts.Verifier == nil {
		return nil, fmt.Errorf("server: verifier is required")
	}
	if opts.Generator == nil {
		return nil, fmt.Errorf("server: generator is required")
	}
	port := opts.Port
	if port <= 0 {
		port = 8080
	}
	return &Server{
		db:             opts.DB,
		verifier:       opts.Verifier,
		generator:      opts.Generator,
		notifier:       opts.Notifier,
		model:          opts.Model,
		allowDebugSkip: opts.AllowDebugSkip,
		port:           port,
	}, nil
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleHealthz)
	router.POST("/api/projects", s.handleCreateProject)
	router.POST("/api/projects/retry", s.handleRetryPlan)

	return router
}

// Start runs the HTTP server. It blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authenticate resolves the caller from the Authorization header. On failure
// it writes the 401 response and returns ok=false.
func (s *Server) authenticate(c *gin.Context) (*auth.Identity, bool) {
	token := auth.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return nil, false
	}
	ident, err := s.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid auth token"})
		return nil, false
	}
	return ident, true
}
