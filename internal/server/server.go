// Package server exposes the chat gateway over HTTP: the websocket
// endpoint plus health, metrics and unread-count routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/zulandar/signalbox/internal/db"
	"github.com/zulandar/signalbox/internal/gateway"
	"github.com/zulandar/signalbox/internal/identity"
	"gorm.io/gorm"
)

// Authenticator resolves the identity behind a request.
type Authenticator interface {
	Authenticate(r *http.Request) (identity.Identity, bool)
}

// HealthCheck is an extra dependency probed by /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Opts holds configuration for the server.
type Opts struct {
	DB             *gorm.DB
	Gateway        *gateway.Gateway
	Auth           Authenticator
	Unread         gateway.UnreadCounter
	Port           int
	AllowedOrigins []string // empty means same-origin only
	Checks         []HealthCheck
	Logger         zerolog.Logger
}

// Server serves the HTTP routes.
type Server struct {
	opts     Opts
	engine   *gin.Engine
	upgrader websocket.Upgrader
	log      zerolog.Logger

	// sessionCtx bounds websocket sessions; hijacked connections outlive
	// their request context.
	sessionCtx context.Context
}

// New builds the server and its routes.
func New(opts Opts) (*Server, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("server: db is required")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("server: gateway is required")
	}
	if opts.Auth == nil {
		return nil, fmt.Errorf("server: authenticator is required")
	}
	if opts.Unread == nil {
		return nil, fmt.Errorf("server: unread counter is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8090
	}

	s := &Server{
		opts:       opts,
		log:        opts.Logger,
		sessionCtx: context.Background(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.log))
	registerRoutes(router, s)
	s.engine = router
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on the configured port. It blocks until ctx is cancelled,
// then shuts down gracefully; open websocket sessions are closed.
func (s *Server) Run(ctx context.Context) error {
	s.sessionCtx = ctx

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info().Int("port", s.opts.Port).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// healthy probes the database and every extra check.
func (s *Server) healthy(ctx context.Context) error {
	if err := db.Ping(s.opts.DB.WithContext(ctx)); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	for _, hc := range s.opts.Checks {
		if err := hc.Check(ctx); err != nil {
			return fmt.Errorf("%s: %w", hc.Name, err)
		}
	}
	return nil
}

// requestLogger logs each request after it completes. Probe routes log at
// debug level.
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		evt := logger.Info()
		switch {
		case path == "/healthz" || path == "/metrics":
			evt = logger.Debug()
		case c.Writer.Status() >= http.StatusInternalServerError:
			evt = logger.Error()
		}
		evt.Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
