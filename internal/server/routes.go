package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes sets up all routes on the Gin router.
func registerRoutes(router *gin.Engine, s *Server) {
	router.GET("/ws", s.handleWebsocket)
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/api/unread", s.handleUnread)
}

// handleWebsocket upgrades the request and runs the session until it ends.
// Requests without a valid session token still connect, anonymously.
func (s *Server) handleWebsocket(c *gin.Context) {
	ident, ok := s.opts.Auth.Authenticate(c.Request)

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the error response.
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	if ok {
		s.opts.Gateway.Serve(s.sessionCtx, &ident, conn)
		return
	}
	s.opts.Gateway.Serve(s.sessionCtx, nil, conn)
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.healthy(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleUnread serves the navbar badge: unread counts for the caller.
func (s *Server) handleUnread(c *gin.Context) {
	ident, ok := s.opts.Auth.Authenticate(c.Request)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	counts, err := s.opts.Unread.Counts(c.Request.Context(), ident.ID)
	if err != nil {
		s.log.Error().Err(err).Uint("user_id", ident.ID).Msg("unread counts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unread counts unavailable"})
		return
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "by_sender": counts})
}

// originChecker accepts requests without an Origin header, then either the
// configured origins ("*" allows any) or, when none are configured, only
// the request's own host.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(set) == 0 {
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		}
		return set["*"] || set[strings.ToLower(origin)]
	}
}
