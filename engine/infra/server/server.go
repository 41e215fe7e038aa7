package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vimarsh-ai/vimarsh/engine/auth"
	"github.com/vimarsh-ai/vimarsh/engine/auth/user"
	"github.com/vimarsh-ai/vimarsh/engine/budget"
	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/engine/guidance"
	"github.com/vimarsh-ai/vimarsh/engine/infra/monitoring"
	"github.com/vimarsh-ai/vimarsh/engine/personality"
	"github.com/vimarsh-ai/vimarsh/engine/security"
	"github.com/vimarsh-ai/vimarsh/pkg/config"
	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

// Deps is the explicit dependency set the edge serves from. The CLI
// builds it once at startup; nothing here is a global.
type Deps struct {
	Config     *config.Config
	Reports    []config.SectionReport
	Log        logger.Logger
	Auth       *auth.Service
	Limiter    *security.RateLimiter
	Pipeline   *guidance.Pipeline
	Registry   *personality.Registry
	Enforcer   *budget.Enforcer
	Monitoring *monitoring.Service
	Metrics    *monitoring.GuidanceMetrics
	StoreMode  string
}

// Server is the HTTP edge: routing, CORS, auth gating, rate limiting,
// and the single error-to-status translation point.
type Server struct {
	deps        Deps
	development bool
	router      *gin.Engine
	httpServer  *http.Server
}

func NewServer(deps Deps) *Server {
	s := &Server{
		deps:        deps,
		development: !deps.Config.IsProduction(),
	}
	s.router = s.buildRouter()
	return s
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) buildRouter() *gin.Engine {
	if s.development {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(loggerMiddleware(s.deps.Log))
	r.Use(corsMiddleware(s.deps.Config.Server.AllowedOrigins()))

	r.GET("/healthz", s.handleHealth)
	if s.deps.Monitoring != nil && s.deps.Monitoring.Enabled() {
		r.GET(s.deps.Monitoring.Path(), gin.WrapH(s.deps.Monitoring.Handler()))
	}

	authGate := auth.Middleware(s.deps.Auth, s.deps.Config.Auth.Enabled)
	r.POST("/guidance",
		s.authFailureLimiter(),
		authGate,
		rateLimitMiddleware(s.deps.Limiter, security.CategoryGeneral, s.development),
		s.handleGuidance,
	)

	admin := r.Group("/admin",
		s.authFailureLimiter(),
		authGate,
		auth.RequireRole(user.RoleAdmin),
		rateLimitMiddleware(s.deps.Limiter, security.CategoryAdmin, s.development),
		s.adminAudit,
	)
	admin.GET("/role", s.handleRole)
	admin.POST("/budget/:user_id", s.handleSetBudget)
	admin.DELETE("/block/:user_id", s.handleUnblock)
	return r
}

// authFailureLimiter charges failed authentications against the auth
// rate category, keyed by client IP. Repeat offenders land on the block
// list and are refused before the token is even parsed.
func (s *Server) authFailureLimiter() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.deps.Config.Auth.Enabled {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if s.deps.Limiter.Blocked(ip) {
			respondError(c, s.development, core.NewError(nil, core.CodeIPBlocked,
				"too many failed authentication attempts", nil))
			return
		}
		c.Next()
		if c.Writer.Status() == http.StatusUnauthorized {
			if err := s.deps.Limiter.Allow(c.Request.Context(), security.CategoryAuth, ip); err != nil {
				security.LogSecurityEvent(c.Request.Context(), "auth_rate_limited", map[string]any{
					"client_ip": ip,
				})
			}
		}
	}
}

// Start serves until the context is canceled, then drains in-flight
// requests within the shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.deps.Config.Server.Host, s.deps.Config.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.deps.Config.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.deps.Log.Info("http server listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.deps.Log.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}
