package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/toitnexus/nexus-core/internal/audit"
	"github.com/toitnexus/nexus-core/internal/auth"
	"github.com/toitnexus/nexus-core/internal/infrastructure/config"
	"github.com/toitnexus/nexus-core/internal/infrastructure/database"
	"github.com/toitnexus/nexus-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  *config.Config
	Logger  *logging.Logger
	Auth    *auth.Service
	Audit   audit.Repository // optional: enables the activity endpoint
	DB      *database.DB     // health checks and diagnostics
	Version string
}

// Server is the HTTP API server for Nexus Core.
//
// It manages the HTTP listener, routes, middleware, and the auth gateway.
// The server is created with New() and started with Start().
type Server struct {
	cfg       *config.Config
	logger    *logging.Logger
	auth      *auth.Service
	audit     audit.Repository
	db        *database.DB
	version   string
	server    *http.Server
	loginRate *rateLimiter
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}

	s := &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		auth:    deps.Auth,
		audit:   deps.Audit,
		db:      deps.DB,
		version: deps.Version,
	}

	if deps.Config.Auth.RateLimit.Enabled {
		s.loginRate = newRateLimiter(
			deps.Config.Auth.RateLimit.MaxAttempts,
			deps.Config.Auth.RateLimitWindow(),
		)
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.loginRate != nil {
		go s.loginRate.run(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.API.Host, s.cfg.API.Port),
		Handler:           router,
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		var err error
		if s.cfg.API.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.API.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.API.TLS.CertFile, s.cfg.API.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
