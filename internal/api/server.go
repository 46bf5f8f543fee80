package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/users"
)

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.ServerConfig
	Logger *logging.Logger
	Engine *authcore.Engine
	Users  *users.MemoryStore

	// Metrics is mounted at MetricsPath when both are set.
	Metrics     http.Handler
	MetricsPath string

	// PruneInterval drives the registry janitor. Zero disables it.
	PruneInterval time.Duration
	Version       string
}

// Server is the HTTP API server. It is created with New and started with Start.
type Server struct {
	cfg           config.ServerConfig
	logger        *logging.Logger
	engine        *authcore.Engine
	users         *users.MemoryStore
	metrics       http.Handler
	metricsPath   string
	pruneInterval time.Duration
	version       string

	server *http.Server
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a server from deps. The listener is not opened until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}

	return &Server{
		cfg:           deps.Config,
		logger:        deps.Logger.With("component", "api"),
		engine:        deps.Engine,
		users:         deps.Users,
		metrics:       deps.Metrics,
		metricsPath:   deps.MetricsPath,
		pruneInterval: deps.PruneInterval,
		version:       deps.Version,
	}, nil
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start launches the janitor and the HTTP listener in background goroutines.
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.runJanitor(srvCtx)
	}()

	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.ReadTimeout) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.WriteTimeout) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.IdleTimeout) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close stops the janitor and gracefully shuts the listener down, waiting up to the
// configured shutdown timeout for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}

	timeout := time.Duration(s.cfg.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// runJanitor prunes expired registry and revocation entries until ctx is cancelled.
func (s *Server) runJanitor(ctx context.Context) {
	if s.pruneInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.prune(ctx)
		}
	}
}

func (s *Server) prune(ctx context.Context) {
	res, err := s.engine.Prune(ctx)
	if err != nil {
		s.logger.Warn("prune failed", "error", err)
		return
	}
	if res.RegistryEntries > 0 || res.RevocationEntries > 0 {
		s.logger.Debug("pruned expired entries",
			"registry", res.RegistryEntries,
			"revocation", res.RevocationEntries,
		)
	}
}
