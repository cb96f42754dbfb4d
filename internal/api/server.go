package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/tswrite/internal/batching"
	"github.com/nerrad567/tswrite/internal/deadletter"
	"github.com/nerrad567/tswrite/internal/infrastructure/config"
	"github.com/nerrad567/tswrite/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultMaxBodySize applies when the config leaves max_body_size unset.
const defaultMaxBodySize = 10 << 20

// Ingester is the part of *batching.Processor the API drives.
type Ingester interface {
	Write(ctx context.Context, key batching.Key, point batching.Point) error
	Flush()
	Stats() batching.Stats
}

// HealthChecker is implemented by every infrastructure client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// DeadLetterLister reads recent loss records. Satisfied by *deadletter.SQLiteStore.
type DeadLetterLister interface {
	List(ctx context.Context, limit int) ([]deadletter.Record, error)
	Count(ctx context.Context) (int, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	Processor Ingester

	// DefaultDatabase and DefaultRetentionPolicy apply to /write requests
	// without db or udp_port.
	DefaultDatabase        string
	DefaultRetentionPolicy string

	Gatherer    prometheus.Gatherer      // optional: /metrics returns 404 without it
	Health      map[string]HealthChecker // optional: named dependency checks
	DeadLetters DeadLetterLister         // optional: /deadletters returns 404 without it
	Version     string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes and middleware.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	processor   Ingester
	database    string
	retention   string
	gatherer    prometheus.Gatherer
	health      map[string]HealthChecker
	deadLetters DeadLetterLister
	version     string
	maxBodySize int64
	startTime   time.Time

	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Processor == nil {
		return nil, fmt.Errorf("batch processor is required")
	}

	maxBody := deps.Config.MaxBodySize
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}

	return &Server{
		cfg:         deps.Config,
		logger:      deps.Logger,
		processor:   deps.Processor,
		database:    deps.DefaultDatabase,
		retention:   deps.DefaultRetentionPolicy,
		gatherer:    deps.Gatherer,
		health:      deps.Health,
		deadLetters: deps.DeadLetters,
		version:     deps.Version,
		maxBodySize: maxBody,
		startTime:   time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
// Binding errors (port in use) are returned synchronously.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
