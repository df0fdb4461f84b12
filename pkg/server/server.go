// Package server is the HTTP and websocket surface of the algoviz sync
// engine. It owns the router, the connection gateway, and the lifecycle
// of the hub and sweeper.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/algoviz-dev/algoviz/internal/config"
	"github.com/algoviz-dev/algoviz/pkg/archive"
	"github.com/algoviz-dev/algoviz/pkg/middleware"
	"github.com/algoviz-dev/algoviz/pkg/session"
)

// Server ties the HTTP surface to the session hub.
type Server struct {
	config   config.Config
	logger   *slog.Logger
	hub      *session.Hub
	sweeper  *session.Sweeper
	upgrader websocket.Upgrader
	http     *http.Server
}

// New wires a server from configuration. Call Run to start it.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := session.NewRegistry(logger)
	hub := session.NewHub(registry, session.HubConfig{
		SessionTimeout: cfg.SessionTimeout,
		OpQueueSize:    cfg.OpQueueSize,
	}, logger)

	store, err := newArchiveStore(cfg.Archive)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		config:  cfg,
		logger:  logger.With("component", "server"),
		hub:     hub,
		sweeper: session.NewSweeper(hub, cfg.SweepInterval, store, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}

	srv.http = &http.Server{
		Addr:         cfg.Address,
		Handler:      srv.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return srv, nil
}

func newArchiveStore(cfg config.ArchiveConfig) (archive.Store, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "disk":
		return archive.NewDiskStore(cfg.Dir)
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("server: load aws config: %w", err)
		}
		prefix := cfg.Prefix
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		return archive.NewS3Store(s3.NewFromConfig(awsCfg), cfg.Bucket, prefix), nil
	default:
		return nil, fmt.Errorf("server: unknown archive backend %q", cfg.Backend)
	}
}

// originChecker allows any origin when the list is empty, otherwise an
// exact match against the configured origins.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimSuffix(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimSuffix(origin, "/")]
		return ok
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Prometheus())
	r.Use(middleware.OpenTelemetry(
		middleware.WithRequestFilter(func(req *http.Request) bool {
			return req.URL.Path != "/metrics" && req.URL.Path != "/healthz"
		}),
	))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{code}", s.handleGetSession)
		r.Get("/sessions/{code}/presence", s.handleGetPresence)
		r.Get("/algorithms", s.handleListAlgorithms)
		r.Get("/stats", s.handleStats)
	})

	r.Get("/ws", s.handleWebsocket)
	return r
}

// handleWebsocket upgrades the connection and hands it to the gateway.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed",
			"remote", r.RemoteAddr,
			"error", err)
		return
	}

	c := newConn(ws, s)
	s.logger.Debug("connection opened",
		"connection_id", c.ID(),
		"remote", r.RemoteAddr)
	go c.run()
}

// Run starts the hub, the sweeper, and the HTTP listener, then blocks
// until SIGINT or SIGTERM triggers a graceful shutdown.
func (s *Server) Run() error {
	for _, warning := range s.config.Warnings() {
		s.logger.Warn(warning)
	}

	go s.hub.Run()
	if err := s.sweeper.Start(); err != nil {
		s.hub.Stop()
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "address", s.config.Address)
		if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		s.sweeper.Stop()
		s.hub.Stop()
		return err
	case sig := <-stop:
		s.logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown", "error", err)
	}

	// Sweeper before hub: a sweep must never fire into a stopped loop.
	s.sweeper.Stop()
	s.hub.Stop()

	s.logger.Info("shutdown complete")
	return nil
}
