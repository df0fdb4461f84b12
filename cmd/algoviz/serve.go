package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/algoviz-dev/algoviz/internal/config"
	"github.com/algoviz-dev/algoviz/pkg/server"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		logLevel   string
		logJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync server",
		Long: `Start the HTTP and WebSocket server.

Configuration is resolved in order: built-in defaults, the YAML file
given with --config, then environment variables (ALGOVIZ_*, PORT).

Examples:
  algoviz serve
  algoviz serve --config=algoviz.yaml
  algoviz serve --addr=:8080 --log-level=debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, addr, logLevel, logJSON)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")

	return cmd
}

func runServe(configPath, addr, logLevel string, logJSON bool) error {
	logger := newLogger(logLevel, logJSON)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Address = addr
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("starting algoviz",
		"version", version,
		"address", cfg.Address,
		"session_timeout", cfg.SessionTimeout,
		"sweep_interval", cfg.SweepInterval)
	return srv.Run()
}

func newLogger(level string, asJSON bool) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if asJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
