// Package config loads server configuration from defaults, an optional
// YAML file, and environment variable overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config is the main server configuration.
type Config struct {
	// Address is the listen address for the HTTP server.
	// Default: ":3000".
	Address string `yaml:"address"`

	// AllowedOrigins are the origins accepted for websocket upgrades and
	// CORS on the HTTP API. An empty list allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// SessionTimeout is how long an unattended session survives past its
	// last activity before the sweeper may evict it.
	// Default: 24h.
	SessionTimeout time.Duration `yaml:"session_timeout"`

	// SweepInterval is how often the sweeper scans for expired sessions.
	// Default: 1h.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// ReadTimeout is the HTTP server read timeout.
	// Default: 15s.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the HTTP server write timeout.
	// Default: 15s.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
	// Default: 10s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// PongTimeout is how long a websocket connection may stay silent
	// before it is considered dead. Pings are sent at PongTimeout * 9/10.
	// Default: 60s.
	PongTimeout time.Duration `yaml:"pong_timeout"`

	// MaxMessageSize caps inbound websocket messages, in bytes.
	// Default: 1 MiB.
	MaxMessageSize int64 `yaml:"max_message_size"`

	// OutboxSize caps the per-connection outbound queue. A connection
	// whose queue overflows is dropped as too slow.
	// Default: 256.
	OutboxSize int `yaml:"outbox_size"`

	// OpQueueSize is the capacity of the hub's operation channel.
	// Default: 256.
	OpQueueSize int `yaml:"op_queue_size"`

	// Archive configures replay archival on session eviction.
	Archive ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig selects where evicted sessions' replay logs go.
type ArchiveConfig struct {
	// Backend is "disk", "s3", or "" to disable archival.
	Backend string `yaml:"backend"`

	// Dir is the target directory for the disk backend.
	// Default: "replays".
	Dir string `yaml:"dir"`

	// Bucket is the target bucket for the s3 backend.
	Bucket string `yaml:"bucket"`

	// Prefix is the key prefix for the s3 backend.
	// Default: "replays".
	Prefix string `yaml:"prefix"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Address:         ":3000",
		SessionTimeout:  24 * time.Hour,
		SweepInterval:   time.Hour,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		PongTimeout:     60 * time.Second,
		MaxMessageSize:  1 << 20,
		OutboxSize:      256,
		OpQueueSize:     256,
		Archive: ArchiveConfig{
			Dir:    "replays",
			Prefix: "replays",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path if
// path is non-empty, then environment variables. A .env file in the
// working directory is folded into the environment first.
func Load(path string) (Config, error) {
	cfg := Default()

	// Missing .env is the normal case.
	_ = godotenv.Load()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ALGOVIZ_ADDR"); v != "" {
		c.Address = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Address = ":" + v
	}
	if v := os.Getenv("ALGOVIZ_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if err := envDuration("ALGOVIZ_SESSION_TIMEOUT", &c.SessionTimeout); err != nil {
		return err
	}
	if err := envDuration("ALGOVIZ_SWEEP_INTERVAL", &c.SweepInterval); err != nil {
		return err
	}
	if err := envDuration("ALGOVIZ_PONG_TIMEOUT", &c.PongTimeout); err != nil {
		return err
	}
	if v := os.Getenv("ALGOVIZ_MAX_MESSAGE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: ALGOVIZ_MAX_MESSAGE_SIZE: %w", err)
		}
		c.MaxMessageSize = n
	}
	if v := os.Getenv("ALGOVIZ_ARCHIVE_BACKEND"); v != "" {
		c.Archive.Backend = v
	}
	if v := os.Getenv("ALGOVIZ_ARCHIVE_DIR"); v != "" {
		c.Archive.Dir = v
	}
	if v := os.Getenv("ALGOVIZ_ARCHIVE_BUCKET"); v != "" {
		c.Archive.Bucket = v
	}
	if v := os.Getenv("ALGOVIZ_ARCHIVE_PREFIX"); v != "" {
		c.Archive.Prefix = v
	}
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("config: address must not be empty")
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("config: session_timeout must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("config: sweep_interval must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("config: max_message_size must be positive")
	}
	if c.PongTimeout <= 0 {
		return fmt.Errorf("config: pong_timeout must be positive")
	}
	if c.OutboxSize <= 0 {
		return fmt.Errorf("config: outbox_size must be positive")
	}
	if c.OpQueueSize <= 0 {
		return fmt.Errorf("config: op_queue_size must be positive")
	}
	switch c.Archive.Backend {
	case "", "disk":
	case "s3":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("config: archive backend s3 requires a bucket")
		}
	default:
		return fmt.Errorf("config: unknown archive backend %q", c.Archive.Backend)
	}
	return nil
}

// Warnings returns non-fatal observations about the configuration.
func (c *Config) Warnings() []string {
	var warnings []string
	if len(c.AllowedOrigins) == 0 {
		warnings = append(warnings, "no allowed origins configured, accepting websocket upgrades from any origin")
	}
	if c.SweepInterval > c.SessionTimeout {
		warnings = append(warnings, "sweep_interval exceeds session_timeout, expired sessions will linger between sweeps")
	}
	return warnings
}
