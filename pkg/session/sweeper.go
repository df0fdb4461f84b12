package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/algoviz-dev/algoviz/pkg/archive"
	"github.com/algoviz-dev/algoviz/pkg/middleware"
)

// Sweeper periodically posts a sweep to the hub. Eviction decisions run on
// the hub loop; archival of evicted replay logs runs out here so the loop
// never blocks on storage I/O.
type Sweeper struct {
	hub      *Hub
	interval time.Duration
	store    archive.Store
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewSweeper creates a sweeper firing at the given interval. store may be
// nil, in which case evicted replay logs are discarded.
func NewSweeper(hub *Hub, interval time.Duration, store archive.Store, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		hub:      hub,
		interval: interval,
		store:    store,
		logger:   logger.With("component", "sweeper"),
	}
}

// Start schedules the recurring sweep.
func (sw *Sweeper) Start() error {
	sw.cron = cron.New()
	spec := fmt.Sprintf("@every %s", sw.interval)
	if _, err := sw.cron.AddFunc(spec, sw.RunOnce); err != nil {
		return fmt.Errorf("session: schedule sweep: %w", err)
	}
	sw.cron.Start()
	sw.logger.Info("sweeper started", "interval", sw.interval)
	return nil
}

// Stop cancels the schedule and waits for an in-flight sweep to finish.
func (sw *Sweeper) Stop() {
	if sw.cron == nil {
		return
	}
	<-sw.cron.Stop().Done()
}

// RunOnce performs a single sweep and archives whatever was evicted.
func (sw *Sweeper) RunOnce() {
	evicted, err := sw.hub.Sweep()
	if err != nil {
		if err != ErrHubStopped {
			sw.logger.Error("sweep failed", "error", err)
		}
		return
	}
	middleware.RecordEvictions(len(evicted))
	sw.archive(evicted)
}

// archive exports evicted replay logs. Best effort: a failed export is
// logged and the eviction stands.
func (sw *Sweeper) archive(evicted []Evicted) {
	if sw.store == nil {
		return
	}
	for _, e := range evicted {
		if len(e.ReplayLog) == 0 {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := sw.store.SaveReplay(ctx, e.Code, e.ReplayLog)
		cancel()
		if err != nil {
			sw.logger.Warn("replay archive failed",
				"session_code", e.Code,
				"error", err)
			continue
		}
		sw.logger.Info("replay archived",
			"session_code", e.Code,
			"snapshots", len(e.ReplayLog))
	}
}
