package engine

import (
	"context"
	"log/slog"
	"time"
)

// Default reaper timings.
const (
	DefaultSweepInterval = 60 * time.Second
	DefaultIdleTTL       = 300 * time.Second
)

// Sweeper removes idle fan-out registrations. Implemented by *Hub.
type Sweeper interface {
	SweepIdle(ttl time.Duration) int
}

// Reaper periodically evicts hub entries that have been idle for longer than
// the configured TTL.
type Reaper struct {
	interval time.Duration
	ttl      time.Duration
	sweeper  Sweeper
	logger   *slog.Logger
}

// NewReaper creates a Reaper that sweeps every interval with the given TTL.
func NewReaper(interval, ttl time.Duration, sweeper Sweeper, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		interval: interval,
		ttl:      ttl,
		sweeper:  sweeper,
		logger:   logger,
	}
}

// Start launches a background goroutine that ticks at the configured
// interval and sweeps idle entries. It stops when ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.tick()
			}
		}
	}()
}

// tick runs one sweep. A panic inside the sweep is logged and swallowed so
// the loop survives until the next tick.
func (r *Reaper) tick() (removed int) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("idle sweep failed", slog.Any("panic", rec))
			removed = 0
		}
	}()

	removed = r.sweeper.SweepIdle(r.ttl)
	if removed > 0 {
		r.logger.Debug("idle hub entries evicted",
			slog.Int("removed", removed),
			slog.Duration("ttl", r.ttl),
		)
	}
	return removed
}
