package cache

import (
	"context"
	"log/slog"
	"time"
)

// SweepInterval is how often expired cache entries are reclaimed.
const SweepInterval = 15 * time.Minute

// Sweeper periodically removes expired cache entries.
type Sweeper struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper with the default interval.
func NewSweeper(store *Store, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: SweepInterval,
		logger:   logger,
	}
}

// Run blocks until ctx is canceled, sweeping on each tick.
// Callers must track the goroutine with a WaitGroup.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	if n, err := s.store.Sweep(ctx); err != nil {
		s.logger.Warn("cache sweep failed", "error", err)
	} else if n > 0 {
		s.logger.Debug("swept expired cache entries", "count", n)
	}
}
