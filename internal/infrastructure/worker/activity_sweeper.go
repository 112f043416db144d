package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/port"
)

// ActivitySweeper periodically drops activity entries older than the TTL
type ActivitySweeper struct {
	store    port.ActivityStore
	ttl      time.Duration
	interval time.Duration
	clock    port.Clock
	logger   *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewActivitySweeper creates a sweeper. Non-positive durations fall back to
// a 24h TTL swept every 10 minutes.
func NewActivitySweeper(store port.ActivityStore, ttl, interval time.Duration, logger *zap.Logger) *ActivitySweeper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &ActivitySweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		clock:    time.Now,
		logger:   logger,
	}
}

// Start launches the sweep loop
func (s *ActivitySweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("activity sweeper is already running")
	}

	var loopCtx context.Context
	loopCtx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.isRunning = true

	s.logger.Info("ActivitySweeper started",
		zap.Duration("ttl", s.ttl),
		zap.Duration("interval", s.interval))

	go s.loop(loopCtx, s.done)
	return nil
}

// Stop cancels the loop and waits for the current sweep to finish
func (s *ActivitySweeper) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("ActivitySweeper stopped")
	return nil
}

// Name returns the worker name for identification
func (s *ActivitySweeper) Name() string {
	return "ActivitySweeper"
}

func (s *ActivitySweeper) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one expiry pass and returns the number of removed entries
func (s *ActivitySweeper) Sweep(ctx context.Context) int {
	cutoff := s.clock().Add(-s.ttl)
	removed, err := s.store.Expire(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to expire activity", zap.Error(err))
		return 0
	}
	if removed > 0 {
		s.logger.Info("Expired idle activity entries",
			zap.Int("removed", removed),
			zap.Time("cutoff", cutoff))
	}
	return removed
}

// Verify interface compliance
var _ Worker = (*ActivitySweeper)(nil)
