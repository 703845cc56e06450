/*
scheduler.go - Background circulation sweeps

PURPOSE:
  Periodically runs the overdue sweep and the due-soon reminder pass so
  loans flip to overdue and members hear about approaching due dates
  without any request traffic.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Both passes are idempotent within a run; a crash mid-run is safe
  - The overdue sweep re-checks every open loan against the clock, so a
    missed tick is caught up by the next one

USAGE:
  scheduler := NewSweepScheduler(engine, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - circulation/engine.go: MarkOverdue, RunDueSoonReminders
  - handlers.go: manual /api/admin/sweep and /api/admin/reminders
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridian/circulation-engine/circulation"
)

// SweepScheduler drives the periodic overdue and reminder passes.
type SweepScheduler struct {
	Engine        *circulation.Engine
	CheckInterval time.Duration
	Enabled       bool

	logger  *zap.Logger
	ticker  *time.Ticker
	stop    chan bool
	stopped bool
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewSweepScheduler creates a scheduler with the default hourly interval.
func NewSweepScheduler(engine *circulation.Engine, logger *zap.Logger) *SweepScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepScheduler{
		Engine:        engine,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		logger:        logger,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SweepScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		ss.logger.Info("sweep scheduler disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	ss.logger.Info("sweep scheduler started", zap.Duration("interval", ss.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
// Safe to call more than once, and without a prior Start.
func (ss *SweepScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker == nil || ss.stopped {
		return
	}
	ss.stopped = true
	ss.ticker.Stop()
	close(ss.stop)
	ss.wg.Wait()
	ss.logger.Info("sweep scheduler stopped")
}

func (ss *SweepScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.sweep()

	for {
		select {
		case <-ss.ticker.C:
			ss.sweep()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SweepScheduler) sweep() {
	ctx := context.Background()

	flipped, err := ss.Engine.MarkOverdue(ctx)
	if err != nil {
		ss.logger.Error("overdue sweep failed", zap.Error(err))
	} else if flipped > 0 {
		ss.logger.Info("overdue sweep completed", zap.Int("flipped", flipped))
	}

	fired, err := ss.Engine.RunDueSoonReminders(ctx)
	if err != nil {
		ss.logger.Error("reminder pass failed", zap.Error(err))
	} else if fired > 0 {
		ss.logger.Info("reminder pass completed", zap.Int("fired", fired))
	}
}

// RunNow triggers an immediate pass (for testing/admin).
func (ss *SweepScheduler) RunNow() {
	ss.sweep()
}
