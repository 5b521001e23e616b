package hitl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// ReaperConfig configures the queue maintenance schedule.
type ReaperConfig struct {
	// Schedule is a cron expression for the sweep. Empty disables
	// the reaper. Common values:
	//   - "* * * * *"   - every minute
	//   - "*/5 * * * *" - every 5 minutes
	Schedule string
}

// Reaper keeps the queue's data-model invariants true over time: it
// returns assigned rows with lapsed locks to pending, and marks
// pending rows past their expiry as expired.
type Reaper struct {
	repo    Repository
	config  ReaperConfig
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewReaper creates a reaper over the review store.
func NewReaper(repo Repository, config ReaperConfig) *Reaper {
	return &Reaper{
		repo:   repo,
		config: config,
		cron:   cron.New(),
		logger: slog.Default().With("component", "hitl.reaper"),
	}
}

// Start schedules the sweep and returns. The reaper stops when ctx
// is cancelled.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.config.Schedule == "" {
		r.logger.Info("reaper schedule not configured, skipping")
		return nil
	}

	if _, err := cron.ParseStandard(r.config.Schedule); err != nil {
		return fmt.Errorf("invalid reaper schedule %q: %w", r.config.Schedule, err)
	}

	if _, err := r.cron.AddFunc(r.config.Schedule, func() {
		r.Sweep(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule reaper: %w", err)
	}

	r.cron.Start()
	r.running = true
	r.logger.Info("review reaper started", "schedule", r.config.Schedule)

	go func() {
		<-ctx.Done()
		r.Stop()
	}()

	return nil
}

// Sweep runs one maintenance cycle immediately.
func (r *Reaper) Sweep(ctx context.Context) {
	reclaimed, err := r.repo.ReclaimExpiredLocks(ctx)
	if err != nil {
		r.logger.Error("failed to reclaim expired locks", "error", err)
	}

	expired, err := r.repo.ExpireStale(ctx)
	if err != nil {
		r.logger.Error("failed to expire stale reviews", "error", err)
	}

	if reclaimed > 0 || expired > 0 {
		r.logger.Info("review sweep complete",
			"locks_reclaimed", reclaimed,
			"reviews_expired", expired,
		)
	}
}

// Stop halts the schedule. Safe to call more than once.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.cron.Stop()
	r.running = false
	r.logger.Info("review reaper stopped")
}
