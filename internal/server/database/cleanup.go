package database

import (
	"context"
	"log/slog"
	"time"
)

// CleanupService periodically deletes expired daily-limit rows. Postgres has
// no per-row TTL, so this loop plays that role; reads already ignore expired
// rows, the purge just keeps the table tidy.
type CleanupService struct {
	repo     *Repository
	interval time.Duration
	done     chan struct{}
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(repo *Repository, interval time.Duration) *CleanupService {
	return &CleanupService{
		repo:     repo,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the cleanup loop in a background goroutine.
func (cs *CleanupService) Start(ctx context.Context) {
	slog.Info("cleanup service started", "interval", cs.interval)

	go func() {
		ticker := time.NewTicker(cs.interval)
		defer ticker.Stop()

		// Run once immediately on start
		cs.runCleanup(ctx)

		for {
			select {
			case <-ticker.C:
				cs.runCleanup(ctx)
			case <-ctx.Done():
				slog.Info("cleanup service stopping")
				close(cs.done)
				return
			}
		}
	}()
}

// Wait blocks until the cleanup service has fully stopped.
func (cs *CleanupService) Wait() {
	<-cs.done
}

func (cs *CleanupService) runCleanup(ctx context.Context) {
	deleted, err := cs.repo.DeleteExpiredLimits(ctx)
	if err != nil {
		slog.Error("failed to purge expired daily limits", "error", err)
		return
	}

	if deleted > 0 {
		slog.Info("purged expired daily limits", "rows", deleted)
	}
}
