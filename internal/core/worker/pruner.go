// Package worker holds long-running background workers.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/sportsight/scout/internal/checkpoint"
)

// Pruner deletes stale checkpoints based on the retention policy.
type Pruner struct {
	store         checkpoint.Store
	retentionDays int
}

// NewPruner creates a new Pruner worker. retentionDays <= 0 disables it.
func NewPruner(store checkpoint.Store, retentionDays int) *Pruner {
	return &Pruner{
		store:         store,
		retentionDays: retentionDays,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retentionDays <= 0 || p.store == nil {
		return // Retention disabled
	}

	// Check at 10% of the retention period, clamped to [1m, 1h]
	retention := time.Duration(p.retentionDays) * 24 * time.Hour
	interval := min(retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	removed, err := p.store.CleanupOlderThan(ctx, p.retentionDays)
	if err != nil {
		slog.Error("checkpoint pruning failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("pruned stale checkpoints", "count", removed, "retention_days", p.retentionDays)
	}
}
