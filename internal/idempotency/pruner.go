package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner periodically deletes finalized reservations older than a TTL
type Pruner struct {
	log      *Log
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
}

func NewPruner(log *Log, ttl, interval time.Duration, logger *zap.Logger) *Pruner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Pruner{log: log, ttl: ttl, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled. A zero TTL retains reservations forever.
func (p *Pruner) Run(ctx context.Context) {
	if p.ttl <= 0 {
		p.logger.Info("Reservation pruning disabled")
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Reservation pruner started",
		zap.Duration("ttl", p.ttl),
		zap.Duration("interval", p.interval),
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Reservation pruner stopped")
			return
		case <-ticker.C:
			p.PruneOnce(ctx)
		}
	}
}

// PruneOnce runs a single pruning pass
func (p *Pruner) PruneOnce(ctx context.Context) int64 {
	n, err := p.log.Prune(ctx, p.log.now().Add(-p.ttl))
	if err != nil {
		p.logger.Warn("Failed to prune reservations", zap.Error(err))
		return 0
	}
	if n > 0 {
		p.logger.Info("Pruned reservations", zap.Int64("count", n))
	}
	return n
}
