package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"directstock/internal/domain"
	"directstock/internal/ledger"
	"directstock/internal/store"

	"go.uber.org/zap"
)

const stockKeyPrefix = "stock:"

// StockLister is the read side the cache sits in front of
type StockLister interface {
	List(ctx context.Context, f ledger.StockFilter) ([]domain.StockLine, error)
}

// StockQuery serves current-stock listings from the cache. Every committed stock line
// change drops the cached listings, so reads never see a state older than the last commit
// they could observe.
type StockQuery struct {
	lister StockLister
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewStockQuery wires the cache in front of l and subscribes it to l's change hook
func NewStockQuery(l *ledger.Ledger, c Cache, ttl time.Duration, logger *zap.Logger) *StockQuery {
	q := &StockQuery{lister: l, cache: c, ttl: ttl, logger: logger}
	l.OnChange(q.invalidate)
	return q
}

func stockKey(f ledger.StockFilter) string {
	return fmt.Sprintf("%sp=%s:b=%s:w=%s", stockKeyPrefix, f.ProductID, f.BinID, f.WarehouseID)
}

// List returns stock lines matching f. Reads inside a transaction bypass the cache.
func (q *StockQuery) List(ctx context.Context, f ledger.StockFilter) ([]domain.StockLine, error) {
	if _, inTx := store.TxFromContext(ctx); inTx {
		return q.lister.List(ctx, f)
	}

	key := stockKey(f)
	var lines []domain.StockLine
	err := GetJSON(ctx, q.cache, key, &lines)
	if err == nil {
		return lines, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		q.logger.Warn("Stock cache read failed", zap.String("key", key), zap.Error(err))
	}

	lines, err = q.lister.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if err := SetJSON(ctx, q.cache, key, lines, q.ttl); err != nil {
		q.logger.Warn("Stock cache write failed", zap.String("key", key), zap.Error(err))
	}
	return lines, nil
}

func (q *StockQuery) invalidate(productID, binID string) {
	// Listings are keyed by filter, so any line change can affect any of them
	if err := q.cache.DeleteByPrefix(context.Background(), stockKeyPrefix); err != nil {
		q.logger.Warn("Stock cache invalidation failed",
			zap.String("product_id", productID),
			zap.String("bin_id", binID),
			zap.Error(err),
		)
	}
}
