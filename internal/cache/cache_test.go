package cache

import (
	"context"
	"testing"
	"time"

	"directstock/internal/catalog/catalogtest"
	"directstock/internal/domain"
	"directstock/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInMemoryCache_Expiry(t *testing.T) {
	c := NewInMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	now = now.Add(2 * time.Second)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestInMemoryCache_DeleteByPrefix(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "stock:a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "stock:b", []byte("2"), 0))
	require.NoError(t, c.Set(ctx, "other", []byte("3"), 0))

	require.NoError(t, c.DeleteByPrefix(ctx, "stock:"))

	_, err := c.Get(ctx, "stock:a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "other")
	assert.NoError(t, err)
}

type countingLister struct {
	inner *ledger.Ledger
	calls int
}

func (c *countingLister) List(ctx context.Context, f ledger.StockFilter) ([]domain.StockLine, error) {
	c.calls++
	return c.inner.List(ctx, f)
}

func TestStockQuery_CachesUntilLineChanges(t *testing.T) {
	f := catalogtest.New(t)
	l := ledger.New(f.DB, zap.NewNop())
	ctx := context.Background()

	q := NewStockQuery(l, NewInMemoryCache(), time.Minute, zap.NewNop())
	counter := &countingLister{inner: l}
	q.lister = counter

	_, err := l.ApplyDelta(ctx, f.Bulk.ID, f.BinA.ID, decimal.NewFromInt(4), "kg")
	require.NoError(t, err)

	lines, err := q.List(ctx, ledger.StockFilter{ProductID: f.Bulk.ID})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	_, err = q.List(ctx, ledger.StockFilter{ProductID: f.Bulk.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, counter.calls, "second read served from cache")

	_, err = l.Reserve(ctx, f.Bulk.ID, f.BinA.ID, decimal.NewFromInt(1))
	require.NoError(t, err)

	lines, err = q.List(ctx, ledger.StockFilter{ProductID: f.Bulk.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, counter.calls, "reservation invalidated the cache")
	assert.True(t, decimal.NewFromInt(1).Equal(lines[0].ReservedQuantity))
}
