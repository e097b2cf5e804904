package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"directstock/internal/catalog/catalogtest"
	"directstock/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingListener struct {
	entries []domain.MovementEntry
}

func (r *recordingListener) MovementCommitted(_ context.Context, e domain.MovementEntry) {
	r.entries = append(r.entries, e)
}

func receipt(productID, binID, qty string) *domain.MovementEntry {
	return &domain.MovementEntry{
		MovementType:    domain.MovementGoodsReceipt,
		ReferenceType:   domain.DocumentGoodsReceipt,
		ReferenceNumber: "GR-1",
		ProductID:       productID,
		ToBinID:         strPtr(binID),
		Quantity:        dec(qty),
		Unit:            "kg",
		PerformedBy:     "tester",
	}
}

func TestAppend_NotifiesOnlyAfterCommit(t *testing.T) {
	f := catalogtest.New(t)
	j := NewJournal(f.DB, zap.NewNop())
	rec := &recordingListener{}
	j.Subscribe(rec)
	ctx := context.Background()

	err := f.DB.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, j.Append(ctx, receipt(f.Bulk.ID, f.BinA.ID, "5")))
		assert.Empty(t, rec.entries, "listeners must wait for commit")
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Empty(t, rec.entries)

	err = f.DB.WithinTx(ctx, func(ctx context.Context) error {
		return j.Append(ctx, receipt(f.Bulk.ID, f.BinA.ID, "5"))
	})
	require.NoError(t, err)
	require.Len(t, rec.entries, 1)
	assert.NotEmpty(t, rec.entries[0].ID)

	all, err := j.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAppend_RejectsMalformedEntries(t *testing.T) {
	f := catalogtest.New(t)
	j := NewJournal(f.DB, zap.NewNop())
	ctx := context.Background()

	e := receipt(f.Bulk.ID, f.BinA.ID, "5")
	e.ToBinID = nil
	assert.Error(t, j.Append(ctx, e))

	e = receipt(f.Bulk.ID, f.BinA.ID, "0")
	assert.Error(t, j.Append(ctx, e))
}

func TestJournal_IsAppendOnly(t *testing.T) {
	f := catalogtest.New(t)
	j := NewJournal(f.DB, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, j.Append(ctx, receipt(f.Bulk.ID, f.BinA.ID, "5")))

	_, err := f.DB.Exec(ctx, `UPDATE movement_entries SET quantity = '6'`)
	assert.Error(t, err)
	_, err = f.DB.Exec(ctx, `DELETE FROM movement_entries`)
	assert.Error(t, err)
}

func TestList_FiltersAndPages(t *testing.T) {
	f := catalogtest.New(t)
	j := NewJournal(f.DB, zap.NewNop())
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		e := receipt(f.Bulk.ID, f.BinA.ID, "1")
		e.PerformedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, j.Append(ctx, e))
	}
	moved := &domain.MovementEntry{
		MovementType:    domain.MovementStockTransfer,
		ReferenceType:   domain.DocumentStockTransfer,
		ReferenceNumber: "ST-1",
		ProductID:       f.Bulk.ID,
		FromBinID:       strPtr(f.BinA.ID),
		ToBinID:         strPtr(f.BinB.ID),
		Quantity:        dec("1"),
		Unit:            "kg",
		PerformedBy:     "tester",
		PerformedAt:     base.Add(time.Hour),
	}
	require.NoError(t, j.Append(ctx, moved))

	entries, err := j.List(ctx, MovementFilter{BinID: f.BinB.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.MovementStockTransfer, entries[0].MovementType)

	entries, err = j.List(ctx, MovementFilter{MovementType: domain.MovementGoodsReceipt, Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].PerformedAt.After(entries[1].PerformedAt))

	entries, err = j.List(ctx, MovementFilter{ReferenceNumber: "GR-1", Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	byRef, err := j.ForReference(ctx, domain.DocumentStockTransfer, "ST-1")
	require.NoError(t, err)
	assert.Len(t, byRef, 1)
}

func TestReplay(t *testing.T) {
	entries := []domain.MovementEntry{
		{ProductID: "p", ToBinID: strPtr("a"), Quantity: dec("10")},
		{ProductID: "p", FromBinID: strPtr("a"), ToBinID: strPtr("b"), Quantity: dec("4")},
		{ProductID: "p", FromBinID: strPtr("b"), Quantity: dec("1.5")},
	}

	out := Replay(entries)

	assert.True(t, dec("6").Equal(out[LineKey{"p", "a"}]))
	assert.True(t, dec("2.5").Equal(out[LineKey{"p", "b"}]))
}

func TestProjection_VerifyAndRebuild(t *testing.T) {
	f := catalogtest.New(t)
	l := New(f.DB, zap.NewNop())
	j := NewJournal(f.DB, zap.NewNop())
	p := NewProjection(l, j, zap.NewNop())
	ctx := context.Background()

	err := f.DB.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := l.ApplyDelta(ctx, f.Bulk.ID, f.BinA.ID, dec("5"), "kg"); err != nil {
			return err
		}
		return j.Append(ctx, receipt(f.Bulk.ID, f.BinA.ID, "5"))
	})
	require.NoError(t, err)

	drifts, err := p.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)

	// Corrupt the projection behind the ledger's back
	_, err = f.DB.Exec(ctx, `UPDATE stock_lines SET quantity = '7'`)
	require.NoError(t, err)

	drifts, err = p.Verify(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.True(t, dec("7").Equal(drifts[0].Projected))
	assert.True(t, dec("5").Equal(drifts[0].Journal))

	_, err = p.Rebuild(ctx)
	require.NoError(t, err)

	line, err := l.Find(ctx, f.Bulk.ID, f.BinA.ID)
	require.NoError(t, err)
	assert.True(t, dec("5").Equal(line.Quantity))

	drifts, err = p.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}
