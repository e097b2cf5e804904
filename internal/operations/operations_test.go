package operations

import (
	"context"
	"errors"
	"testing"

	"directstock/internal/commands"
	"directstock/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestGoodsReceipt_CompleteBooksStockAndJournal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	r := e.receive(t, commands.GoodsReceiptLine{ProductID: e.Bulk.ID, BinID: e.BinA.ID, Quantity: dec("10")})

	assert.Equal(t, domain.StatusCompleted, r.Status)
	assert.Regexp(t, `^GR-\d{8}-[0-9A-F]{6}$`, r.Number)
	assertDec(t, "10", e.onHand(t, e.Bulk.ID, e.BinA.ID))

	entries, err := e.journal.ForReference(ctx, domain.DocumentGoodsReceipt, r.Number)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.MovementGoodsReceipt, entries[0].MovementType)
	assert.Nil(t, entries[0].FromBinID)
	require.NotNil(t, entries[0].ToBinID)
	assert.Equal(t, e.BinA.ID, *entries[0].ToBinID)
	assert.Equal(t, "kg", entries[0].Unit)

	_, err = e.svc.CompleteGoodsReceipt(ctx, r.ID, "receiver")
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
	_, err = e.svc.CancelGoodsReceipt(ctx, r.ID)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
}

func TestGoodsReceipt_TrackingRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := map[string]commands.GoodsReceiptLine{
		"batch product without batch": {ProductID: e.Batch.ID, BinID: e.BinA.ID, Quantity: dec("1")},
		"bulk product with batch":     {ProductID: e.Bulk.ID, BinID: e.BinA.ID, Quantity: dec("1"), BatchNumber: strp("L1")},
		"bulk product with expiry":    {ProductID: e.Bulk.ID, BinID: e.BinA.ID, Quantity: dec("1"), ExpiryDate: date("2030-01-01")},
		"serial count mismatch":       {ProductID: e.Serial.ID, BinID: e.BinA.ID, Quantity: dec("2"), SerialNumbers: []string{"SN-1"}},
		"serials on bulk product":     {ProductID: e.Bulk.ID, BinID: e.BinA.ID, Quantity: dec("1"), SerialNumbers: []string{"SN-1"}},
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.svc.CreateGoodsReceipt(ctx, commands.CreateGoodsReceipt{Items: []commands.GoodsReceiptLine{line}})
			require.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
			var de *domain.DomainError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, 0, de.Details["item_index"])
		})
	}

	_, err := e.svc.CreateGoodsReceipt(ctx, commands.CreateGoodsReceipt{Items: []commands.GoodsReceiptLine{
		{ProductID: "missing", BinID: e.BinA.ID, Quantity: dec("1")},
	}})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestGoodsReceipt_SerialConflictRollsBackWholeDocument(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.receive(t, commands.GoodsReceiptLine{ProductID: e.Serial.ID, BinID: e.BinA.ID, Quantity: dec("1"), SerialNumbers: []string{"SN-1"}})

	r, err := e.svc.CreateGoodsReceipt(ctx, commands.CreateGoodsReceipt{Items: []commands.GoodsReceiptLine{
		{ProductID: e.Bulk.ID, BinID: e.BinA.ID, Quantity: dec("5")},
		{ProductID: e.Serial.ID, BinID: e.BinB.ID, Quantity: dec("1"), SerialNumbers: []string{"SN-1"}},
	}})
	require.NoError(t, err)

	_, err = e.svc.CompleteGoodsReceipt(ctx, r.ID, "receiver")
	require.True(t, errors.Is(err, domain.ErrSerialConflict), "got %v", err)

	assertDec(t, "0", e.onHand(t, e.Bulk.ID, e.BinA.ID))
	assertDec(t, "0", e.onHand(t, e.Serial.ID, e.BinB.ID))
	entries, err := e.journal.ForReference(ctx, domain.DocumentGoodsReceipt, r.Number)
	require.NoError(t, err)
	assert.Empty(t, entries)

	again, err := e.svc.GetGoodsReceipt(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, again.Status)
	assert.Len(t, again.Items, 2)
}

func TestGoodsReceipt_AddItemOnlyWhileDraft(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	r, err := e.svc.CreateGoodsReceipt(ctx, commands.CreateGoodsReceipt{})
	require.NoError(t, err)
	_, err = e.svc.CompleteGoodsReceipt(ctx, r.ID, "receiver")
	assert.True(t, errors.Is(err, domain.ErrValidation), "empty documents cannot complete")

	_, err = e.svc.AddGoodsReceiptItem(ctx, r.ID, commands.GoodsReceiptLine{ProductID: e.Bulk.ID, BinID: e.BinA.ID, Quantity: dec("1")})
	require.NoError(t, err)
	_, err = e.svc.CancelGoodsReceipt(ctx, r.ID)
	require.NoError(t, err)

	_, err = e.svc.AddGoodsReceiptItem(ctx, r.ID, commands.GoodsReceiptLine{ProductID: e.Bulk.ID, BinID: e.BinA.ID, Quantity: dec("1")})
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
}

func TestGoodsIssue_FefoConsumesEarliestExpiryFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.receive(t, commands.GoodsReceiptLine{ProductID: e.Batch.ID, BinID: e.BinA.ID, Quantity: dec("10"), BatchNumber: strp("LATE"), ExpiryDate: date("2030-12-31")})
	e.receive(t, commands.GoodsReceiptLine{ProductID: e.Batch.ID, BinID: e.BinA.ID, Quantity: dec("10"), BatchNumber: strp("EARLY"), ExpiryDate: date("2030-01-15")})

	gi, err := e.svc.CreateGoodsIssue(ctx, commands.CreateGoodsIssue{Items: []commands.GoodsIssueLine{
		{ProductID: e.Batch.ID, BinID: e.BinA.ID, Quantity: dec("12"), UseFefo: true},
	}})
	require.NoError(t, err)
	gi, err = e.svc.CompleteGoodsIssue(ctx, gi.ID, "picker")
	require.NoError(t, err)

	assertDec(t, "0", e.lotQty(t, e.Batch.ID, e.BinA.ID, "EARLY"))
	assertDec(t, "8", e.lotQty(t, e.Batch.ID, e.BinA.ID, "LATE"))
	assertDec(t, "8", e.onHand(t, e.Batch.ID, e.BinA.ID))

	stored, err := e.svc.GetGoodsIssue(ctx, gi.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	require.Len(t, stored.Items[0].Allocations, 2)
	assert.Equal(t, "EARLY", stored.Items[0].Allocations[0].BatchNumber)
	assertDec(t, "10", stored.Items[0].Allocations[0].Quantity)
	assert.Equal(t, "LATE", stored.Items[0].Allocations[1].BatchNumber)
	assertDec(t, "2", stored.Items[0].Allocations[1].Quantity)
	assertDec(t, "12", stored.Items[0].IssuedQuantity)

	entries, err := e.journal.ForReference(ctx, domain.DocumentGoodsIssue, gi.Number)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Metadata, "batch_allocations")
}

func TestGoodsIssue_NamedBatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.receive(t,
		commands.GoodsReceiptLine{ProductID: e.Batch.ID, BinID: e.BinA.ID, Quantity: dec("5"), BatchNumber: strp("L1")},
		commands.GoodsReceiptLine{ProductID: e.Batch.ID, BinID: e.BinA.ID, Quantity: dec("5"), BatchNumber: strp("L2")},
	)

	_, err := e.svc.CreateGoodsIssue(ctx, commands.CreateGoodsIssue{Items: []commands.GoodsIssueLine{
		{ProductID: e.Batch.ID, BinID: e.BinA.ID, Quantity: dec("1")},
	}})
	assert.True(t, errors.Is(err, domain.ErrValidation), "batch product needs batch_number or use_fefo")

	gi, err := e.svc.CreateGoodsIssue(ctx, commands.CreateGoodsIssue{Items: []commands.GoodsIssueLine{
		{ProductID: e.Batch.ID, BinID: e.BinA.ID, Quantity: dec("3"), BatchNumber: strp("L2")},
	}})
	require.NoError(t, err)
	_, err = e.svc.CompleteGoodsIssue(ctx, gi.ID, "picker")
	require.NoError(t, err)

	assertDec(t, "5", e.lotQty(t, e.Batch.ID, e.BinA.ID, "L1"))
	assertDec(t, "2", e.lotQty(t, e.Batch.ID, e.BinA.ID, "L2"))
	assertDec(t, "7", e.onHand(t, e.Batch.ID, e.BinA.ID))
}

func TestGoodsIssue_InsufficientStockAbortsWholeDocument(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.receive(t, commands.GoodsReceiptLine{ProductID: e.Bulk.ID, BinID: e.BinA.ID, Quantity: dec("10")})

	gi, err := e.svc.CreateGoodsIssue(ctx, commands.CreateGoodsIssue{Items: []commands.GoodsIssueLine{
		{ProductID: e.Bulk.ID, BinID: e.BinA.ID, Quantity: dec("4")},
		{ProductID: e.Bulk.ID, BinID: e.BinB.ID, Quantity: dec("20")},
	}})
	require.NoError(t, err)

	_, err = e.svc.CompleteGoodsIssue(ctx, gi.ID, "picker")
	require.True(t, errors.Is(err, domain.ErrInsufficientStock), "got %v", err)

	assertDec(t, "10", e.onHand(t, e.Bulk.ID, e.BinA.ID))
	entries, err := e.journal.ForReference(ctx, domain.DocumentGoodsIssue, gi.Number)
	require.NoError(t, err)
	assert.Empty(t, entries)
	stored, err := e.svc.GetGoodsIssue(ctx, gi.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, stored.Status)
	assertDec(t, "0", stored.Items[0].IssuedQuantity)
}

func TestGoodsIssue_ReservedStockIsNotAvailable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.receive(t, commands.GoodsReceiptLine{ProductID: e.Bulk.ID, BinID: e.BinA.ID, Quantity: dec("10")})

	line, err := e.svc.ReserveStock(ctx, commands.AdjustReservation{ProductID: e.Bulk.ID, BinID: e.BinA.ID, Quantity: dec("8")})
	require.NoError(t, err)
	assertDec(t, "8", line.ReservedQuantity)

	gi, err := e.svc.CreateGoodsIssue(ctx, commands.CreateGoodsIssue{Items: []commands.GoodsIssueLine{
		{ProductID: e.Bulk.ID, BinID: e.BinA.ID, Quantity: dec("5")},
	}})
	require.NoError(t, err)
	_, err = e.svc.CompleteGoodsIssue(ctx, gi.ID, "picker")
	require.True(t, errors.Is(err, domain.ErrInsufficientStock))

	_, err = e.svc.ReleaseStock(ctx, commands.AdjustReservation{ProductID: e.Bulk.ID, BinID: e.BinA.ID, Quantity: dec("8")})
	require.NoError(t, err)
	_, err = e.svc.CompleteGoodsIssue(ctx, gi.ID, "picker")
	require.NoError(t, err)
	assertDec(t, "5", e.onHand(t, e.Bulk.ID, e.BinA.ID))
}

func TestStockTransfer_MovesLotsAndSerials(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.receive(t,
		commands.GoodsReceiptLine{ProductID: e.Batch.ID, BinID: e.BinA.ID, Quantity: dec("6"), BatchNumber: strp("L1"), ExpiryDate: date("2031-03-01")},
		commands.GoodsReceiptLine{ProductID: e.Serial.ID, BinID: e.BinA.ID, Quantity: dec("2"), SerialNumbers: []string{"SN-1", "SN-2"}},
	)

	st, err := e.svc.CreateStockTransfer(ctx, commands.CreateStockTransfer{Items: []commands.TransferLine{
		{ProductID: e.Batch.ID, FromBinID: e.BinA.ID, ToBinID: e.BinB.ID, Quantity: dec("4")},
		{ProductID: e.Serial.ID, FromBinID: e.BinA.ID, ToBinID: e.BinB.ID, Quantity: dec("1"), SerialNumbers: []string{"SN-2"}},
	}})
	require.NoError(t, err)
	st, err = e.svc.CompleteStockTransfer(ctx, st.ID, "mover")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, st.Status)

	assertDec(t, "2", e.lotQty(t, e.Batch.ID, e.BinA.ID, "L1"))
	moved, err := e.lots.Get(ctx, e.Batch.ID, e.BinB.ID, "L1")
	require.NoError(t, err)
	assertDec(t, "4", moved.Quantity)
	require.NotNil(t, moved.ExpiryDate)
	assert.Equal(t, 2031, moved.ExpiryDate.Year())

	unit, err := e.serials.Get(ctx, "SN-2")
	require.NoError(t, err)
	assert.True(t, unit.AtBin(e.BinB.ID))
	assertDec(t, "1", e.onHand(t, e.Serial.ID, e.BinA.ID))
	assertDec(t, "1", e.onHand(t, e.Serial.ID, e.BinB.ID))

	entries, err := e.journal.ForReference(ctx, domain.DocumentStockTransfer, st.Number)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.NotNil(t, entry.FromBinID)
		assert.NotNil(t, entry.ToBinID)
	}
}

func TestStockTransfer_BinsMustShareWarehouse(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.CreateStockTransfer(context.Background(), commands.CreateStockTransfer{Items: []commands.TransferLine{
		{ProductID: e.Bulk.ID, FromBinID: e.BinA.ID, ToBinID: e.RemoteA.ID, Quantity: dec("1")},
	}})

	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestInterWarehouse_DispatchedSerialsAreInTransit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	serialsIn := []string{"SN-1", "SN-2", "SN-3", "SN-4", "SN-5", "SN-6"}
	e.receive(t, commands.GoodsReceiptLine{ProductID: e.Serial.ID, BinID: e.BinA.ID, Quantity: dec("6"), SerialNumbers: serialsIn})

	iwt, err := e.svc.CreateInterWarehouseTransfer(ctx, commands.CreateInterWarehouseTransfer{
		FromWarehouseID: e.Main.ID,
		ToWarehouseID:   e.Remote.ID,
		Items: []commands.TransferLine{
			{ProductID: e.Serial.ID, FromBinID: e.BinA.ID, ToBinID: e.RemoteA.ID, Quantity: dec("5"), SerialNumbers: serialsIn[:5]},
		},
	})
	require.NoError(t, err)
	iwt, err = e.svc.DispatchInterWarehouseTransfer(ctx, iwt.ID, "shipper")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDispatched, iwt.Status)

	for _, sn := range serialsIn[:5] {
		u, err := e.serials.Get(ctx, sn)
		require.NoError(t, err)
		assert.Equal(t, domain.SerialInTransit, u.Status)
		assert.Nil(t, u.CurrentBinID)
	}
	assertDec(t, "1", e.onHand(t, e.Serial.ID, e.BinA.ID))

	gi, err := e.svc.CreateGoodsIssue(ctx, commands.CreateGoodsIssue{Items: []commands.GoodsIssueLine{
		{ProductID: e.Serial.ID, BinID: e.BinA.ID, Quantity: dec("1"), SerialNumbers: []string{"SN-1"}},
	}})
	require.NoError(t, err)
	_, err = e.svc.CompleteGoodsIssue(ctx, gi.ID, "picker")
	require.True(t, errors.Is(err, domain.ErrSerialConflict), "got %v", err)
	assertDec(t, "1", e.onHand(t, e.Serial.ID, e.BinA.ID), "rejected issue leaves the ledger untouched")

	_, err = e.svc.CancelInterWarehouseTransfer(ctx, iwt.ID)
	assert.True(t, errors.Is(err, domain.ErrInvalidState), "dispatched transfers cannot be cancelled")

	iwt, err = e.svc.ReceiveInterWarehouseTransfer(ctx, commands.ReceiveInterWarehouseTransfer{TransferID: iwt.ID, PerformedBy: "receiver"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReceived, iwt.Status)
	assertDec(t, "5", e.onHand(t, e.Serial.ID, e.RemoteA.ID))
	u, err := e.serials.Get(ctx, "SN-3")
	require.NoError(t, err)
	assert.True(t, u.AtBin(e.RemoteA.ID))

	entries, err := e.journal.ForReference(ctx, domain.DocumentInterWarehouseTransfer, iwt.Number)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestInterWarehouse_PartialReceiptOfLots(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.receive(t,
		commands.GoodsReceiptLine{ProductID: e.Batch.ID, BinID: e.BinA.ID, Quantity: dec("3"), BatchNumber: strp("EARLY"), ExpiryDate: date("2030-01-15")},
		commands.GoodsReceiptLine{ProductID: e.Batch.ID, BinID: e.BinA.ID, Quantity: dec("5"), BatchNumber: strp("LATE"), ExpiryDate: date("2030-12-31")},
	)

	iwt, err := e.svc.CreateInterWarehouseTransfer(ctx, commands.CreateInterWarehouseTransfer{
		FromWarehouseID: e.Main.ID,
		ToWarehouseID:   e.Remote.ID,
		Items: []commands.TransferLine{
			{ProductID: e.Batch.ID, FromBinID: e.BinA.ID, ToBinID: e.RemoteA.ID, Quantity: dec("6")},
		},
	})
	require.NoError(t, err)
	iwt, err = e.svc.DispatchInterWarehouseTransfer(ctx, iwt.ID, "shipper")
	require.NoError(t, err)
	assertDec(t, "0", e.lotQty(t, e.Batch.ID, e.BinA.ID, "EARLY"))
	assertDec(t, "2", e.lotQty(t, e.Batch.ID, e.BinA.ID, "LATE"))
	assertDec(t, "2", e.onHand(t, e.Batch.ID, e.BinA.ID))

	itemID := iwt.Items[0].ID
	tooMuch := dec("7")
	_, err = e.svc.ReceiveInterWarehouseTransfer(ctx, commands.ReceiveInterWarehouseTransfer{
		TransferID: iwt.ID,
		Items:      []commands.ReceiveLine{{ItemID: itemID, Quantity: &tooMuch}},
	})
	require.True(t, errors.Is(err, domain.ErrValidation))

	four := dec("4")
	iwt, err = e.svc.ReceiveInterWarehouseTransfer(ctx, commands.ReceiveInterWarehouseTransfer{
		TransferID: iwt.ID,
		Items:      []commands.ReceiveLine{{ItemID: itemID, Quantity: &four}},
	})
	require.NoError(t, err)

	assertDec(t, "4", e.onHand(t, e.Batch.ID, e.RemoteA.ID))
	assertDec(t, "3", e.lotQty(t, e.Batch.ID, e.RemoteA.ID, "EARLY"))
	assertDec(t, "1", e.lotQty(t, e.Batch.ID, e.RemoteA.ID, "LATE"))
	assertDec(t, "4", iwt.Items[0].ReceivedQuantity)
	assertDec(t, "2", iwt.Items[0].InTransitQuantity())

	entries, err := e.journal.ForReference(ctx, domain.DocumentInterWarehouseTransfer, iwt.Number)
	require.NoError(t, err)
	var receive *domain.MovementEntry
	for i := range entries {
		if entries[i].MovementType == domain.MovementInterWarehouseReceive {
			receive = &entries[i]
		}
	}
	require.NotNil(t, receive)
	assert.Equal(t, "2", receive.Metadata["shortfall"])
}

func TestInterWarehouse_SerialItemsReceiveInFull(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.receive(t, commands.GoodsReceiptLine{ProductID: e.Serial.ID, BinID: e.BinA.ID, Quantity: dec("2"), SerialNumbers: []string{"SN-1", "SN-2"}})

	iwt, err := e.svc.CreateInterWarehouseTransfer(ctx, commands.CreateInterWarehouseTransfer{
		FromWarehouseID: e.Main.ID,
		ToWarehouseID:   e.Remote.ID,
		Items: []commands.TransferLine{
			{ProductID: e.Serial.ID, FromBinID: e.BinA.ID, ToBinID: e.RemoteA.ID, Quantity: dec("2"), SerialNumbers: []string{"SN-1", "SN-2"}},
		},
	})
	require.NoError(t, err)
	iwt, err = e.svc.DispatchInterWarehouseTransfer(ctx, iwt.ID, "shipper")
	require.NoError(t, err)

	one := dec("1")
	_, err = e.svc.ReceiveInterWarehouseTransfer(ctx, commands.ReceiveInterWarehouseTransfer{
		TransferID: iwt.ID,
		Items:      []commands.ReceiveLine{{ItemID: iwt.Items[0].ID, Quantity: &one, SerialNumbers: []string{"SN-1"}}},
	})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = e.svc.ReceiveInterWarehouseTransfer(ctx, commands.ReceiveInterWarehouseTransfer{
		TransferID: iwt.ID,
		Items:      []commands.ReceiveLine{{ItemID: "unknown"}},
	})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestInterWarehouse_BinsMustMatchWarehouses(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.CreateInterWarehouseTransfer(ctx, commands.CreateInterWarehouseTransfer{
		FromWarehouseID: e.Main.ID,
		ToWarehouseID:   e.Main.ID,
	})
	assert.True(t, errors.Is(err, domain.ErrValidation), "warehouses must differ")

	_, err = e.svc.CreateInterWarehouseTransfer(ctx, commands.CreateInterWarehouseTransfer{
		FromWarehouseID: e.Main.ID,
		ToWarehouseID:   e.Remote.ID,
		Items: []commands.TransferLine{
			{ProductID: e.Bulk.ID, FromBinID: e.RemoteA.ID, ToBinID: e.RemoteB.ID, Quantity: dec("1")},
		},
	})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	iwt, err := e.svc.CreateInterWarehouseTransfer(ctx, commands.CreateInterWarehouseTransfer{
		FromWarehouseID: e.Main.ID,
		ToWarehouseID:   e.Remote.ID,
	})
	require.NoError(t, err)
	_, err = e.svc.CancelInterWarehouseTransfer(ctx, iwt.ID)
	require.NoError(t, err)
}

func countItemAt(t *testing.T, c *domain.InventoryCountSession, binID string) domain.InventoryCountItem {
	t.Helper()
	for _, item := range c.Items {
		if item.BinID == binID {
			return item
		}
	}
	t.Fatalf("no count item for bin %s", binID)
	return domain.InventoryCountItem{}
}

func TestInventoryCount_ToleranceRecountAndCompletion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.receive(t,
		commands.GoodsReceiptLine{ProductID: e.Bulk.ID, BinID: e.BinA.ID, Quantity: dec("10")},
		commands.GoodsReceiptLine{ProductID: e.Bulk.ID, BinID: e.BinB.ID, Quantity: dec("5")},
		commands.GoodsReceiptLine{ProductID: e.Bulk.ID, BinID: e.RemoteA.ID, Quantity: dec("1")},
	)

	c, err := e.svc.CreateInventoryCount(ctx, commands.CreateInventoryCount{WarehouseID: &e.Main.ID, ToleranceQuantity: dec("1")})
	require.NoError(t, err)
	_, err = e.svc.RecordCount(ctx, commands.RecordCount{SessionID: c.ID, ItemID: "x", CountedQuantity: dec("1")})
	assert.True(t, errors.Is(err, domain.ErrInvalidState), "counts need a generated session")

	c, err = e.svc.GenerateInventoryCount(ctx, c.ID, "counter")
	require.NoError(t, err)
	require.Len(t, c.Items, 2, "only bins of the scoped warehouse are snapshotted")
	a := countItemAt(t, c, e.BinA.ID)
	b := countItemAt(t, c, e.BinB.ID)

	item, err := e.svc.RecordCount(ctx, commands.RecordCount{SessionID: c.ID, ItemID: a.ID, CountedQuantity: dec("7")})
	require.NoError(t, err)
	assert.True(t, item.RecountRequired)
	assert.Equal(t, 1, item.CountAttempts)

	_, err = e.svc.CompleteInventoryCount(ctx, c.ID, "counter")
	assert.True(t, errors.Is(err, domain.ErrInvalidState), "uncounted items block completion")

	item, err = e.svc.RecordCount(ctx, commands.RecordCount{SessionID: c.ID, ItemID: b.ID, CountedQuantity: dec("5.5")})
	require.NoError(t, err)
	assert.False(t, item.RecountRequired)

	_, err = e.svc.CompleteInventoryCount(ctx, c.ID, "counter")
	assert.True(t, errors.Is(err, domain.ErrRecountRequired))

	item, err = e.svc.RecordCount(ctx, commands.RecordCount{SessionID: c.ID, ItemID: a.ID, CountedQuantity: dec("7")})
	require.NoError(t, err)
	assert.True(t, item.RecountRequired, "a recount outside tolerance stays flagged")
	assert.Equal(t, 2, item.CountAttempts)

	_, err = e.svc.CompleteInventoryCount(ctx, c.ID, "counter")
	assert.True(t, errors.Is(err, domain.ErrRecountRequired))

	item, err = e.svc.RecordCount(ctx, commands.RecordCount{SessionID: c.ID, ItemID: a.ID, CountedQuantity: dec("9.5")})
	require.NoError(t, err)
	assert.False(t, item.RecountRequired)
	assert.Equal(t, 3, item.CountAttempts)

	c, err = e.svc.CompleteInventoryCount(ctx, c.ID, "counter")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, c.Status)
	assertDec(t, "9.5", e.onHand(t, e.Bulk.ID, e.BinA.ID))
	assertDec(t, "5.5", e.onHand(t, e.Bulk.ID, e.BinB.ID))
	assertDec(t, "1", e.onHand(t, e.Bulk.ID, e.RemoteA.ID))

	entries, err := e.journal.ForReference(ctx, domain.DocumentInventoryCount, c.Number)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, domain.MovementInventoryAdjustment, entry.MovementType)
		switch {
		case entry.FromBinID != nil:
			assert.Equal(t, e.BinA.ID, *entry.FromBinID)
			assertDec(t, "0.5", entry.Quantity)
			assert.Equal(t, "-0.5", entry.Metadata["difference"])
		default:
			assert.Equal(t, e.BinB.ID, *entry.ToBinID)
			assertDec(t, "0.5", entry.Quantity)
		}
	}
}

func TestInventoryCount_NegativeAdjustmentTrimsLots(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.receive(t,
		commands.GoodsReceiptLine{ProductID: e.Batch.ID, BinID: e.BinA.ID, Quantity: dec("4"), BatchNumber: strp("LATE"), ExpiryDate: date("2030-12-31")},
		commands.GoodsReceiptLine{ProductID: e.Batch.ID, BinID: e.BinA.ID, Quantity: dec("4"), BatchNumber: strp("EARLY"), ExpiryDate: date("2030-01-15")},
	)

	c, err := e.svc.CreateInventoryCount(ctx, commands.CreateInventoryCount{ToleranceQuantity: dec("10")})
	require.NoError(t, err)
	c, err = e.svc.GenerateInventoryCount(ctx, c.ID, "counter")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	_, err = e.svc.RecordCount(ctx, commands.RecordCount{SessionID: c.ID, ItemID: c.Items[0].ID, CountedQuantity: dec("5")})
	require.NoError(t, err)
	_, err = e.svc.CompleteInventoryCount(ctx, c.ID, "counter")
	require.NoError(t, err)

	assertDec(t, "5", e.onHand(t, e.Batch.ID, e.BinA.ID))
	sum, err := e.lots.Sum(ctx, e.Batch.ID, e.BinA.ID)
	require.NoError(t, err)
	assertDec(t, "5", sum)
	assertDec(t, "1", e.lotQty(t, e.Batch.ID, e.BinA.ID, "EARLY"))
	assertDec(t, "4", e.lotQty(t, e.Batch.ID, e.BinA.ID, "LATE"))
}

func TestInventoryCount_Cancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	c, err := e.svc.CreateInventoryCount(ctx, commands.CreateInventoryCount{})
	require.NoError(t, err)
	_, err = e.svc.GenerateInventoryCount(ctx, c.ID, "counter")
	require.NoError(t, err)
	c, err = e.svc.CancelInventoryCount(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, c.Status)

	_, err = e.svc.CompleteInventoryCount(ctx, c.ID, "counter")
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	_, err = e.svc.CreateInventoryCount(ctx, commands.CreateInventoryCount{ToleranceQuantity: dec("-1")})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestSliceAllocations(t *testing.T) {
	allocs := []domain.BatchAllocation{
		{BatchNumber: "A", Quantity: dec("3")},
		{BatchNumber: "B", Quantity: dec("3")},
	}

	got := sliceAllocations(allocs, decimal.Zero, dec("4"))
	require.Len(t, got, 2)
	assertDec(t, "3", got[0].Quantity)
	assertDec(t, "1", got[1].Quantity)

	got = sliceAllocations(allocs, dec("4"), dec("10"))
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].BatchNumber)
	assertDec(t, "2", got[0].Quantity)

	assert.Empty(t, sliceAllocations(allocs, dec("6"), dec("1")))
	assert.Empty(t, sliceAllocations(nil, decimal.Zero, dec("1")))
}
