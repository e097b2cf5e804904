package serials

import (
	"context"
	"errors"
	"testing"

	"directstock/internal/catalog/catalogtest"
	"directstock/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func reason(t *testing.T, err error) string {
	t.Helper()
	var de *domain.DomainError
	require.True(t, errors.As(err, &de), "expected a domain error, got %v", err)
	assert.Equal(t, domain.KindSerialConflict, de.Kind)
	return de.Details["reason"].(string)
}

func TestReceive_CreatesUnitsInStock(t *testing.T) {
	f := catalogtest.New(t)
	r := NewRegistry(f.DB, zap.NewNop())
	ctx := context.Background()

	units, err := r.Receive(ctx, f.Serial.ID, f.BinA.ID, []string{"SN-1", "SN-2"})
	require.NoError(t, err)
	assert.Len(t, units, 2)

	u, err := r.Get(ctx, "SN-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SerialInStock, u.Status)
	assert.True(t, u.AtBin(f.BinA.ID))

	_, err = r.Receive(ctx, f.Serial.ID, f.BinB.ID, []string{"SN-3", "SN-1"})
	assert.Equal(t, ReasonAlreadyExists, reason(t, err))
	_, err = r.Get(ctx, "SN-3")
	assert.True(t, errors.Is(err, domain.ErrNotFound), "a rejected receipt writes no serials")
}

func TestReceive_ReactivatesIssuedUnitOfSameProduct(t *testing.T) {
	f := catalogtest.New(t)
	r := NewRegistry(f.DB, zap.NewNop())
	ctx := context.Background()

	_, err := r.Receive(ctx, f.Serial.ID, f.BinA.ID, []string{"SN-1"})
	require.NoError(t, err)
	require.NoError(t, r.Issue(ctx, f.Serial.ID, f.BinA.ID, []string{"SN-1"}))

	_, err = r.Receive(ctx, f.Bulk.ID, f.BinB.ID, []string{"SN-1"})
	assert.Equal(t, ReasonProductMismatch, reason(t, err))

	_, err = r.Receive(ctx, f.Serial.ID, f.BinB.ID, []string{"SN-1"})
	require.NoError(t, err)
	u, err := r.Get(ctx, "SN-1")
	require.NoError(t, err)
	assert.True(t, u.AtBin(f.BinB.ID))
}

func TestIssue_GuardsAreAllOrNothing(t *testing.T) {
	f := catalogtest.New(t)
	r := NewRegistry(f.DB, zap.NewNop())
	ctx := context.Background()

	_, err := r.Receive(ctx, f.Serial.ID, f.BinA.ID, []string{"SN-1", "SN-2"})
	require.NoError(t, err)
	_, err = r.Receive(ctx, f.Serial.ID, f.BinB.ID, []string{"SN-3"})
	require.NoError(t, err)

	err = r.Issue(ctx, f.Serial.ID, f.BinA.ID, []string{"SN-1", "SN-3"})
	assert.Equal(t, ReasonLocationMismatch, reason(t, err))

	err = r.Issue(ctx, f.Serial.ID, f.BinA.ID, []string{"SN-1", "SN-404"})
	assert.Equal(t, ReasonNotFound, reason(t, err))

	u, err := r.Get(ctx, "SN-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SerialInStock, u.Status, "other serials in a rejected request stay untouched")

	require.NoError(t, r.Issue(ctx, f.Serial.ID, f.BinA.ID, []string{"SN-1", "SN-2"}))
	err = r.Issue(ctx, f.Serial.ID, f.BinA.ID, []string{"SN-1"})
	assert.Equal(t, ReasonStatusMismatch, reason(t, err))
}

func TestDispatchAndReceiveTransit(t *testing.T) {
	f := catalogtest.New(t)
	r := NewRegistry(f.DB, zap.NewNop())
	ctx := context.Background()

	_, err := r.Receive(ctx, f.Serial.ID, f.BinA.ID, []string{"SN-1"})
	require.NoError(t, err)

	require.NoError(t, r.Dispatch(ctx, f.Serial.ID, f.BinA.ID, []string{"SN-1"}))
	u, err := r.Get(ctx, "SN-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SerialInTransit, u.Status)
	assert.Nil(t, u.CurrentBinID)

	err = r.Issue(ctx, f.Serial.ID, f.BinA.ID, []string{"SN-1"})
	assert.Equal(t, ReasonStatusMismatch, reason(t, err))

	require.NoError(t, r.ReceiveTransit(ctx, f.Serial.ID, f.RemoteA.ID, []string{"SN-1"}))
	u, err = r.Get(ctx, "SN-1")
	require.NoError(t, err)
	assert.True(t, u.AtBin(f.RemoteA.ID))

	err = r.ReceiveTransit(ctx, f.Serial.ID, f.RemoteA.ID, []string{"SN-1"})
	assert.Equal(t, ReasonStatusMismatch, reason(t, err))
}

func TestRelocate(t *testing.T) {
	f := catalogtest.New(t)
	r := NewRegistry(f.DB, zap.NewNop())
	ctx := context.Background()

	_, err := r.Receive(ctx, f.Serial.ID, f.BinA.ID, []string{"SN-1", "SN-2"})
	require.NoError(t, err)

	require.NoError(t, r.Relocate(ctx, f.Serial.ID, f.BinA.ID, f.BinB.ID, []string{"SN-2"}))

	atA, err := r.ListAtBin(ctx, f.Serial.ID, f.BinA.ID)
	require.NoError(t, err)
	atB, err := r.ListAtBin(ctx, f.Serial.ID, f.BinB.ID)
	require.NoError(t, err)
	assert.Len(t, atA, 1)
	require.Len(t, atB, 1)
	assert.Equal(t, "SN-2", atB[0].SerialNumber)
}

func TestCheck_ProductMismatch(t *testing.T) {
	bin := "b-1"
	units := map[string]*domain.SerialUnit{
		"SN-1": {SerialNumber: "SN-1", ProductID: "other", Status: domain.SerialInStock, CurrentBinID: &bin},
	}

	err := Check(units, "p-1", []string{"SN-1"}, inStockAt(bin))

	assert.Equal(t, ReasonProductMismatch, reason(t, err))
}
