// Package catalogtest seeds master data for store-backed tests.
package catalogtest

import (
	"context"
	"testing"

	"directstock/internal/catalog"
	"directstock/internal/domain"
	"directstock/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Fixture is a fresh in-memory database with two warehouses of two bins each and
// one product per tracking mode.
type Fixture struct {
	DB      *store.DB
	Catalog *catalog.Repository

	Main, Remote        *domain.Warehouse
	BinA, BinB          *domain.Bin // in Main
	RemoteA, RemoteB    *domain.Bin // in Remote
	Bulk, Batch, Serial *domain.Product
}

func New(t *testing.T) *Fixture {
	t.Helper()
	db, err := store.OpenMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	repo := catalog.NewRepository(db, zap.NewNop())
	f := &Fixture{DB: db, Catalog: repo}

	f.Main, err = repo.CreateWarehouse(ctx, "MAIN", "Main warehouse")
	require.NoError(t, err)
	f.Remote, err = repo.CreateWarehouse(ctx, "REMOTE", "Remote warehouse")
	require.NoError(t, err)

	f.BinA = mustBin(t, repo, f.Main.ID, "A-01")
	f.BinB = mustBin(t, repo, f.Main.ID, "B-01")
	f.RemoteA = mustBin(t, repo, f.Remote.ID, "R-01")
	f.RemoteB = mustBin(t, repo, f.Remote.ID, "R-02")

	f.Bulk = mustProduct(t, repo, catalog.NewProduct{SKU: "BULK", Name: "Bulk goods", DefaultUnit: "kg"})
	f.Batch = mustProduct(t, repo, catalog.NewProduct{SKU: "BATCH", Name: "Batch goods", RequiresBatch: true})
	f.Serial = mustProduct(t, repo, catalog.NewProduct{SKU: "SERIAL", Name: "Serial goods", RequiresSerial: true})
	return f
}

func mustBin(t *testing.T, repo *catalog.Repository, warehouseID, code string) *domain.Bin {
	t.Helper()
	b, err := repo.CreateBin(context.Background(), warehouseID, code)
	require.NoError(t, err)
	return b
}

func mustProduct(t *testing.T, repo *catalog.Repository, p catalog.NewProduct) *domain.Product {
	t.Helper()
	out, err := repo.CreateProduct(context.Background(), p)
	require.NoError(t, err)
	return out
}
