package operations

import (
	"context"
	"errors"
	"testing"
	"time"

	"directstock/internal/catalog/catalogtest"
	"directstock/internal/commands"
	"directstock/internal/domain"
	"directstock/internal/ledger"
	"directstock/internal/lots"
	"directstock/internal/serials"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type env struct {
	*catalogtest.Fixture
	svc     *Service
	ledger  *ledger.Ledger
	journal *ledger.Journal
	lots    *lots.Registry
	serials *serials.Registry
}

func newEnv(t *testing.T) *env {
	t.Helper()
	f := catalogtest.New(t)
	logger := zap.NewNop()
	e := &env{
		Fixture: f,
		ledger:  ledger.New(f.DB, logger),
		journal: ledger.NewJournal(f.DB, logger),
		lots:    lots.NewRegistry(f.DB, logger),
		serials: serials.NewRegistry(f.DB, logger),
	}
	e.svc = NewService(Deps{
		DB:      f.DB,
		Catalog: f.Catalog,
		Ledger:  e.ledger,
		Journal: e.journal,
		Lots:    e.lots,
		Serials: e.serials,
		Logger:  logger,
	})
	return e
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

// receive books stock in through a completed goods receipt
func (e *env) receive(t *testing.T, lines ...commands.GoodsReceiptLine) *domain.GoodsReceipt {
	t.Helper()
	ctx := context.Background()
	r, err := e.svc.CreateGoodsReceipt(ctx, commands.CreateGoodsReceipt{Items: lines, PerformedBy: "receiver"})
	require.NoError(t, err)
	r, err = e.svc.CompleteGoodsReceipt(ctx, r.ID, "receiver")
	require.NoError(t, err)
	return r
}

func (e *env) onHand(t *testing.T, productID, binID string) decimal.Decimal {
	t.Helper()
	line, err := e.ledger.Find(context.Background(), productID, binID)
	if errors.Is(err, domain.ErrNotFound) {
		return decimal.Zero
	}
	require.NoError(t, err)
	return line.Quantity
}

func (e *env) lotQty(t *testing.T, productID, binID, batch string) decimal.Decimal {
	t.Helper()
	lot, err := e.lots.Get(context.Background(), productID, binID, batch)
	if err != nil {
		return decimal.Zero
	}
	return lot.Quantity
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}
