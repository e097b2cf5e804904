package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"directstock/internal/domain"
	"directstock/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger owns the per (product, bin) stock lines. It never journals; callers append
// the matching movement entry in the same transaction.
type Ledger struct {
	db       *store.DB
	logger   *zap.Logger
	now      func() time.Time
	mu       sync.RWMutex
	onChange []func(productID, binID string)
}

func New(db *store.DB, logger *zap.Logger) *Ledger {
	return &Ledger{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// ApplyDelta adds a signed quantity to the stock line of (product, bin), creating the
// line on first use. A result below zero fails with insufficient stock and writes nothing.
func (l *Ledger) ApplyDelta(ctx context.Context, productID, binID string, delta decimal.Decimal, unit string) (*domain.StockLine, error) {
	var line *domain.StockLine
	err := l.db.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		line, err = l.lockLine(ctx, productID, binID, unit, delta.IsPositive())
		if err != nil {
			return err
		}
		if err := line.ApplyDelta(delta, l.now()); err != nil {
			return err
		}
		return l.save(ctx, line)
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// Withdraw removes quantity checked against the available (unreserved) quantity
func (l *Ledger) Withdraw(ctx context.Context, productID, binID string, quantity decimal.Decimal) (*domain.StockLine, error) {
	if err := domain.RequirePositive("quantity", quantity); err != nil {
		return nil, err
	}
	var line *domain.StockLine
	err := l.db.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		line, err = l.lockLine(ctx, productID, binID, "", false)
		if err != nil {
			return err
		}
		if err := line.Withdraw(quantity, l.now()); err != nil {
			return err
		}
		return l.save(ctx, line)
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// Reserve earmarks available quantity without moving it
func (l *Ledger) Reserve(ctx context.Context, productID, binID string, quantity decimal.Decimal) (*domain.StockLine, error) {
	return l.adjustReserved(ctx, productID, binID, quantity, (*domain.StockLine).ReserveStock)
}

// Release returns reserved quantity to available
func (l *Ledger) Release(ctx context.Context, productID, binID string, quantity decimal.Decimal) (*domain.StockLine, error) {
	return l.adjustReserved(ctx, productID, binID, quantity, (*domain.StockLine).ReleaseStock)
}

func (l *Ledger) adjustReserved(ctx context.Context, productID, binID string, quantity decimal.Decimal,
	apply func(*domain.StockLine, decimal.Decimal, time.Time) error) (*domain.StockLine, error) {
	if err := domain.RequirePositive("quantity", quantity); err != nil {
		return nil, err
	}
	var line *domain.StockLine
	err := l.db.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		line, err = l.lockLine(ctx, productID, binID, "", false)
		if err != nil {
			return err
		}
		if err := apply(line, quantity, l.now()); err != nil {
			return err
		}
		return l.save(ctx, line)
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// lockLine loads the line for update. When create is set a missing line is inserted at zero;
// otherwise a missing line is reported as an empty line that cannot be withdrawn from.
func (l *Ledger) lockLine(ctx context.Context, productID, binID, unit string, create bool) (*domain.StockLine, error) {
	if create {
		now := l.now()
		if unit == "" {
			unit = "piece"
		}
		_, err := l.db.Exec(ctx, `
			INSERT INTO stock_lines (id, product_id, bin_id, quantity, reserved_quantity, unit, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
			ON CONFLICT (product_id, bin_id) DO NOTHING`,
			uuid.New().String(), productID, binID, decimal.Zero, decimal.Zero, unit, now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to create stock line: %w", err)
		}
	}

	var line domain.StockLine
	err := l.db.Get(ctx, &line,
		`SELECT * FROM stock_lines WHERE product_id = ? AND bin_id = ?`+l.db.ForUpdate(),
		productID, binID)
	if err != nil {
		if store.IsNotFound(err) {
			return &domain.StockLine{ProductID: productID, BinID: binID}, nil
		}
		return nil, fmt.Errorf("failed to load stock line: %w", err)
	}
	return &line, nil
}

func (l *Ledger) save(ctx context.Context, line *domain.StockLine) error {
	if line.ID == "" {
		// Only reachable for a missing line, which the domain checks never let change
		return nil
	}
	_, err := l.db.Exec(ctx, `
		UPDATE stock_lines
		SET quantity = ?, reserved_quantity = ?, version = ?, updated_at = ?
		WHERE id = ?`,
		line.Quantity, line.ReservedQuantity, line.Version, line.UpdatedAt, line.ID)
	if err != nil {
		return fmt.Errorf("failed to update stock line: %w", err)
	}
	productID, binID := line.ProductID, line.BinID
	store.AfterCommit(ctx, func() { l.changed(productID, binID) })
	return nil
}

// OnChange registers fn to run after a transaction that changed a stock line commits
func (l *Ledger) OnChange(fn func(productID, binID string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

func (l *Ledger) changed(productID, binID string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, fn := range l.onChange {
		fn(productID, binID)
	}
}

// Find returns the stock line of (product, bin)
func (l *Ledger) Find(ctx context.Context, productID, binID string) (*domain.StockLine, error) {
	var line domain.StockLine
	err := l.db.Get(ctx, &line, `SELECT * FROM stock_lines WHERE product_id = ? AND bin_id = ?`, productID, binID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domain.NewNotFound("stock_line", productID+"@"+binID)
		}
		return nil, fmt.Errorf("failed to load stock line: %w", err)
	}
	return &line, nil
}

// StockFilter narrows List; empty fields are ignored
type StockFilter struct {
	ProductID   string
	BinID       string
	WarehouseID string
}

func (l *Ledger) List(ctx context.Context, f StockFilter) ([]domain.StockLine, error) {
	query := `SELECT s.* FROM stock_lines s JOIN bins b ON b.id = s.bin_id`
	var where []string
	var args []any
	if f.ProductID != "" {
		where = append(where, "s.product_id = ?")
		args = append(args, f.ProductID)
	}
	if f.BinID != "" {
		where = append(where, "s.bin_id = ?")
		args = append(args, f.BinID)
	}
	if f.WarehouseID != "" {
		where = append(where, "b.warehouse_id = ?")
		args = append(args, f.WarehouseID)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY s.product_id, s.bin_id"

	lines := []domain.StockLine{}
	if err := l.db.Select(ctx, &lines, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list stock lines: %w", err)
	}
	return lines, nil
}

// setQuantity overwrites the quantity of a line; used only when rebuilding from the journal
func (l *Ledger) setQuantity(ctx context.Context, productID, binID, unit string, quantity decimal.Decimal) error {
	line, err := l.lockLine(ctx, productID, binID, unit, true)
	if err != nil {
		return err
	}
	line.Quantity = quantity
	line.Version++
	line.UpdatedAt = l.now()
	return l.save(ctx, line)
}
