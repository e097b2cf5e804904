package lots

import (
	"context"
	"fmt"
	"strings"
	"time"

	"directstock/internal/domain"
	"directstock/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Registry owns the per (product, bin, batch) lot lines of batch-tracked products
type Registry struct {
	db     *store.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewRegistry(db *store.DB, logger *zap.Logger) *Registry {
	return &Registry{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// DepositResult reports the lot after a deposit
type DepositResult struct {
	Lot *domain.LotLine
	// ExpiryMismatch is set when the deposit named a different expiry than the one
	// the batch was first seen with. The first-seen expiry is kept.
	ExpiryMismatch  bool
	RequestedExpiry *time.Time
}

// Deposit adds quantity to a lot, creating it on first use
func (r *Registry) Deposit(ctx context.Context, productID, binID, batchNumber string, quantity decimal.Decimal, expiry *time.Time) (*DepositResult, error) {
	batchNumber = strings.TrimSpace(batchNumber)
	if batchNumber == "" {
		return nil, domain.NewFieldError("batch_number", "batch number is required for batch-tracked products")
	}
	if err := domain.RequirePositive("quantity", quantity); err != nil {
		return nil, err
	}

	var result *DepositResult
	err := r.db.WithinTx(ctx, func(ctx context.Context) error {
		now := r.now()
		_, err := r.db.Exec(ctx, `
			INSERT INTO lot_lines (id, product_id, bin_id, batch_number, quantity, expiry_date, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (product_id, bin_id, batch_number) DO NOTHING`,
			uuid.New().String(), productID, binID, batchNumber, decimal.Zero, expiry, now, now)
		if err != nil {
			return fmt.Errorf("failed to create lot line: %w", err)
		}

		lot, err := r.lock(ctx, productID, binID, batchNumber)
		if err != nil {
			return err
		}

		result = &DepositResult{Lot: lot, RequestedExpiry: expiry}
		if expiry != nil && !sameDate(lot.ExpiryDate, expiry) {
			result.ExpiryMismatch = true
			r.logger.Warn("Lot expiry mismatch, keeping first-seen expiry",
				zap.String("product_id", productID),
				zap.String("bin_id", binID),
				zap.String("batch_number", batchNumber),
				zap.Timep("stored_expiry", lot.ExpiryDate),
				zap.Timep("requested_expiry", expiry),
			)
		}

		lot.Quantity = lot.Quantity.Add(quantity)
		lot.UpdatedAt = now
		return r.save(ctx, lot)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AllocateFefo consumes required quantity from the lots of (product, bin) in FEFO order
// and returns the per-batch breakdown. A shortfall consumes nothing.
func (r *Registry) AllocateFefo(ctx context.Context, productID, binID string, required decimal.Decimal) ([]domain.BatchAllocation, error) {
	var plan []domain.BatchAllocation
	err := r.db.WithinTx(ctx, func(ctx context.Context) error {
		lots, err := r.lockAll(ctx, productID, binID)
		if err != nil {
			return err
		}
		plan, err = PlanFefo(productID, binID, lots, required)
		if err != nil {
			return err
		}
		return r.consume(ctx, lots, plan)
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// Withdraw takes quantity from one named batch
func (r *Registry) Withdraw(ctx context.Context, productID, binID, batchNumber string, quantity decimal.Decimal) (*domain.BatchAllocation, error) {
	if err := domain.RequirePositive("quantity", quantity); err != nil {
		return nil, err
	}
	var alloc *domain.BatchAllocation
	err := r.db.WithinTx(ctx, func(ctx context.Context) error {
		lot, err := r.lock(ctx, productID, binID, batchNumber)
		if err != nil {
			if domain.KindOf(err) == domain.KindNotFound {
				return domain.NewInsufficientLotStock(productID, binID, batchNumber, decimal.Zero, quantity)
			}
			return err
		}
		if lot.Quantity.LessThan(quantity) {
			return domain.NewInsufficientLotStock(productID, binID, batchNumber, lot.Quantity, quantity)
		}
		lot.Quantity = lot.Quantity.Sub(quantity)
		lot.UpdatedAt = r.now()
		if err := r.save(ctx, lot); err != nil {
			return err
		}
		alloc = &domain.BatchAllocation{BatchNumber: lot.BatchNumber, Quantity: quantity, ExpiryDate: lot.ExpiryDate}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return alloc, nil
}

// TrimTo consumes lots in FEFO order until their sum no longer exceeds ceiling.
// Used when a stock line shrinks without naming batches.
func (r *Registry) TrimTo(ctx context.Context, productID, binID string, ceiling decimal.Decimal) ([]domain.BatchAllocation, error) {
	var plan []domain.BatchAllocation
	err := r.db.WithinTx(ctx, func(ctx context.Context) error {
		lots, err := r.lockAll(ctx, productID, binID)
		if err != nil {
			return err
		}
		total := decimal.Zero
		for _, lot := range lots {
			total = total.Add(lot.Quantity)
		}
		excess := total.Sub(decimal.Max(ceiling, decimal.Zero))
		if !excess.IsPositive() {
			return nil
		}
		plan, err = PlanFefo(productID, binID, lots, excess)
		if err != nil {
			return err
		}
		return r.consume(ctx, lots, plan)
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *Registry) consume(ctx context.Context, lots []domain.LotLine, plan []domain.BatchAllocation) error {
	byBatch := make(map[string]*domain.LotLine, len(lots))
	for i := range lots {
		byBatch[lots[i].BatchNumber] = &lots[i]
	}
	now := r.now()
	for _, a := range plan {
		lot := byBatch[a.BatchNumber]
		lot.Quantity = lot.Quantity.Sub(a.Quantity)
		lot.UpdatedAt = now
		if err := r.save(ctx, lot); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) lock(ctx context.Context, productID, binID, batchNumber string) (*domain.LotLine, error) {
	var lot domain.LotLine
	err := r.db.Get(ctx, &lot,
		`SELECT * FROM lot_lines WHERE product_id = ? AND bin_id = ? AND batch_number = ?`+r.db.ForUpdate(),
		productID, binID, batchNumber)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domain.NewNotFound("lot", batchNumber)
		}
		return nil, fmt.Errorf("failed to load lot line: %w", err)
	}
	return &lot, nil
}

func (r *Registry) lockAll(ctx context.Context, productID, binID string) ([]domain.LotLine, error) {
	lots := []domain.LotLine{}
	err := r.db.Select(ctx, &lots,
		`SELECT * FROM lot_lines WHERE product_id = ? AND bin_id = ? ORDER BY batch_number`+r.db.ForUpdate(),
		productID, binID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lot lines: %w", err)
	}
	return lots, nil
}

func (r *Registry) save(ctx context.Context, lot *domain.LotLine) error {
	_, err := r.db.Exec(ctx, `UPDATE lot_lines SET quantity = ?, updated_at = ? WHERE id = ?`,
		lot.Quantity, lot.UpdatedAt, lot.ID)
	if err != nil {
		return fmt.Errorf("failed to update lot line: %w", err)
	}
	return nil
}

// Get returns one lot
func (r *Registry) Get(ctx context.Context, productID, binID, batchNumber string) (*domain.LotLine, error) {
	var lot domain.LotLine
	err := r.db.Get(ctx, &lot,
		`SELECT * FROM lot_lines WHERE product_id = ? AND bin_id = ? AND batch_number = ?`,
		productID, binID, batchNumber)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domain.NewNotFound("lot", batchNumber)
		}
		return nil, fmt.Errorf("failed to load lot line: %w", err)
	}
	return &lot, nil
}

// Filter narrows List; empty fields are ignored
type Filter struct {
	ProductID string
	BinID     string
}

// List returns lots in FEFO order per (product, bin)
func (r *Registry) List(ctx context.Context, f Filter) ([]domain.LotLine, error) {
	query := `SELECT * FROM lot_lines`
	var where []string
	var args []any
	if f.ProductID != "" {
		where = append(where, "product_id = ?")
		args = append(args, f.ProductID)
	}
	if f.BinID != "" {
		where = append(where, "bin_id = ?")
		args = append(args, f.BinID)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY product_id, bin_id"

	lots := []domain.LotLine{}
	if err := r.db.Select(ctx, &lots, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list lot lines: %w", err)
	}

	// FEFO within each (product, bin) group; the query already groups them
	start := 0
	for i := 1; i <= len(lots); i++ {
		if i == len(lots) || lots[i].ProductID != lots[start].ProductID || lots[i].BinID != lots[start].BinID {
			SortFefo(lots[start:i])
			start = i
		}
	}
	return lots, nil
}

// Sum returns the total lot quantity of (product, bin)
func (r *Registry) Sum(ctx context.Context, productID, binID string) (decimal.Decimal, error) {
	lots, err := r.List(ctx, Filter{ProductID: productID, BinID: binID})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, lot := range lots {
		total = total.Add(lot.Quantity)
	}
	return total, nil
}
