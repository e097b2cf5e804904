package serials

import (
	"context"
	"fmt"
	"time"

	"directstock/internal/domain"
	"directstock/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Conflict reasons reported in error details
const (
	ReasonNotFound         = "not_found"
	ReasonProductMismatch  = "product_mismatch"
	ReasonStatusMismatch   = "status_mismatch"
	ReasonLocationMismatch = "location_mismatch"
	ReasonAlreadyExists    = "already_exists"
)

// Registry tracks individually identified units. Every operation checks all named
// serials before writing any of them.
type Registry struct {
	db     *store.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewRegistry(db *store.DB, logger *zap.Logger) *Registry {
	return &Registry{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Receive puts serials in stock at binID. Unknown serials are created; a serial that
// was issued for the same product is brought back into stock.
func (r *Registry) Receive(ctx context.Context, productID, binID string, serials []string) ([]domain.SerialUnit, error) {
	var out []domain.SerialUnit
	err := r.db.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := r.lockMany(ctx, serials)
		if err != nil {
			return err
		}
		for _, sn := range serials {
			u, ok := existing[sn]
			if !ok {
				continue
			}
			if u.ProductID != productID {
				return conflict(sn, ReasonProductMismatch, map[string]any{"expected_product_id": productID, "product_id": u.ProductID})
			}
			if u.Status != domain.SerialIssued {
				return conflict(sn, ReasonAlreadyExists, map[string]any{"status": string(u.Status)})
			}
		}

		now := r.now()
		for _, sn := range serials {
			if u, ok := existing[sn]; ok {
				u.Place(binID, now)
				if err := r.save(ctx, u); err != nil {
					return err
				}
				out = append(out, *u)
				continue
			}
			u := domain.SerialUnit{
				ID:           uuid.New().String(),
				SerialNumber: sn,
				ProductID:    productID,
				CreatedAt:    now,
			}
			u.Place(binID, now)
			_, err := r.db.NamedExec(ctx, `
				INSERT INTO serial_units (id, serial_number, product_id, current_bin_id, status, created_at, updated_at)
				VALUES (:id, :serial_number, :product_id, :current_bin_id, :status, :created_at, :updated_at)`, &u)
			if err != nil {
				if store.IsUniqueViolation(err) {
					return conflict(sn, ReasonAlreadyExists, nil)
				}
				return fmt.Errorf("failed to insert serial unit: %w", err)
			}
			out = append(out, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Issue marks serials in stock at fromBinID as issued
func (r *Registry) Issue(ctx context.Context, productID, fromBinID string, serials []string) error {
	return r.transition(ctx, productID, serials, inStockAt(fromBinID), func(u *domain.SerialUnit, now time.Time) {
		u.Detach(domain.SerialIssued, now)
	})
}

// Dispatch marks serials in stock at fromBinID as in transit
func (r *Registry) Dispatch(ctx context.Context, productID, fromBinID string, serials []string) error {
	return r.transition(ctx, productID, serials, inStockAt(fromBinID), func(u *domain.SerialUnit, now time.Time) {
		u.Detach(domain.SerialInTransit, now)
	})
}

// ReceiveTransit puts in-transit serials in stock at toBinID
func (r *Registry) ReceiveTransit(ctx context.Context, productID, toBinID string, serials []string) error {
	return r.transition(ctx, productID, serials, inTransit, func(u *domain.SerialUnit, now time.Time) {
		u.Place(toBinID, now)
	})
}

// Relocate moves serials in stock at fromBinID to toBinID
func (r *Registry) Relocate(ctx context.Context, productID, fromBinID, toBinID string, serials []string) error {
	return r.transition(ctx, productID, serials, inStockAt(fromBinID), func(u *domain.SerialUnit, now time.Time) {
		u.Place(toBinID, now)
	})
}

// Guard checks a loaded unit before a transition
type Guard func(u *domain.SerialUnit) error

func inStockAt(binID string) Guard {
	return func(u *domain.SerialUnit) error {
		if u.Status != domain.SerialInStock {
			return conflict(u.SerialNumber, ReasonStatusMismatch, map[string]any{
				"expected_status": string(domain.SerialInStock),
				"status":          string(u.Status),
			})
		}
		if !u.AtBin(binID) {
			return conflict(u.SerialNumber, ReasonLocationMismatch, map[string]any{
				"expected_bin_id": binID,
				"bin_id":          derefOrEmpty(u.CurrentBinID),
			})
		}
		return nil
	}
}

func inTransit(u *domain.SerialUnit) error {
	if u.Status != domain.SerialInTransit {
		return conflict(u.SerialNumber, ReasonStatusMismatch, map[string]any{
			"expected_status": string(domain.SerialInTransit),
			"status":          string(u.Status),
		})
	}
	return nil
}

// Check runs existence, ownership and guard checks over every serial without writing
func Check(units map[string]*domain.SerialUnit, productID string, serials []string, guard Guard) error {
	for _, sn := range serials {
		u, ok := units[sn]
		if !ok {
			return conflict(sn, ReasonNotFound, nil)
		}
		if u.ProductID != productID {
			return conflict(sn, ReasonProductMismatch, map[string]any{
				"expected_product_id": productID,
				"product_id":          u.ProductID,
			})
		}
		if err := guard(u); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) transition(ctx context.Context, productID string, serials []string, guard Guard, apply func(*domain.SerialUnit, time.Time)) error {
	if len(serials) == 0 {
		return nil
	}
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		units, err := r.lockMany(ctx, serials)
		if err != nil {
			return err
		}
		if err := Check(units, productID, serials, guard); err != nil {
			r.logger.Warn("Serial guard failed", zap.String("product_id", productID), zap.Error(err))
			return err
		}
		now := r.now()
		for _, sn := range serials {
			u := units[sn]
			apply(u, now)
			if err := r.save(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Registry) lockMany(ctx context.Context, serials []string) (map[string]*domain.SerialUnit, error) {
	out := make(map[string]*domain.SerialUnit, len(serials))
	if len(serials) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM serial_units WHERE serial_number IN (?)`+r.db.ForUpdate(), serials)
	if err != nil {
		return nil, fmt.Errorf("failed to build serial query: %w", err)
	}
	units := []domain.SerialUnit{}
	if err := r.db.Select(ctx, &units, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load serial units: %w", err)
	}
	for i := range units {
		out[units[i].SerialNumber] = &units[i]
	}
	return out, nil
}

func (r *Registry) save(ctx context.Context, u *domain.SerialUnit) error {
	_, err := r.db.Exec(ctx, `UPDATE serial_units SET current_bin_id = ?, status = ?, updated_at = ? WHERE id = ?`,
		u.CurrentBinID, u.Status, u.UpdatedAt, u.ID)
	if err != nil {
		return fmt.Errorf("failed to update serial unit: %w", err)
	}
	return nil
}

// Get returns a serial unit by number
func (r *Registry) Get(ctx context.Context, serialNumber string) (*domain.SerialUnit, error) {
	var u domain.SerialUnit
	err := r.db.Get(ctx, &u, `SELECT * FROM serial_units WHERE serial_number = ?`, serialNumber)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domain.NewNotFound("serial", serialNumber)
		}
		return nil, fmt.Errorf("failed to load serial unit: %w", err)
	}
	return &u, nil
}

// ListAtBin returns the in-stock serials of a product at a bin
func (r *Registry) ListAtBin(ctx context.Context, productID, binID string) ([]domain.SerialUnit, error) {
	units := []domain.SerialUnit{}
	err := r.db.Select(ctx, &units,
		`SELECT * FROM serial_units WHERE product_id = ? AND current_bin_id = ? AND status = ? ORDER BY serial_number`,
		productID, binID, domain.SerialInStock)
	if err != nil {
		return nil, fmt.Errorf("failed to list serial units: %w", err)
	}
	return units, nil
}

func conflict(serial, reason string, details map[string]any) error {
	return domain.NewSerialConflict(serial, reason, details)
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
