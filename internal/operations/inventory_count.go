package operations

import (
	"context"
	"fmt"

	"directstock/internal/commands"
	"directstock/internal/domain"
	"directstock/internal/ledger"
	"directstock/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateInventoryCount opens a draft count session scoped to one warehouse, or to all
// stock when no warehouse is given.
func (s *Service) CreateInventoryCount(ctx context.Context, cmd commands.CreateInventoryCount) (*domain.InventoryCountSession, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	c := &domain.InventoryCountSession{
		ID:                uuid.New().String(),
		Number:            s.newNumber(domain.DocumentInventoryCount),
		WarehouseID:       cmd.WarehouseID,
		Status:            domain.StatusDraft,
		ToleranceQuantity: cmd.ToleranceQuantity,
		Notes:             cmd.Notes,
		CreatedBy:         performer(cmd.PerformedBy),
		CreatedAt:         now,
		UpdatedAt:         now,
		Items:             []domain.InventoryCountItem{},
	}

	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
		if c.WarehouseID != nil {
			if _, err := s.catalog.GetWarehouse(ctx, *c.WarehouseID); err != nil {
				return err
			}
		}
		_, err := s.db.NamedExec(ctx, `
			INSERT INTO inventory_count_sessions (id, number, warehouse_id, status, tolerance_quantity, notes, created_by, created_at, updated_at)
			VALUES (:id, :number, :warehouse_id, :status, :tolerance_quantity, :notes, :created_by, :created_at, :updated_at)`, c)
		if err != nil {
			return fmt.Errorf("failed to insert inventory count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(domain.DocumentInventoryCount, "created", c.ID, c.Number, 0)
	return c, nil
}

func (s *Service) GetInventoryCount(ctx context.Context, id string) (*domain.InventoryCountSession, error) {
	var c domain.InventoryCountSession
	if err := s.loadHeader(ctx, &c, "inventory_count_sessions", domain.DocumentInventoryCount, id, false); err != nil {
		return nil, err
	}
	c.Items = []domain.InventoryCountItem{}
	if err := s.loadCountItems(ctx, &c.Items, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) loadCountItems(ctx context.Context, dest *[]domain.InventoryCountItem, sessionID string) error {
	err := s.db.Select(ctx, dest, `SELECT * FROM inventory_count_items WHERE session_id = ? ORDER BY product_id, bin_id`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load inventory count items: %w", err)
	}
	return nil
}

// GenerateInventoryCount snapshots the current stock lines in scope into count items
func (s *Service) GenerateInventoryCount(ctx context.Context, id, performedBy string) (*domain.InventoryCountSession, error) {
	var c domain.InventoryCountSession
	err := s.transition(ctx, domain.DocumentInventoryCount, "generate", id, func(ctx context.Context) error {
		if err := s.loadHeader(ctx, &c, "inventory_count_sessions", domain.DocumentInventoryCount, id, true); err != nil {
			return err
		}
		if err := domain.CheckTransition(domain.DocumentInventoryCount, c.ID, c.Status, domain.StatusInProgress, "generate"); err != nil {
			return err
		}

		filter := ledger.StockFilter{}
		if c.WarehouseID != nil {
			filter.WarehouseID = *c.WarehouseID
		}
		lines, err := s.ledger.List(ctx, filter)
		if err != nil {
			return err
		}

		c.Items = make([]domain.InventoryCountItem, 0, len(lines))
		for _, line := range lines {
			item := domain.InventoryCountItem{
				ID:               uuid.New().String(),
				SessionID:        c.ID,
				ProductID:        line.ProductID,
				BinID:            line.BinID,
				SnapshotQuantity: line.Quantity,
				Unit:             line.Unit,
			}
			_, err := s.db.NamedExec(ctx, `
				INSERT INTO inventory_count_items (id, session_id, product_id, bin_id, snapshot_quantity, unit, recount_required, count_attempts)
				VALUES (:id, :session_id, :product_id, :bin_id, :snapshot_quantity, :unit, :recount_required, :count_attempts)`, &item)
			if err != nil {
				return fmt.Errorf("failed to insert inventory count item: %w", err)
			}
			c.Items = append(c.Items, item)
		}

		now := s.now()
		c.Status = domain.StatusInProgress
		c.GeneratedAt = &now
		c.UpdatedAt = now
		_, err = s.db.NamedExec(ctx, `
			UPDATE inventory_count_sessions SET status = :status, generated_at = :generated_at, updated_at = :updated_at
			WHERE id = :id`, &c)
		if err != nil {
			return fmt.Errorf("failed to update inventory count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Inventory count generated",
		zap.String("document_id", c.ID),
		zap.String("number", c.Number),
		zap.Int("items", len(c.Items)),
		zap.String("performed_by", performer(performedBy)))
	return &c, nil
}

// RecordCount stores a physical count for one item. Any count outside the tolerance
// flags the item for recount; completion waits for a count within tolerance.
func (s *Service) RecordCount(ctx context.Context, cmd commands.RecordCount) (*domain.InventoryCountItem, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	var item domain.InventoryCountItem
	err := s.transition(ctx, domain.DocumentInventoryCount, "count", cmd.SessionID, func(ctx context.Context) error {
		var c domain.InventoryCountSession
		if err := s.loadHeader(ctx, &c, "inventory_count_sessions", domain.DocumentInventoryCount, cmd.SessionID, true); err != nil {
			return err
		}
		if c.Status != domain.StatusInProgress {
			return domain.NewInvalidState(string(domain.DocumentInventoryCount), c.ID, c.Status, "record count in")
		}
		err := s.db.Get(ctx, &item, `SELECT * FROM inventory_count_items WHERE id = ? AND session_id = ?`+s.db.ForUpdate(),
			cmd.ItemID, c.ID)
		if err != nil {
			if store.IsNotFound(err) {
				return domain.NewNotFound("inventory_count_item", cmd.ItemID)
			}
			return fmt.Errorf("failed to load inventory count item: %w", err)
		}

		item.RecordCount(cmd.CountedQuantity, c.ToleranceQuantity, performer(cmd.PerformedBy), s.now())
		_, err = s.db.NamedExec(ctx, `
			UPDATE inventory_count_items
			SET counted_quantity = :counted_quantity, difference = :difference, recount_required = :recount_required,
				count_attempts = :count_attempts, counted_by = :counted_by, last_counted_at = :last_counted_at
			WHERE id = :id`, &item)
		if err != nil {
			return fmt.Errorf("failed to update inventory count item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if item.RecountRequired {
		s.logger.Info("Count outside tolerance, recount required",
			zap.String("session_id", item.SessionID),
			zap.String("item_id", item.ID),
			zap.String("difference", item.Difference.Decimal.String()))
	}
	return &item, nil
}

// CompleteInventoryCount applies every non-zero difference to the ledger and journals one
// inventory_adjustment entry per changed line. Every item needs a final count first.
func (s *Service) CompleteInventoryCount(ctx context.Context, id, performedBy string) (*domain.InventoryCountSession, error) {
	var c domain.InventoryCountSession
	adjusted := 0
	err := s.transition(ctx, domain.DocumentInventoryCount, "complete", id, func(ctx context.Context) error {
		if err := s.loadHeader(ctx, &c, "inventory_count_sessions", domain.DocumentInventoryCount, id, true); err != nil {
			return err
		}
		if err := domain.CheckTransition(domain.DocumentInventoryCount, c.ID, c.Status, domain.StatusCompleted, "complete"); err != nil {
			return err
		}
		c.Items = []domain.InventoryCountItem{}
		if err := s.loadCountItems(ctx, &c.Items, c.ID); err != nil {
			return err
		}

		var uncounted, recount []string
		for _, item := range c.Items {
			switch {
			case !item.CountedQuantity.Valid:
				uncounted = append(uncounted, item.ID)
			case item.RecountRequired:
				recount = append(recount, item.ID)
			}
		}
		if len(uncounted) > 0 {
			return domain.NewUncountedItems(c.ID, uncounted)
		}
		if len(recount) > 0 {
			return domain.NewRecountRequired(c.ID, recount)
		}

		by := performer(performedBy)
		products := s.products()
		for _, item := range c.Items {
			diff := item.Difference.Decimal
			if diff.IsZero() {
				continue
			}
			product, err := products.get(ctx, item.ProductID)
			if err != nil {
				return err
			}
			line, err := s.ledger.ApplyDelta(ctx, item.ProductID, item.BinID, diff, item.Unit)
			if err != nil {
				return err
			}

			meta := domain.Metadata{
				"session_number":    c.Number,
				"snapshot_quantity": item.SnapshotQuantity.String(),
				"counted_quantity":  item.CountedQuantity.Decimal.String(),
				"difference":        diff.String(),
			}
			if product.RequiresBatch && diff.IsNegative() {
				trimmed, err := s.lots.TrimTo(ctx, item.ProductID, item.BinID, line.Quantity)
				if err != nil {
					return err
				}
				if len(trimmed) > 0 {
					meta["batch_allocations"] = trimmed
				}
			}

			entry := &domain.MovementEntry{
				MovementType:    domain.MovementInventoryAdjustment,
				ReferenceType:   domain.DocumentInventoryCount,
				ReferenceNumber: c.Number,
				ProductID:       item.ProductID,
				Quantity:        diff.Abs(),
				Unit:            item.Unit,
				PerformedBy:     by,
				Metadata:        meta,
			}
			if diff.IsPositive() {
				entry.ToBinID = strPtr(item.BinID)
			} else {
				entry.FromBinID = strPtr(item.BinID)
			}
			if err := s.journal.Append(ctx, entry); err != nil {
				return err
			}
			adjusted++
		}

		now := s.now()
		c.Status = domain.StatusCompleted
		c.CompletedBy = &by
		c.CompletedAt = &now
		c.UpdatedAt = now
		_, err := s.db.NamedExec(ctx, `
			UPDATE inventory_count_sessions SET status = :status, completed_by = :completed_by, completed_at = :completed_at, updated_at = :updated_at
			WHERE id = :id`, &c)
		if err != nil {
			return fmt.Errorf("failed to update inventory count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Inventory count completed",
		zap.String("document_id", c.ID),
		zap.String("number", c.Number),
		zap.Int("items", len(c.Items)),
		zap.Int("adjusted", adjusted))
	return &c, nil
}

// CancelInventoryCount closes a session before completion. Recorded counts are kept but
// never applied.
func (s *Service) CancelInventoryCount(ctx context.Context, id string) (*domain.InventoryCountSession, error) {
	var c domain.InventoryCountSession
	err := s.transition(ctx, domain.DocumentInventoryCount, "cancel", id, func(ctx context.Context) error {
		if err := s.loadHeader(ctx, &c, "inventory_count_sessions", domain.DocumentInventoryCount, id, true); err != nil {
			return err
		}
		if err := domain.CheckTransition(domain.DocumentInventoryCount, c.ID, c.Status, domain.StatusCancelled, "cancel"); err != nil {
			return err
		}
		_, err := s.db.Exec(ctx, `UPDATE inventory_count_sessions SET status = ?, updated_at = ? WHERE id = ?`,
			domain.StatusCancelled, s.now(), c.ID)
		if err != nil {
			return fmt.Errorf("failed to cancel inventory count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(domain.DocumentInventoryCount, "cancelled", c.ID, c.Number, 0)
	return s.GetInventoryCount(ctx, id)
}
