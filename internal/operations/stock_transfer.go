package operations

import (
	"context"
	"fmt"

	"directstock/internal/commands"
	"directstock/internal/domain"

	"github.com/google/uuid"
)

func (s *Service) CreateStockTransfer(ctx context.Context, cmd commands.CreateStockTransfer) (*domain.StockTransfer, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	st := &domain.StockTransfer{
		ID:        uuid.New().String(),
		Number:    s.newNumber(domain.DocumentStockTransfer),
		Status:    domain.StatusDraft,
		Notes:     cmd.Notes,
		CreatedBy: performer(cmd.PerformedBy),
		CreatedAt: now,
		UpdatedAt: now,
		Items:     []domain.StockTransferItem{},
	}

	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.db.NamedExec(ctx, `
			INSERT INTO stock_transfers (id, number, status, notes, created_by, created_at, updated_at)
			VALUES (:id, :number, :status, :notes, :created_by, :created_at, :updated_at)`, st)
		if err != nil {
			return fmt.Errorf("failed to insert stock transfer: %w", err)
		}
		products := s.products()
		for i := range cmd.Items {
			item, err := s.stageTransferItem(ctx, products, st.ID, cmd.Items[i])
			if err != nil {
				return commands.WithItemIndex(err, i)
			}
			st.Items = append(st.Items, *item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(domain.DocumentStockTransfer, "created", st.ID, st.Number, len(st.Items))
	return st, nil
}

func (s *Service) AddStockTransferItem(ctx context.Context, transferID string, line commands.TransferLine) (*domain.StockTransferItem, error) {
	if err := line.Validate(); err != nil {
		return nil, err
	}
	var item *domain.StockTransferItem
	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
		var st domain.StockTransfer
		if err := s.loadHeader(ctx, &st, "stock_transfers", domain.DocumentStockTransfer, transferID, true); err != nil {
			return err
		}
		if st.Status != domain.StatusDraft {
			return domain.NewInvalidState(string(domain.DocumentStockTransfer), st.ID, st.Status, "add item to")
		}
		var err error
		item, err = s.stageTransferItem(ctx, s.products(), st.ID, line)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// stageTransferItem checks both bins exist and share a warehouse
func (s *Service) stageTransferItem(ctx context.Context, products *productSet, transferID string, line commands.TransferLine) (*domain.StockTransferItem, error) {
	product, err := products.get(ctx, line.ProductID)
	if err != nil {
		return nil, err
	}
	from, err := s.catalog.GetBin(ctx, line.FromBinID)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.RequireBinInWarehouse(ctx, line.ToBinID, from.WarehouseID); err != nil {
		return nil, err
	}
	if err := checkTracking(product, line.Quantity, line.BatchNumber, line.SerialNumbers); err != nil {
		return nil, err
	}

	item := &domain.StockTransferItem{
		ID:            uuid.New().String(),
		TransferID:    transferID,
		ProductID:     product.ID,
		FromBinID:     line.FromBinID,
		ToBinID:       line.ToBinID,
		Quantity:      line.Quantity,
		Unit:          product.UnitOrDefault(line.Unit),
		BatchNumber:   line.BatchNumber,
		SerialNumbers: line.SerialNumbers,
		CreatedAt:     s.now(),
	}
	_, err = s.db.NamedExec(ctx, `
		INSERT INTO stock_transfer_items (id, transfer_id, product_id, from_bin_id, to_bin_id, quantity, unit, batch_number, serial_numbers, created_at)
		VALUES (:id, :transfer_id, :product_id, :from_bin_id, :to_bin_id, :quantity, :unit, :batch_number, :serial_numbers, :created_at)`, item)
	if err != nil {
		return nil, fmt.Errorf("failed to insert stock transfer item: %w", err)
	}
	return item, nil
}

func (s *Service) GetStockTransfer(ctx context.Context, id string) (*domain.StockTransfer, error) {
	var st domain.StockTransfer
	if err := s.loadHeader(ctx, &st, "stock_transfers", domain.DocumentStockTransfer, id, false); err != nil {
		return nil, err
	}
	st.Items = []domain.StockTransferItem{}
	if err := s.loadItems(ctx, &st.Items, "stock_transfer_items", "transfer_id", id); err != nil {
		return nil, err
	}
	return &st, nil
}

// CompleteStockTransfer moves every item between bins in one step. Each item journals a
// single stock_transfer entry carrying both bins.
func (s *Service) CompleteStockTransfer(ctx context.Context, id, performedBy string) (*domain.StockTransfer, error) {
	var st domain.StockTransfer
	err := s.transition(ctx, domain.DocumentStockTransfer, "complete", id, func(ctx context.Context) error {
		if err := s.loadHeader(ctx, &st, "stock_transfers", domain.DocumentStockTransfer, id, true); err != nil {
			return err
		}
		if err := domain.CheckTransition(domain.DocumentStockTransfer, st.ID, st.Status, domain.StatusCompleted, "complete"); err != nil {
			return err
		}
		st.Items = []domain.StockTransferItem{}
		if err := s.loadItems(ctx, &st.Items, "stock_transfer_items", "transfer_id", id); err != nil {
			return err
		}
		if err := requireItems(domain.DocumentStockTransfer, st.ID, len(st.Items)); err != nil {
			return err
		}

		by := performer(performedBy)
		products := s.products()
		for _, item := range st.Items {
			product, err := products.get(ctx, item.ProductID)
			if err != nil {
				return err
			}
			allocations, err := s.takeStock(ctx, product, item.FromBinID, item.Quantity, item.BatchNumber)
			if err != nil {
				return err
			}
			mismatched, err := s.putStock(ctx, product, item.ToBinID, item.Quantity, item.Unit, allocations)
			if err != nil {
				return err
			}
			if product.RequiresSerial {
				if err := s.serials.Relocate(ctx, product.ID, item.FromBinID, item.ToBinID, item.SerialNumbers); err != nil {
					return err
				}
			}

			meta := movementMetadata(allocations, item.SerialNumbers)
			if len(mismatched) > 0 {
				meta["expiry_mismatch_batches"] = mismatched
			}
			err = s.journal.Append(ctx, &domain.MovementEntry{
				MovementType:    domain.MovementStockTransfer,
				ReferenceType:   domain.DocumentStockTransfer,
				ReferenceNumber: st.Number,
				ProductID:       product.ID,
				FromBinID:       strPtr(item.FromBinID),
				ToBinID:         strPtr(item.ToBinID),
				Quantity:        item.Quantity,
				Unit:            item.Unit,
				PerformedBy:     by,
				Metadata:        meta,
			})
			if err != nil {
				return err
			}
		}

		now := s.now()
		st.Status = domain.StatusCompleted
		st.CompletedBy = &by
		st.CompletedAt = &now
		st.UpdatedAt = now
		_, err := s.db.NamedExec(ctx, `
			UPDATE stock_transfers SET status = :status, completed_by = :completed_by, completed_at = :completed_at, updated_at = :updated_at
			WHERE id = :id`, &st)
		if err != nil {
			return fmt.Errorf("failed to update stock transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(domain.DocumentStockTransfer, "completed", st.ID, st.Number, len(st.Items))
	return &st, nil
}

func (s *Service) CancelStockTransfer(ctx context.Context, id string) (*domain.StockTransfer, error) {
	var st domain.StockTransfer
	err := s.transition(ctx, domain.DocumentStockTransfer, "cancel", id, func(ctx context.Context) error {
		if err := s.loadHeader(ctx, &st, "stock_transfers", domain.DocumentStockTransfer, id, true); err != nil {
			return err
		}
		if err := domain.CheckTransition(domain.DocumentStockTransfer, st.ID, st.Status, domain.StatusCancelled, "cancel"); err != nil {
			return err
		}
		_, err := s.db.Exec(ctx, `UPDATE stock_transfers SET status = ?, updated_at = ? WHERE id = ?`,
			domain.StatusCancelled, s.now(), st.ID)
		if err != nil {
			return fmt.Errorf("failed to cancel stock transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(domain.DocumentStockTransfer, "cancelled", st.ID, st.Number, 0)
	return s.GetStockTransfer(ctx, id)
}
