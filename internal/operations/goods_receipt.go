package operations

import (
	"context"
	"fmt"

	"directstock/internal/commands"
	"directstock/internal/domain"

	"github.com/google/uuid"
)

// CreateGoodsReceipt opens a draft receipt and stages the given items
func (s *Service) CreateGoodsReceipt(ctx context.Context, cmd commands.CreateGoodsReceipt) (*domain.GoodsReceipt, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	r := &domain.GoodsReceipt{
		ID:          uuid.New().String(),
		Number:      s.newNumber(domain.DocumentGoodsReceipt),
		Status:      domain.StatusDraft,
		SupplierRef: cmd.SupplierRef,
		Notes:       cmd.Notes,
		CreatedBy:   performer(cmd.PerformedBy),
		CreatedAt:   now,
		UpdatedAt:   now,
		Items:       []domain.GoodsReceiptItem{},
	}

	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.db.NamedExec(ctx, `
			INSERT INTO goods_receipts (id, number, status, supplier_ref, notes, created_by, created_at, updated_at)
			VALUES (:id, :number, :status, :supplier_ref, :notes, :created_by, :created_at, :updated_at)`, r)
		if err != nil {
			return fmt.Errorf("failed to insert goods receipt: %w", err)
		}
		products := s.products()
		for i := range cmd.Items {
			item, err := s.stageReceiptItem(ctx, products, r.ID, cmd.Items[i])
			if err != nil {
				return commands.WithItemIndex(err, i)
			}
			r.Items = append(r.Items, *item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(domain.DocumentGoodsReceipt, "created", r.ID, r.Number, len(r.Items))
	return r, nil
}

// AddGoodsReceiptItem stages one more item on a draft receipt
func (s *Service) AddGoodsReceiptItem(ctx context.Context, receiptID string, line commands.GoodsReceiptLine) (*domain.GoodsReceiptItem, error) {
	if err := line.Validate(); err != nil {
		return nil, err
	}
	var item *domain.GoodsReceiptItem
	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
		var r domain.GoodsReceipt
		if err := s.loadHeader(ctx, &r, "goods_receipts", domain.DocumentGoodsReceipt, receiptID, true); err != nil {
			return err
		}
		if r.Status != domain.StatusDraft {
			return domain.NewInvalidState(string(domain.DocumentGoodsReceipt), r.ID, r.Status, "add item to")
		}
		var err error
		item, err = s.stageReceiptItem(ctx, s.products(), r.ID, line)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) stageReceiptItem(ctx context.Context, products *productSet, receiptID string, line commands.GoodsReceiptLine) (*domain.GoodsReceiptItem, error) {
	product, err := products.get(ctx, line.ProductID)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetBin(ctx, line.BinID); err != nil {
		return nil, err
	}
	if err := checkTracking(product, line.Quantity, line.BatchNumber, line.SerialNumbers); err != nil {
		return nil, err
	}
	if product.RequiresBatch && line.BatchNumber == nil {
		return nil, domain.NewValidationError("batch number is required for batch tracked product", map[string]any{
			"field":      "batch_number",
			"product_id": product.ID,
		})
	}
	if !product.RequiresBatch && line.ExpiryDate != nil {
		return nil, domain.NewValidationError("product is not batch tracked", map[string]any{
			"field":      "expiry_date",
			"product_id": product.ID,
		})
	}

	item := &domain.GoodsReceiptItem{
		ID:            uuid.New().String(),
		ReceiptID:     receiptID,
		ProductID:     product.ID,
		BinID:         line.BinID,
		Quantity:      line.Quantity,
		Unit:          product.UnitOrDefault(line.Unit),
		BatchNumber:   line.BatchNumber,
		ExpiryDate:    line.ExpiryDate,
		SerialNumbers: line.SerialNumbers,
		CreatedAt:     s.now(),
	}
	_, err = s.db.NamedExec(ctx, `
		INSERT INTO goods_receipt_items (id, receipt_id, product_id, bin_id, quantity, unit, batch_number, expiry_date, serial_numbers, created_at)
		VALUES (:id, :receipt_id, :product_id, :bin_id, :quantity, :unit, :batch_number, :expiry_date, :serial_numbers, :created_at)`, item)
	if err != nil {
		return nil, fmt.Errorf("failed to insert goods receipt item: %w", err)
	}
	return item, nil
}

// GetGoodsReceipt returns a receipt with its items
func (s *Service) GetGoodsReceipt(ctx context.Context, id string) (*domain.GoodsReceipt, error) {
	var r domain.GoodsReceipt
	if err := s.loadHeader(ctx, &r, "goods_receipts", domain.DocumentGoodsReceipt, id, false); err != nil {
		return nil, err
	}
	r.Items = []domain.GoodsReceiptItem{}
	if err := s.loadItems(ctx, &r.Items, "goods_receipt_items", "receipt_id", id); err != nil {
		return nil, err
	}
	return &r, nil
}

// CompleteGoodsReceipt puts every item into stock and journals one goods_receipt entry per item
func (s *Service) CompleteGoodsReceipt(ctx context.Context, id, performedBy string) (*domain.GoodsReceipt, error) {
	var r domain.GoodsReceipt
	err := s.transition(ctx, domain.DocumentGoodsReceipt, "complete", id, func(ctx context.Context) error {
		if err := s.loadHeader(ctx, &r, "goods_receipts", domain.DocumentGoodsReceipt, id, true); err != nil {
			return err
		}
		if err := domain.CheckTransition(domain.DocumentGoodsReceipt, r.ID, r.Status, domain.StatusCompleted, "complete"); err != nil {
			return err
		}
		r.Items = []domain.GoodsReceiptItem{}
		if err := s.loadItems(ctx, &r.Items, "goods_receipt_items", "receipt_id", id); err != nil {
			return err
		}
		if err := requireItems(domain.DocumentGoodsReceipt, r.ID, len(r.Items)); err != nil {
			return err
		}

		by := performer(performedBy)
		products := s.products()
		for _, item := range r.Items {
			product, err := products.get(ctx, item.ProductID)
			if err != nil {
				return err
			}
			var allocations []domain.BatchAllocation
			if product.RequiresBatch && item.BatchNumber != nil {
				allocations = []domain.BatchAllocation{{
					BatchNumber: *item.BatchNumber,
					Quantity:    item.Quantity,
					ExpiryDate:  item.ExpiryDate,
				}}
			}
			mismatched, err := s.putStock(ctx, product, item.BinID, item.Quantity, item.Unit, allocations)
			if err != nil {
				return err
			}
			if product.RequiresSerial {
				if _, err := s.serials.Receive(ctx, product.ID, item.BinID, item.SerialNumbers); err != nil {
					return err
				}
			}

			meta := movementMetadata(allocations, item.SerialNumbers)
			if len(mismatched) > 0 {
				meta["expiry_mismatch_batches"] = mismatched
			}
			if r.SupplierRef != nil {
				meta["supplier_ref"] = *r.SupplierRef
			}
			err = s.journal.Append(ctx, &domain.MovementEntry{
				MovementType:    domain.MovementGoodsReceipt,
				ReferenceType:   domain.DocumentGoodsReceipt,
				ReferenceNumber: r.Number,
				ProductID:       product.ID,
				ToBinID:         strPtr(item.BinID),
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
		r.Status = domain.StatusCompleted
		r.CompletedBy = &by
		r.CompletedAt = &now
		r.UpdatedAt = now
		_, err := s.db.NamedExec(ctx, `
			UPDATE goods_receipts SET status = :status, completed_by = :completed_by, completed_at = :completed_at, updated_at = :updated_at
			WHERE id = :id`, &r)
		if err != nil {
			return fmt.Errorf("failed to update goods receipt: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(domain.DocumentGoodsReceipt, "completed", r.ID, r.Number, len(r.Items))
	return &r, nil
}

// CancelGoodsReceipt closes a draft receipt without touching stock
func (s *Service) CancelGoodsReceipt(ctx context.Context, id string) (*domain.GoodsReceipt, error) {
	var r domain.GoodsReceipt
	err := s.transition(ctx, domain.DocumentGoodsReceipt, "cancel", id, func(ctx context.Context) error {
		if err := s.loadHeader(ctx, &r, "goods_receipts", domain.DocumentGoodsReceipt, id, true); err != nil {
			return err
		}
		if err := domain.CheckTransition(domain.DocumentGoodsReceipt, r.ID, r.Status, domain.StatusCancelled, "cancel"); err != nil {
			return err
		}
		r.Status = domain.StatusCancelled
		r.UpdatedAt = s.now()
		_, err := s.db.Exec(ctx, `UPDATE goods_receipts SET status = ?, updated_at = ? WHERE id = ?`, r.Status, r.UpdatedAt, r.ID)
		if err != nil {
			return fmt.Errorf("failed to cancel goods receipt: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(domain.DocumentGoodsReceipt, "cancelled", r.ID, r.Number, 0)
	return s.GetGoodsReceipt(ctx, id)
}
