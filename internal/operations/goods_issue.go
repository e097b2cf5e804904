package operations

import (
	"context"
	"fmt"

	"directstock/internal/commands"
	"directstock/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (s *Service) CreateGoodsIssue(ctx context.Context, cmd commands.CreateGoodsIssue) (*domain.GoodsIssue, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	gi := &domain.GoodsIssue{
		ID:          uuid.New().String(),
		Number:      s.newNumber(domain.DocumentGoodsIssue),
		Status:      domain.StatusDraft,
		CustomerRef: cmd.CustomerRef,
		Notes:       cmd.Notes,
		CreatedBy:   performer(cmd.PerformedBy),
		CreatedAt:   now,
		UpdatedAt:   now,
		Items:       []domain.GoodsIssueItem{},
	}

	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.db.NamedExec(ctx, `
			INSERT INTO goods_issues (id, number, status, customer_ref, notes, created_by, created_at, updated_at)
			VALUES (:id, :number, :status, :customer_ref, :notes, :created_by, :created_at, :updated_at)`, gi)
		if err != nil {
			return fmt.Errorf("failed to insert goods issue: %w", err)
		}
		products := s.products()
		for i := range cmd.Items {
			item, err := s.stageIssueItem(ctx, products, gi.ID, cmd.Items[i])
			if err != nil {
				return commands.WithItemIndex(err, i)
			}
			gi.Items = append(gi.Items, *item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(domain.DocumentGoodsIssue, "created", gi.ID, gi.Number, len(gi.Items))
	return gi, nil
}

func (s *Service) AddGoodsIssueItem(ctx context.Context, issueID string, line commands.GoodsIssueLine) (*domain.GoodsIssueItem, error) {
	if err := line.Validate(); err != nil {
		return nil, err
	}
	var item *domain.GoodsIssueItem
	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
		var gi domain.GoodsIssue
		if err := s.loadHeader(ctx, &gi, "goods_issues", domain.DocumentGoodsIssue, issueID, true); err != nil {
			return err
		}
		if gi.Status != domain.StatusDraft {
			return domain.NewInvalidState(string(domain.DocumentGoodsIssue), gi.ID, gi.Status, "add item to")
		}
		var err error
		item, err = s.stageIssueItem(ctx, s.products(), gi.ID, line)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) stageIssueItem(ctx context.Context, products *productSet, issueID string, line commands.GoodsIssueLine) (*domain.GoodsIssueItem, error) {
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
	if product.RequiresBatch && line.BatchNumber == nil && !line.UseFefo {
		return nil, domain.NewValidationError("batch tracked product needs batch_number or use_fefo", map[string]any{
			"field":      "batch_number",
			"product_id": product.ID,
		})
	}

	item := &domain.GoodsIssueItem{
		ID:                uuid.New().String(),
		IssueID:           issueID,
		ProductID:         product.ID,
		BinID:             line.BinID,
		RequestedQuantity: line.Quantity,
		IssuedQuantity:    decimal.Zero,
		Unit:              product.UnitOrDefault(line.Unit),
		BatchNumber:       line.BatchNumber,
		UseFefo:           line.UseFefo && product.RequiresBatch,
		SerialNumbers:     line.SerialNumbers,
		CreatedAt:         s.now(),
	}
	_, err = s.db.NamedExec(ctx, `
		INSERT INTO goods_issue_items (id, issue_id, product_id, bin_id, requested_quantity, issued_quantity, unit,
			batch_number, use_fefo, serial_numbers, allocations, created_at)
		VALUES (:id, :issue_id, :product_id, :bin_id, :requested_quantity, :issued_quantity, :unit,
			:batch_number, :use_fefo, :serial_numbers, :allocations, :created_at)`, item)
	if err != nil {
		return nil, fmt.Errorf("failed to insert goods issue item: %w", err)
	}
	return item, nil
}

func (s *Service) GetGoodsIssue(ctx context.Context, id string) (*domain.GoodsIssue, error) {
	var gi domain.GoodsIssue
	if err := s.loadHeader(ctx, &gi, "goods_issues", domain.DocumentGoodsIssue, id, false); err != nil {
		return nil, err
	}
	gi.Items = []domain.GoodsIssueItem{}
	if err := s.loadItems(ctx, &gi.Items, "goods_issue_items", "issue_id", id); err != nil {
		return nil, err
	}
	return &gi, nil
}

// CompleteGoodsIssue takes every item out of stock. Batch-tracked items consume the named
// lot or FEFO lots; the consumed batches are stored on the item and in the journal entry.
func (s *Service) CompleteGoodsIssue(ctx context.Context, id, performedBy string) (*domain.GoodsIssue, error) {
	var gi domain.GoodsIssue
	err := s.transition(ctx, domain.DocumentGoodsIssue, "complete", id, func(ctx context.Context) error {
		if err := s.loadHeader(ctx, &gi, "goods_issues", domain.DocumentGoodsIssue, id, true); err != nil {
			return err
		}
		if err := domain.CheckTransition(domain.DocumentGoodsIssue, gi.ID, gi.Status, domain.StatusCompleted, "complete"); err != nil {
			return err
		}
		gi.Items = []domain.GoodsIssueItem{}
		if err := s.loadItems(ctx, &gi.Items, "goods_issue_items", "issue_id", id); err != nil {
			return err
		}
		if err := requireItems(domain.DocumentGoodsIssue, gi.ID, len(gi.Items)); err != nil {
			return err
		}

		by := performer(performedBy)
		products := s.products()
		for i := range gi.Items {
			item := &gi.Items[i]
			product, err := products.get(ctx, item.ProductID)
			if err != nil {
				return err
			}
			allocations, err := s.takeStock(ctx, product, item.BinID, item.RequestedQuantity, item.BatchNumber)
			if err != nil {
				return err
			}
			if product.RequiresSerial {
				if err := s.serials.Issue(ctx, product.ID, item.BinID, item.SerialNumbers); err != nil {
					return err
				}
			}

			item.IssuedQuantity = item.RequestedQuantity
			item.Allocations = allocations
			_, err = s.db.NamedExec(ctx, `
				UPDATE goods_issue_items SET issued_quantity = :issued_quantity, allocations = :allocations WHERE id = :id`, item)
			if err != nil {
				return fmt.Errorf("failed to update goods issue item: %w", err)
			}

			meta := movementMetadata(allocations, item.SerialNumbers)
			if gi.CustomerRef != nil {
				meta["customer_ref"] = *gi.CustomerRef
			}
			err = s.journal.Append(ctx, &domain.MovementEntry{
				MovementType:    domain.MovementGoodsIssue,
				ReferenceType:   domain.DocumentGoodsIssue,
				ReferenceNumber: gi.Number,
				ProductID:       product.ID,
				FromBinID:       strPtr(item.BinID),
				Quantity:        item.RequestedQuantity,
				Unit:            item.Unit,
				PerformedBy:     by,
				Metadata:        meta,
			})
			if err != nil {
				return err
			}
		}

		now := s.now()
		gi.Status = domain.StatusCompleted
		gi.CompletedBy = &by
		gi.CompletedAt = &now
		gi.UpdatedAt = now
		_, err := s.db.NamedExec(ctx, `
			UPDATE goods_issues SET status = :status, completed_by = :completed_by, completed_at = :completed_at, updated_at = :updated_at
			WHERE id = :id`, &gi)
		if err != nil {
			return fmt.Errorf("failed to update goods issue: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(domain.DocumentGoodsIssue, "completed", gi.ID, gi.Number, len(gi.Items))
	return &gi, nil
}

func (s *Service) CancelGoodsIssue(ctx context.Context, id string) (*domain.GoodsIssue, error) {
	var gi domain.GoodsIssue
	err := s.transition(ctx, domain.DocumentGoodsIssue, "cancel", id, func(ctx context.Context) error {
		if err := s.loadHeader(ctx, &gi, "goods_issues", domain.DocumentGoodsIssue, id, true); err != nil {
			return err
		}
		if err := domain.CheckTransition(domain.DocumentGoodsIssue, gi.ID, gi.Status, domain.StatusCancelled, "cancel"); err != nil {
			return err
		}
		_, err := s.db.Exec(ctx, `UPDATE goods_issues SET status = ?, updated_at = ? WHERE id = ?`,
			domain.StatusCancelled, s.now(), gi.ID)
		if err != nil {
			return fmt.Errorf("failed to cancel goods issue: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(domain.DocumentGoodsIssue, "cancelled", gi.ID, gi.Number, 0)
	return s.GetGoodsIssue(ctx, id)
}
