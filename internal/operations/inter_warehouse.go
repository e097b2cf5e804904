package operations

import (
	"context"
	"fmt"
	"sort"

	"directstock/internal/commands"
	"directstock/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) CreateInterWarehouseTransfer(ctx context.Context, cmd commands.CreateInterWarehouseTransfer) (*domain.InterWarehouseTransfer, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	t := &domain.InterWarehouseTransfer{
		ID:              uuid.New().String(),
		Number:          s.newNumber(domain.DocumentInterWarehouseTransfer),
		FromWarehouseID: cmd.FromWarehouseID,
		ToWarehouseID:   cmd.ToWarehouseID,
		Status:          domain.StatusDraft,
		Notes:           cmd.Notes,
		CreatedBy:       performer(cmd.PerformedBy),
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           []domain.InterWarehouseTransferItem{},
	}

	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.catalog.GetWarehouse(ctx, t.FromWarehouseID); err != nil {
			return err
		}
		if _, err := s.catalog.GetWarehouse(ctx, t.ToWarehouseID); err != nil {
			return err
		}
		_, err := s.db.NamedExec(ctx, `
			INSERT INTO inter_warehouse_transfers (id, number, from_warehouse_id, to_warehouse_id, status, notes, created_by, created_at, updated_at)
			VALUES (:id, :number, :from_warehouse_id, :to_warehouse_id, :status, :notes, :created_by, :created_at, :updated_at)`, t)
		if err != nil {
			return fmt.Errorf("failed to insert inter-warehouse transfer: %w", err)
		}
		products := s.products()
		for i := range cmd.Items {
			item, err := s.stageInterWarehouseItem(ctx, products, t, cmd.Items[i])
			if err != nil {
				return commands.WithItemIndex(err, i)
			}
			t.Items = append(t.Items, *item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(domain.DocumentInterWarehouseTransfer, "created", t.ID, t.Number, len(t.Items))
	return t, nil
}

func (s *Service) AddInterWarehouseItem(ctx context.Context, transferID string, line commands.TransferLine) (*domain.InterWarehouseTransferItem, error) {
	if err := line.Validate(); err != nil {
		return nil, err
	}
	var item *domain.InterWarehouseTransferItem
	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
		var t domain.InterWarehouseTransfer
		if err := s.loadHeader(ctx, &t, "inter_warehouse_transfers", domain.DocumentInterWarehouseTransfer, transferID, true); err != nil {
			return err
		}
		if t.Status != domain.StatusDraft {
			return domain.NewInvalidState(string(domain.DocumentInterWarehouseTransfer), t.ID, t.Status, "add item to")
		}
		var err error
		item, err = s.stageInterWarehouseItem(ctx, s.products(), &t, line)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) stageInterWarehouseItem(ctx context.Context, products *productSet, t *domain.InterWarehouseTransfer, line commands.TransferLine) (*domain.InterWarehouseTransferItem, error) {
	product, err := products.get(ctx, line.ProductID)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.RequireBinInWarehouse(ctx, line.FromBinID, t.FromWarehouseID); err != nil {
		return nil, err
	}
	if _, err := s.catalog.RequireBinInWarehouse(ctx, line.ToBinID, t.ToWarehouseID); err != nil {
		return nil, err
	}
	if err := checkTracking(product, line.Quantity, line.BatchNumber, line.SerialNumbers); err != nil {
		return nil, err
	}

	item := &domain.InterWarehouseTransferItem{
		ID:                 uuid.New().String(),
		TransferID:         t.ID,
		ProductID:          product.ID,
		FromBinID:          line.FromBinID,
		ToBinID:            line.ToBinID,
		RequestedQuantity:  line.Quantity,
		DispatchedQuantity: decimal.Zero,
		ReceivedQuantity:   decimal.Zero,
		Unit:               product.UnitOrDefault(line.Unit),
		BatchNumber:        line.BatchNumber,
		SerialNumbers:      line.SerialNumbers,
		CreatedAt:          s.now(),
	}
	_, err = s.db.NamedExec(ctx, `
		INSERT INTO inter_warehouse_transfer_items (id, transfer_id, product_id, from_bin_id, to_bin_id,
			requested_quantity, dispatched_quantity, received_quantity, unit, batch_number, expiry_date,
			serial_numbers, allocations, created_at)
		VALUES (:id, :transfer_id, :product_id, :from_bin_id, :to_bin_id,
			:requested_quantity, :dispatched_quantity, :received_quantity, :unit, :batch_number, :expiry_date,
			:serial_numbers, :allocations, :created_at)`, item)
	if err != nil {
		return nil, fmt.Errorf("failed to insert inter-warehouse transfer item: %w", err)
	}
	return item, nil
}

func (s *Service) GetInterWarehouseTransfer(ctx context.Context, id string) (*domain.InterWarehouseTransfer, error) {
	var t domain.InterWarehouseTransfer
	if err := s.loadHeader(ctx, &t, "inter_warehouse_transfers", domain.DocumentInterWarehouseTransfer, id, false); err != nil {
		return nil, err
	}
	t.Items = []domain.InterWarehouseTransferItem{}
	if err := s.loadItems(ctx, &t.Items, "inter_warehouse_transfer_items", "transfer_id", id); err != nil {
		return nil, err
	}
	return &t, nil
}

// DispatchInterWarehouseTransfer takes every item out of its source bin. Stock is then
// held by the transfer: serials go in transit and lots travel as allocations on the item.
func (s *Service) DispatchInterWarehouseTransfer(ctx context.Context, id, performedBy string) (*domain.InterWarehouseTransfer, error) {
	var t domain.InterWarehouseTransfer
	err := s.transition(ctx, domain.DocumentInterWarehouseTransfer, "dispatch", id, func(ctx context.Context) error {
		if err := s.loadHeader(ctx, &t, "inter_warehouse_transfers", domain.DocumentInterWarehouseTransfer, id, true); err != nil {
			return err
		}
		if err := domain.CheckTransition(domain.DocumentInterWarehouseTransfer, t.ID, t.Status, domain.StatusDispatched, "dispatch"); err != nil {
			return err
		}
		t.Items = []domain.InterWarehouseTransferItem{}
		if err := s.loadItems(ctx, &t.Items, "inter_warehouse_transfer_items", "transfer_id", id); err != nil {
			return err
		}
		if err := requireItems(domain.DocumentInterWarehouseTransfer, t.ID, len(t.Items)); err != nil {
			return err
		}

		by := performer(performedBy)
		products := s.products()
		for i := range t.Items {
			item := &t.Items[i]
			product, err := products.get(ctx, item.ProductID)
			if err != nil {
				return err
			}
			allocations, err := s.takeStock(ctx, product, item.FromBinID, item.RequestedQuantity, item.BatchNumber)
			if err != nil {
				return err
			}
			if product.RequiresSerial {
				if err := s.serials.Dispatch(ctx, product.ID, item.FromBinID, item.SerialNumbers); err != nil {
					return err
				}
			}

			item.DispatchedQuantity = item.RequestedQuantity
			item.Allocations = allocations
			if len(allocations) == 1 {
				item.ExpiryDate = allocations[0].ExpiryDate
			}
			_, err = s.db.NamedExec(ctx, `
				UPDATE inter_warehouse_transfer_items
				SET dispatched_quantity = :dispatched_quantity, allocations = :allocations, expiry_date = :expiry_date
				WHERE id = :id`, item)
			if err != nil {
				return fmt.Errorf("failed to update inter-warehouse transfer item: %w", err)
			}

			meta := movementMetadata(allocations, item.SerialNumbers)
			meta["to_warehouse_id"] = t.ToWarehouseID
			err = s.journal.Append(ctx, &domain.MovementEntry{
				MovementType:    domain.MovementInterWarehouseDispatch,
				ReferenceType:   domain.DocumentInterWarehouseTransfer,
				ReferenceNumber: t.Number,
				ProductID:       product.ID,
				FromBinID:       strPtr(item.FromBinID),
				Quantity:        item.DispatchedQuantity,
				Unit:            item.Unit,
				PerformedBy:     by,
				Metadata:        meta,
			})
			if err != nil {
				return err
			}
		}

		now := s.now()
		t.Status = domain.StatusDispatched
		t.DispatchedBy = &by
		t.DispatchedAt = &now
		t.UpdatedAt = now
		_, err := s.db.NamedExec(ctx, `
			UPDATE inter_warehouse_transfers SET status = :status, dispatched_by = :dispatched_by, dispatched_at = :dispatched_at, updated_at = :updated_at
			WHERE id = :id`, &t)
		if err != nil {
			return fmt.Errorf("failed to update inter-warehouse transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(domain.DocumentInterWarehouseTransfer, "dispatched", t.ID, t.Number, len(t.Items))
	return &t, nil
}

// ReceiveInterWarehouseTransfer puts dispatched stock into the destination bins. Items not
// named in cmd arrive in full; a smaller received quantity leaves the shortfall recorded on
// the item and in the journal metadata.
func (s *Service) ReceiveInterWarehouseTransfer(ctx context.Context, cmd commands.ReceiveInterWarehouseTransfer) (*domain.InterWarehouseTransfer, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	var t domain.InterWarehouseTransfer
	err := s.transition(ctx, domain.DocumentInterWarehouseTransfer, "receive", cmd.TransferID, func(ctx context.Context) error {
		if err := s.loadHeader(ctx, &t, "inter_warehouse_transfers", domain.DocumentInterWarehouseTransfer, cmd.TransferID, true); err != nil {
			return err
		}
		if err := domain.CheckTransition(domain.DocumentInterWarehouseTransfer, t.ID, t.Status, domain.StatusReceived, "receive"); err != nil {
			return err
		}
		t.Items = []domain.InterWarehouseTransferItem{}
		if err := s.loadItems(ctx, &t.Items, "inter_warehouse_transfer_items", "transfer_id", t.ID); err != nil {
			return err
		}

		overrides, err := receiveOverrides(t.Items, cmd.Items)
		if err != nil {
			return err
		}

		by := performer(cmd.PerformedBy)
		products := s.products()
		for i := range t.Items {
			item := &t.Items[i]
			product, err := products.get(ctx, item.ProductID)
			if err != nil {
				return err
			}
			take, err := receivedQuantity(product, item, overrides[item.ID], i)
			if err != nil {
				return err
			}
			if !take.IsPositive() {
				s.logger.Warn("Transfer item received nothing",
					zap.String("transfer_id", t.ID),
					zap.String("item_id", item.ID),
					zap.String("dispatched", item.DispatchedQuantity.String()))
				continue
			}

			allocations := sliceAllocations(item.Allocations, item.ReceivedQuantity, take)
			mismatched, err := s.putStock(ctx, product, item.ToBinID, take, item.Unit, allocations)
			if err != nil {
				return err
			}
			if product.RequiresSerial {
				if err := s.serials.ReceiveTransit(ctx, product.ID, item.ToBinID, item.SerialNumbers); err != nil {
					return err
				}
			}
			item.ReceivedQuantity = item.ReceivedQuantity.Add(take)
			_, err = s.db.Exec(ctx, `UPDATE inter_warehouse_transfer_items SET received_quantity = ? WHERE id = ?`,
				item.ReceivedQuantity, item.ID)
			if err != nil {
				return fmt.Errorf("failed to update inter-warehouse transfer item: %w", err)
			}

			meta := movementMetadata(allocations, item.SerialNumbers)
			meta["from_warehouse_id"] = t.FromWarehouseID
			if shortfall := item.InTransitQuantity(); shortfall.IsPositive() {
				meta["shortfall"] = shortfall.String()
				s.logger.Warn("Transfer item received short",
					zap.String("transfer_id", t.ID),
					zap.String("item_id", item.ID),
					zap.String("shortfall", shortfall.String()))
			}
			if len(mismatched) > 0 {
				meta["expiry_mismatch_batches"] = mismatched
			}
			err = s.journal.Append(ctx, &domain.MovementEntry{
				MovementType:    domain.MovementInterWarehouseReceive,
				ReferenceType:   domain.DocumentInterWarehouseTransfer,
				ReferenceNumber: t.Number,
				ProductID:       product.ID,
				ToBinID:         strPtr(item.ToBinID),
				Quantity:        take,
				Unit:            item.Unit,
				PerformedBy:     by,
				Metadata:        meta,
			})
			if err != nil {
				return err
			}
		}

		now := s.now()
		t.Status = domain.StatusReceived
		t.ReceivedBy = &by
		t.ReceivedAt = &now
		t.UpdatedAt = now
		_, err = s.db.NamedExec(ctx, `
			UPDATE inter_warehouse_transfers SET status = :status, received_by = :received_by, received_at = :received_at, updated_at = :updated_at
			WHERE id = :id`, &t)
		if err != nil {
			return fmt.Errorf("failed to update inter-warehouse transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(domain.DocumentInterWarehouseTransfer, "received", t.ID, t.Number, len(t.Items))
	return &t, nil
}

func receiveOverrides(items []domain.InterWarehouseTransferItem, lines []commands.ReceiveLine) (map[string]*commands.ReceiveLine, error) {
	known := make(map[string]struct{}, len(items))
	for _, item := range items {
		known[item.ID] = struct{}{}
	}
	out := make(map[string]*commands.ReceiveLine, len(lines))
	for i := range lines {
		if _, ok := known[lines[i].ItemID]; !ok {
			return nil, commands.WithItemIndex(domain.NewValidationError("item does not belong to transfer", map[string]any{
				"field":   "item_id",
				"item_id": lines[i].ItemID,
			}), i)
		}
		out[lines[i].ItemID] = &lines[i]
	}
	return out, nil
}

// receivedQuantity resolves what arrives for one item. Serial items arrive in full with
// their dispatched serial list.
func receivedQuantity(product *domain.Product, item *domain.InterWarehouseTransferItem, line *commands.ReceiveLine, index int) (decimal.Decimal, error) {
	inTransit := item.InTransitQuantity()
	if line == nil {
		return inTransit, nil
	}
	take := inTransit
	if line.Quantity != nil {
		take = *line.Quantity
	}
	if take.GreaterThan(inTransit) {
		return decimal.Zero, commands.WithItemIndex(domain.NewValidationError("received quantity exceeds dispatched quantity", map[string]any{
			"field":      "quantity",
			"item_id":    item.ID,
			"dispatched": inTransit.String(),
			"received":   take.String(),
		}), index)
	}
	if product.RequiresSerial {
		if !take.Equal(inTransit) || (len(line.SerialNumbers) > 0 && !sameSerials(line.SerialNumbers, item.SerialNumbers)) {
			return decimal.Zero, commands.WithItemIndex(domain.NewValidationError("serial tracked items must be received in full", map[string]any{
				"field":   "serial_numbers",
				"item_id": item.ID,
			}), index)
		}
	}
	return take, nil
}

func sameSerials(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// CancelInterWarehouseTransfer closes a transfer that has not been dispatched
func (s *Service) CancelInterWarehouseTransfer(ctx context.Context, id string) (*domain.InterWarehouseTransfer, error) {
	var t domain.InterWarehouseTransfer
	err := s.transition(ctx, domain.DocumentInterWarehouseTransfer, "cancel", id, func(ctx context.Context) error {
		if err := s.loadHeader(ctx, &t, "inter_warehouse_transfers", domain.DocumentInterWarehouseTransfer, id, true); err != nil {
			return err
		}
		if err := domain.CheckTransition(domain.DocumentInterWarehouseTransfer, t.ID, t.Status, domain.StatusCancelled, "cancel"); err != nil {
			return err
		}
		now := s.now()
		_, err := s.db.Exec(ctx, `UPDATE inter_warehouse_transfers SET status = ?, cancelled_at = ?, updated_at = ? WHERE id = ?`,
			domain.StatusCancelled, now, now, t.ID)
		if err != nil {
			return fmt.Errorf("failed to cancel inter-warehouse transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(domain.DocumentInterWarehouseTransfer, "cancelled", t.ID, t.Number, 0)
	return s.GetInterWarehouseTransfer(ctx, id)
}
