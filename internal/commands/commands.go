package commands

import (
	"errors"
	"strings"
	"time"

	"directstock/internal/domain"

	"github.com/shopspring/decimal"
)

// GoodsReceiptLine is one inbound item
type GoodsReceiptLine struct {
	ProductID     string
	BinID         string
	Quantity      decimal.Decimal
	Unit          string
	BatchNumber   *string
	ExpiryDate    *time.Time
	SerialNumbers []string
}

func (l *GoodsReceiptLine) Validate() error {
	if err := requireIDs(map[string]string{"product_id": l.ProductID, "bin_id": l.BinID}); err != nil {
		return err
	}
	if err := domain.RequirePositive("quantity", l.Quantity); err != nil {
		return err
	}
	l.BatchNumber = trimmed(l.BatchNumber)
	l.ExpiryDate = dateOnly(l.ExpiryDate)
	var err error
	l.SerialNumbers, err = domain.NormalizeSerials(l.SerialNumbers)
	return err
}

// CreateGoodsReceipt opens a draft receipt, optionally with items
type CreateGoodsReceipt struct {
	SupplierRef *string
	Notes       *string
	Items       []GoodsReceiptLine
	PerformedBy string
}

func (c *CreateGoodsReceipt) Validate() error {
	for i := range c.Items {
		if err := c.Items[i].Validate(); err != nil {
			return WithItemIndex(err, i)
		}
	}
	return nil
}

// GoodsIssueLine is one outbound item. Batch-tracked products name a batch or ask for FEFO.
type GoodsIssueLine struct {
	ProductID     string
	BinID         string
	Quantity      decimal.Decimal
	Unit          string
	BatchNumber   *string
	UseFefo       bool
	SerialNumbers []string
}

func (l *GoodsIssueLine) Validate() error {
	if err := requireIDs(map[string]string{"product_id": l.ProductID, "bin_id": l.BinID}); err != nil {
		return err
	}
	if err := domain.RequirePositive("quantity", l.Quantity); err != nil {
		return err
	}
	l.BatchNumber = trimmed(l.BatchNumber)
	if l.BatchNumber != nil && l.UseFefo {
		return domain.NewFieldError("use_fefo", "use_fefo cannot be combined with batch_number")
	}
	var err error
	l.SerialNumbers, err = domain.NormalizeSerials(l.SerialNumbers)
	return err
}

type CreateGoodsIssue struct {
	CustomerRef *string
	Notes       *string
	Items       []GoodsIssueLine
	PerformedBy string
}

func (c *CreateGoodsIssue) Validate() error {
	for i := range c.Items {
		if err := c.Items[i].Validate(); err != nil {
			return WithItemIndex(err, i)
		}
	}
	return nil
}

// TransferLine moves stock from one bin to another. Without a batch number a
// batch-tracked product moves its lots in FEFO order.
type TransferLine struct {
	ProductID     string
	FromBinID     string
	ToBinID       string
	Quantity      decimal.Decimal
	Unit          string
	BatchNumber   *string
	SerialNumbers []string
}

func (l *TransferLine) Validate() error {
	if err := requireIDs(map[string]string{
		"product_id":  l.ProductID,
		"from_bin_id": l.FromBinID,
		"to_bin_id":   l.ToBinID,
	}); err != nil {
		return err
	}
	if l.FromBinID == l.ToBinID {
		return domain.NewFieldError("to_bin_id", "source and destination bins must differ")
	}
	if err := domain.RequirePositive("quantity", l.Quantity); err != nil {
		return err
	}
	l.BatchNumber = trimmed(l.BatchNumber)
	var err error
	l.SerialNumbers, err = domain.NormalizeSerials(l.SerialNumbers)
	return err
}

type CreateStockTransfer struct {
	Notes       *string
	Items       []TransferLine
	PerformedBy string
}

func (c *CreateStockTransfer) Validate() error {
	for i := range c.Items {
		if err := c.Items[i].Validate(); err != nil {
			return WithItemIndex(err, i)
		}
	}
	return nil
}

type CreateInterWarehouseTransfer struct {
	FromWarehouseID string
	ToWarehouseID   string
	Notes           *string
	Items           []TransferLine
	PerformedBy     string
}

func (c *CreateInterWarehouseTransfer) Validate() error {
	if err := requireIDs(map[string]string{
		"from_warehouse_id": c.FromWarehouseID,
		"to_warehouse_id":   c.ToWarehouseID,
	}); err != nil {
		return err
	}
	if c.FromWarehouseID == c.ToWarehouseID {
		return domain.NewFieldError("to_warehouse_id", "source and destination warehouses must differ")
	}
	for i := range c.Items {
		if err := c.Items[i].Validate(); err != nil {
			return WithItemIndex(err, i)
		}
	}
	return nil
}

// ReceiveLine overrides what arrives for one transfer item. A nil Quantity receives
// everything dispatched.
type ReceiveLine struct {
	ItemID        string
	Quantity      *decimal.Decimal
	SerialNumbers []string
}

// ReceiveInterWarehouseTransfer confirms arrival. Items not listed arrive in full.
type ReceiveInterWarehouseTransfer struct {
	TransferID  string
	Items       []ReceiveLine
	PerformedBy string
}

func (c *ReceiveInterWarehouseTransfer) Validate() error {
	seen := make(map[string]struct{}, len(c.Items))
	for i := range c.Items {
		line := &c.Items[i]
		if strings.TrimSpace(line.ItemID) == "" {
			return WithItemIndex(domain.NewFieldError("item_id", "item_id is required"), i)
		}
		if _, dup := seen[line.ItemID]; dup {
			return WithItemIndex(domain.NewFieldError("item_id", "item listed twice"), i)
		}
		seen[line.ItemID] = struct{}{}
		if line.Quantity != nil && line.Quantity.IsNegative() {
			return WithItemIndex(domain.NewFieldError("quantity", "received quantity must not be negative"), i)
		}
		var err error
		line.SerialNumbers, err = domain.NormalizeSerials(line.SerialNumbers)
		if err != nil {
			return WithItemIndex(err, i)
		}
	}
	return nil
}

type CreateInventoryCount struct {
	WarehouseID       *string
	ToleranceQuantity decimal.Decimal
	Notes             *string
	PerformedBy       string
}

func (c *CreateInventoryCount) Validate() error {
	if c.ToleranceQuantity.IsNegative() {
		return domain.NewFieldError("tolerance_quantity", "tolerance must not be negative")
	}
	c.WarehouseID = trimmed(c.WarehouseID)
	return nil
}

type RecordCount struct {
	SessionID       string
	ItemID          string
	CountedQuantity decimal.Decimal
	PerformedBy     string
}

func (c *RecordCount) Validate() error {
	if c.CountedQuantity.IsNegative() {
		return domain.NewFieldError("counted_quantity", "counted quantity must not be negative")
	}
	return nil
}

// AdjustReservation reserves or releases quantity on one stock line
type AdjustReservation struct {
	ProductID string
	BinID     string
	Quantity  decimal.Decimal
}

func (c *AdjustReservation) Validate() error {
	if err := requireIDs(map[string]string{"product_id": c.ProductID, "bin_id": c.BinID}); err != nil {
		return err
	}
	return domain.RequirePositive("quantity", c.Quantity)
}

func requireIDs(fields map[string]string) error {
	for _, name := range []string{"product_id", "bin_id", "from_bin_id", "to_bin_id", "from_warehouse_id", "to_warehouse_id"} {
		v, ok := fields[name]
		if ok && strings.TrimSpace(v) == "" {
			return domain.NewFieldError(name, name+" is required")
		}
	}
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	y, m, d := t.UTC().Date()
	out := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &out
}

// WithItemIndex adds the offending item position to a domain error's details
func WithItemIndex(err error, index int) error {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return err
	}
	details := map[string]any{"item_index": index}
	for k, v := range de.Details {
		details[k] = v
	}
	return &domain.DomainError{Kind: de.Kind, Message: de.Message, Details: details}
}
