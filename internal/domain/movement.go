package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType is the kind of quantity change recorded in the journal
type MovementType string

const (
	MovementGoodsReceipt           MovementType = "goods_receipt"
	MovementGoodsIssue             MovementType = "goods_issue"
	MovementStockTransfer          MovementType = "stock_transfer"
	MovementInterWarehouseDispatch MovementType = "inter_warehouse_dispatch"
	MovementInterWarehouseReceive  MovementType = "inter_warehouse_receive"
	MovementInventoryAdjustment    MovementType = "inventory_adjustment"
)

// DocumentKind is the closed set of work orders that reference journal entries
type DocumentKind string

const (
	DocumentGoodsReceipt           DocumentKind = "goods_receipt"
	DocumentGoodsIssue             DocumentKind = "goods_issue"
	DocumentStockTransfer          DocumentKind = "stock_transfer"
	DocumentInterWarehouseTransfer DocumentKind = "inter_warehouse_transfer"
	DocumentInventoryCount         DocumentKind = "inventory_count"
)

// NumberPrefix returns the prefix used for human-readable document numbers.
func (k DocumentKind) NumberPrefix() string {
	switch k {
	case DocumentGoodsReceipt:
		return "GR"
	case DocumentGoodsIssue:
		return "GI"
	case DocumentStockTransfer:
		return "ST"
	case DocumentInterWarehouseTransfer:
		return "IWT"
	case DocumentInventoryCount:
		return "IC"
	default:
		return "DOC"
	}
}

// MovementEntry is one append-only journal record. Quantity is always positive;
// direction is carried by FromBinID (stock leaves) and ToBinID (stock arrives).
type MovementEntry struct {
	ID              string          `db:"id" json:"id"`
	MovementType    MovementType    `db:"movement_type" json:"movement_type"`
	ReferenceType   DocumentKind    `db:"reference_type" json:"reference_type"`
	ReferenceNumber string          `db:"reference_number" json:"reference_number"`
	ProductID       string          `db:"product_id" json:"product_id"`
	FromBinID       *string         `db:"from_bin_id" json:"from_bin_id,omitempty"`
	ToBinID         *string         `db:"to_bin_id" json:"to_bin_id,omitempty"`
	Quantity        decimal.Decimal `db:"quantity" json:"quantity"`
	Unit            string          `db:"unit" json:"unit"`
	PerformedBy     string          `db:"performed_by" json:"performed_by"`
	PerformedAt     time.Time       `db:"performed_at" json:"performed_at"`
	Metadata        Metadata        `db:"metadata" json:"metadata"`
}

// SignedDelta returns the quantity change this entry applies to a bin.
func (m *MovementEntry) SignedDelta(binID string) decimal.Decimal {
	delta := decimal.Zero
	if m.ToBinID != nil && *m.ToBinID == binID {
		delta = delta.Add(m.Quantity)
	}
	if m.FromBinID != nil && *m.FromBinID == binID {
		delta = delta.Sub(m.Quantity)
	}
	return delta
}

// Metadata is a free-form JSON object stored alongside a journal entry
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	out := Metadata{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
	}
	*m = out
	return nil
}

// SerialList is a list of serial numbers stored as a JSON array
type SerialList []string

func (s SerialList) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *SerialList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported serial list type %T", src)
	}
	var out []string
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
	}
	*s = out
	return nil
}

// BatchAllocation records how much of one batch a movement consumed
type BatchAllocation struct {
	BatchNumber string          `json:"batch_number"`
	Quantity    decimal.Decimal `json:"quantity"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
}

// BatchAllocations is stored as a JSON array on issue items
type BatchAllocations []BatchAllocation

func (a BatchAllocations) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]BatchAllocation(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *BatchAllocations) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported allocation type %T", src)
	}
	var out []BatchAllocation
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
	}
	*a = out
	return nil
}
