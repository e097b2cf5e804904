package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentStatus is the state of a work order
type DocumentStatus string

const (
	StatusDraft      DocumentStatus = "draft"
	StatusInProgress DocumentStatus = "in_progress"
	StatusDispatched DocumentStatus = "dispatched"
	StatusReceived   DocumentStatus = "received"
	StatusCompleted  DocumentStatus = "completed"
	StatusCancelled  DocumentStatus = "cancelled"
)

var transitions = map[DocumentKind]map[DocumentStatus][]DocumentStatus{
	DocumentGoodsReceipt: {
		StatusDraft: {StatusCompleted, StatusCancelled},
	},
	DocumentGoodsIssue: {
		StatusDraft: {StatusCompleted, StatusCancelled},
	},
	DocumentStockTransfer: {
		StatusDraft: {StatusCompleted, StatusCancelled},
	},
	DocumentInterWarehouseTransfer: {
		StatusDraft:      {StatusDispatched, StatusCancelled},
		StatusDispatched: {StatusReceived},
	},
	DocumentInventoryCount: {
		StatusDraft:      {StatusInProgress, StatusCancelled},
		StatusInProgress: {StatusCompleted, StatusCancelled},
	},
}

// CanTransition reports whether a document of the given kind may move from one status to another.
func CanTransition(kind DocumentKind, from, to DocumentStatus) bool {
	for _, next := range transitions[kind][from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an invalid-state error when the transition is not allowed.
func CheckTransition(kind DocumentKind, id string, from, to DocumentStatus, action string) error {
	if !CanTransition(kind, from, to) {
		return NewInvalidState(string(kind), id, from, action)
	}
	return nil
}

// GoodsReceipt groups inbound items destined for one atomic completion
type GoodsReceipt struct {
	ID          string             `db:"id" json:"id"`
	Number      string             `db:"number" json:"number"`
	Status      DocumentStatus     `db:"status" json:"status"`
	SupplierRef *string            `db:"supplier_ref" json:"supplier_ref,omitempty"`
	Notes       *string            `db:"notes" json:"notes,omitempty"`
	CreatedBy   string             `db:"created_by" json:"created_by"`
	CompletedBy *string            `db:"completed_by" json:"completed_by,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
	CompletedAt *time.Time         `db:"completed_at" json:"completed_at,omitempty"`
	Items       []GoodsReceiptItem `db:"-" json:"items"`
}

type GoodsReceiptItem struct {
	ID            string          `db:"id" json:"id"`
	ReceiptID     string          `db:"receipt_id" json:"receipt_id"`
	ProductID     string          `db:"product_id" json:"product_id"`
	BinID         string          `db:"bin_id" json:"bin_id"`
	Quantity      decimal.Decimal `db:"quantity" json:"quantity"`
	Unit          string          `db:"unit" json:"unit"`
	BatchNumber   *string         `db:"batch_number" json:"batch_number,omitempty"`
	ExpiryDate    *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	SerialNumbers SerialList      `db:"serial_numbers" json:"serial_numbers"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// GoodsIssue groups outbound items
type GoodsIssue struct {
	ID          string           `db:"id" json:"id"`
	Number      string           `db:"number" json:"number"`
	Status      DocumentStatus   `db:"status" json:"status"`
	CustomerRef *string          `db:"customer_ref" json:"customer_ref,omitempty"`
	Notes       *string          `db:"notes" json:"notes,omitempty"`
	CreatedBy   string           `db:"created_by" json:"created_by"`
	CompletedBy *string          `db:"completed_by" json:"completed_by,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
	CompletedAt *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	Items       []GoodsIssueItem `db:"-" json:"items"`
}

type GoodsIssueItem struct {
	ID                string           `db:"id" json:"id"`
	IssueID           string           `db:"issue_id" json:"issue_id"`
	ProductID         string           `db:"product_id" json:"product_id"`
	BinID             string           `db:"bin_id" json:"bin_id"`
	RequestedQuantity decimal.Decimal  `db:"requested_quantity" json:"requested_quantity"`
	IssuedQuantity    decimal.Decimal  `db:"issued_quantity" json:"issued_quantity"`
	Unit              string           `db:"unit" json:"unit"`
	BatchNumber       *string          `db:"batch_number" json:"batch_number,omitempty"`
	UseFefo           bool             `db:"use_fefo" json:"use_fefo"`
	SerialNumbers     SerialList       `db:"serial_numbers" json:"serial_numbers"`
	Allocations       BatchAllocations `db:"allocations" json:"allocations"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
}

// StockTransfer moves stock between bins of one warehouse in a single phase
type StockTransfer struct {
	ID          string              `db:"id" json:"id"`
	Number      string              `db:"number" json:"number"`
	Status      DocumentStatus      `db:"status" json:"status"`
	Notes       *string             `db:"notes" json:"notes,omitempty"`
	CreatedBy   string              `db:"created_by" json:"created_by"`
	CompletedBy *string             `db:"completed_by" json:"completed_by,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
	CompletedAt *time.Time          `db:"completed_at" json:"completed_at,omitempty"`
	Items       []StockTransferItem `db:"-" json:"items"`
}

type StockTransferItem struct {
	ID            string          `db:"id" json:"id"`
	TransferID    string          `db:"transfer_id" json:"transfer_id"`
	ProductID     string          `db:"product_id" json:"product_id"`
	FromBinID     string          `db:"from_bin_id" json:"from_bin_id"`
	ToBinID       string          `db:"to_bin_id" json:"to_bin_id"`
	Quantity      decimal.Decimal `db:"quantity" json:"quantity"`
	Unit          string          `db:"unit" json:"unit"`
	BatchNumber   *string         `db:"batch_number" json:"batch_number,omitempty"`
	SerialNumbers SerialList      `db:"serial_numbers" json:"serial_numbers"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// InterWarehouseTransfer moves stock between warehouses in two phases (dispatch, receive)
type InterWarehouseTransfer struct {
	ID              string                       `db:"id" json:"id"`
	Number          string                       `db:"number" json:"number"`
	FromWarehouseID string                       `db:"from_warehouse_id" json:"from_warehouse_id"`
	ToWarehouseID   string                       `db:"to_warehouse_id" json:"to_warehouse_id"`
	Status          DocumentStatus               `db:"status" json:"status"`
	Notes           *string                      `db:"notes" json:"notes,omitempty"`
	CreatedBy       string                       `db:"created_by" json:"created_by"`
	DispatchedBy    *string                      `db:"dispatched_by" json:"dispatched_by,omitempty"`
	ReceivedBy      *string                      `db:"received_by" json:"received_by,omitempty"`
	CreatedAt       time.Time                    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time                    `db:"updated_at" json:"updated_at"`
	DispatchedAt    *time.Time                   `db:"dispatched_at" json:"dispatched_at,omitempty"`
	ReceivedAt      *time.Time                   `db:"received_at" json:"received_at,omitempty"`
	CancelledAt     *time.Time                   `db:"cancelled_at" json:"cancelled_at,omitempty"`
	Items           []InterWarehouseTransferItem `db:"-" json:"items"`
}

type InterWarehouseTransferItem struct {
	ID                 string           `db:"id" json:"id"`
	TransferID         string           `db:"transfer_id" json:"transfer_id"`
	ProductID          string           `db:"product_id" json:"product_id"`
	FromBinID          string           `db:"from_bin_id" json:"from_bin_id"`
	ToBinID            string           `db:"to_bin_id" json:"to_bin_id"`
	RequestedQuantity  decimal.Decimal  `db:"requested_quantity" json:"requested_quantity"`
	DispatchedQuantity decimal.Decimal  `db:"dispatched_quantity" json:"dispatched_quantity"`
	ReceivedQuantity   decimal.Decimal  `db:"received_quantity" json:"received_quantity"`
	Unit               string           `db:"unit" json:"unit"`
	BatchNumber        *string          `db:"batch_number" json:"batch_number,omitempty"`
	ExpiryDate         *time.Time       `db:"expiry_date" json:"expiry_date,omitempty"`
	SerialNumbers      SerialList       `db:"serial_numbers" json:"serial_numbers"`
	Allocations        BatchAllocations `db:"allocations" json:"allocations"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
}

// InTransitQuantity is what left the source bin but has not arrived anywhere yet.
func (i *InterWarehouseTransferItem) InTransitQuantity() decimal.Decimal {
	return i.DispatchedQuantity.Sub(i.ReceivedQuantity)
}

// InventoryCountSession snapshots stock lines and reconciles them against physical counts
type InventoryCountSession struct {
	ID                string               `db:"id" json:"id"`
	Number            string               `db:"number" json:"number"`
	WarehouseID       *string              `db:"warehouse_id" json:"warehouse_id,omitempty"`
	Status            DocumentStatus       `db:"status" json:"status"`
	ToleranceQuantity decimal.Decimal      `db:"tolerance_quantity" json:"tolerance_quantity"`
	Notes             *string              `db:"notes" json:"notes,omitempty"`
	CreatedBy         string               `db:"created_by" json:"created_by"`
	CompletedBy       *string              `db:"completed_by" json:"completed_by,omitempty"`
	CreatedAt         time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time            `db:"updated_at" json:"updated_at"`
	GeneratedAt       *time.Time           `db:"generated_at" json:"generated_at,omitempty"`
	CompletedAt       *time.Time           `db:"completed_at" json:"completed_at,omitempty"`
	Items             []InventoryCountItem `db:"-" json:"items"`
}

type InventoryCountItem struct {
	ID               string              `db:"id" json:"id"`
	SessionID        string              `db:"session_id" json:"session_id"`
	ProductID        string              `db:"product_id" json:"product_id"`
	BinID            string              `db:"bin_id" json:"bin_id"`
	SnapshotQuantity decimal.Decimal     `db:"snapshot_quantity" json:"snapshot_quantity"`
	CountedQuantity  decimal.NullDecimal `db:"counted_quantity" json:"counted_quantity"`
	Difference       decimal.NullDecimal `db:"difference" json:"difference"`
	Unit             string              `db:"unit" json:"unit"`
	RecountRequired  bool                `db:"recount_required" json:"recount_required"`
	CountAttempts    int                 `db:"count_attempts" json:"count_attempts"`
	CountedBy        *string             `db:"counted_by" json:"counted_by,omitempty"`
	LastCountedAt    *time.Time          `db:"last_counted_at" json:"last_counted_at,omitempty"`
}

// RecordCount stores a physical count. A count whose difference from the snapshot
// exceeds the tolerance is flagged for recount; only a count within tolerance is final.
func (i *InventoryCountItem) RecordCount(counted, tolerance decimal.Decimal, countedBy string, now time.Time) {
	diff := counted.Sub(i.SnapshotQuantity)
	i.CountedQuantity = decimal.NewNullDecimal(counted)
	i.Difference = decimal.NewNullDecimal(diff)
	i.RecountRequired = diff.Abs().GreaterThan(tolerance)
	i.CountAttempts++
	by := countedBy
	i.CountedBy = &by
	i.LastCountedAt = &now
}

// Counted reports whether the item holds a final count.
func (i *InventoryCountItem) Counted() bool {
	return i.CountedQuantity.Valid && !i.RecountRequired
}

// Reservation is one claimed client operation id. StatusCode 0 means the first attempt is in flight.
type Reservation struct {
	OperationID  string    `db:"operation_id" json:"operation_id"`
	Endpoint     string    `db:"endpoint" json:"endpoint"`
	Method       string    `db:"method" json:"method"`
	StatusCode   int       `db:"status_code" json:"status_code"`
	ResponseBody []byte    `db:"response_body" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// InFlight reports whether the reservation has not been finalized yet.
func (r *Reservation) InFlight() bool {
	return r.StatusCode == 0
}
