package handlers

import (
	"time"

	"directstock/internal/commands"
	"directstock/internal/domain"
	"directstock/internal/ledger"

	"github.com/shopspring/decimal"
)

// ErrorResponse is the body of every failed request
// @Description Stable error code, message and offending ids or quantities
type ErrorResponse struct {
	Code    string         `json:"code" example:"insufficient_stock"`
	Message string         `json:"message" example:"insufficient stock available"`
	Details map[string]any `json:"details,omitempty"`
}

// PerformerRequest is the optional body of transition endpoints
type PerformerRequest struct {
	PerformedBy string `json:"performed_by" example:"clerk-1"`
}

type CreateProductRequest struct {
	SKU            string `json:"sku" binding:"required" example:"MILK-1L"`
	Name           string `json:"name" binding:"required" example:"Milk 1L"`
	DefaultUnit    string `json:"default_unit" example:"piece"`
	RequiresBatch  bool   `json:"requires_batch"`
	RequiresSerial bool   `json:"requires_serial"`
}

type CreateWarehouseRequest struct {
	Code string `json:"code" binding:"required" example:"WH-MAIN"`
	Name string `json:"name" example:"Main warehouse"`
}

type CreateBinRequest struct {
	Code string `json:"code" binding:"required" example:"A-01-03"`
}

// Date is a calendar date in YYYY-MM-DD form
type Date string

func (d *Date) parse(field string) (*time.Time, error) {
	if d == nil || *d == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", string(*d))
	if err != nil {
		return nil, domain.NewFieldError(field, "date must use YYYY-MM-DD")
	}
	return &t, nil
}

type GoodsReceiptItemRequest struct {
	ProductID     string          `json:"product_id"`
	BinID         string          `json:"bin_id"`
	Quantity      decimal.Decimal `json:"quantity" swaggertype:"string" example:"12.5"`
	Unit          string          `json:"unit"`
	BatchNumber   *string         `json:"batch_number"`
	ExpiryDate    *Date           `json:"expiry_date" swaggertype:"string" example:"2025-06-30"`
	SerialNumbers []string        `json:"serial_numbers"`
}

func (r GoodsReceiptItemRequest) toLine() (commands.GoodsReceiptLine, error) {
	expiry, err := r.ExpiryDate.parse("expiry_date")
	if err != nil {
		return commands.GoodsReceiptLine{}, err
	}
	return commands.GoodsReceiptLine{
		ProductID:     r.ProductID,
		BinID:         r.BinID,
		Quantity:      r.Quantity,
		Unit:          r.Unit,
		BatchNumber:   r.BatchNumber,
		ExpiryDate:    expiry,
		SerialNumbers: r.SerialNumbers,
	}, nil
}

type CreateGoodsReceiptRequest struct {
	SupplierRef *string                   `json:"supplier_ref"`
	Notes       *string                   `json:"notes"`
	Items       []GoodsReceiptItemRequest `json:"items"`
	PerformedBy string                    `json:"performed_by"`
}

func (r CreateGoodsReceiptRequest) toCommand() (commands.CreateGoodsReceipt, error) {
	cmd := commands.CreateGoodsReceipt{SupplierRef: r.SupplierRef, Notes: r.Notes, PerformedBy: r.PerformedBy}
	for i, item := range r.Items {
		line, err := item.toLine()
		if err != nil {
			return cmd, commands.WithItemIndex(err, i)
		}
		cmd.Items = append(cmd.Items, line)
	}
	return cmd, nil
}

type GoodsIssueItemRequest struct {
	ProductID     string          `json:"product_id"`
	BinID         string          `json:"bin_id"`
	Quantity      decimal.Decimal `json:"quantity" swaggertype:"string" example:"3"`
	Unit          string          `json:"unit"`
	BatchNumber   *string         `json:"batch_number"`
	UseFefo       bool            `json:"use_fefo"`
	SerialNumbers []string        `json:"serial_numbers"`
}

func (r GoodsIssueItemRequest) toLine() commands.GoodsIssueLine {
	return commands.GoodsIssueLine{
		ProductID:     r.ProductID,
		BinID:         r.BinID,
		Quantity:      r.Quantity,
		Unit:          r.Unit,
		BatchNumber:   r.BatchNumber,
		UseFefo:       r.UseFefo,
		SerialNumbers: r.SerialNumbers,
	}
}

type CreateGoodsIssueRequest struct {
	CustomerRef *string                 `json:"customer_ref"`
	Notes       *string                 `json:"notes"`
	Items       []GoodsIssueItemRequest `json:"items"`
	PerformedBy string                  `json:"performed_by"`
}

func (r CreateGoodsIssueRequest) toCommand() commands.CreateGoodsIssue {
	cmd := commands.CreateGoodsIssue{CustomerRef: r.CustomerRef, Notes: r.Notes, PerformedBy: r.PerformedBy}
	for _, item := range r.Items {
		cmd.Items = append(cmd.Items, item.toLine())
	}
	return cmd
}

type TransferItemRequest struct {
	ProductID     string          `json:"product_id"`
	FromBinID     string          `json:"from_bin_id"`
	ToBinID       string          `json:"to_bin_id"`
	Quantity      decimal.Decimal `json:"quantity" swaggertype:"string" example:"4"`
	Unit          string          `json:"unit"`
	BatchNumber   *string         `json:"batch_number"`
	SerialNumbers []string        `json:"serial_numbers"`
}

func (r TransferItemRequest) toLine() commands.TransferLine {
	return commands.TransferLine{
		ProductID:     r.ProductID,
		FromBinID:     r.FromBinID,
		ToBinID:       r.ToBinID,
		Quantity:      r.Quantity,
		Unit:          r.Unit,
		BatchNumber:   r.BatchNumber,
		SerialNumbers: r.SerialNumbers,
	}
}

func toTransferLines(items []TransferItemRequest) []commands.TransferLine {
	var lines []commands.TransferLine
	for _, item := range items {
		lines = append(lines, item.toLine())
	}
	return lines
}

type CreateStockTransferRequest struct {
	Notes       *string               `json:"notes"`
	Items       []TransferItemRequest `json:"items"`
	PerformedBy string                `json:"performed_by"`
}

type CreateInterWarehouseTransferRequest struct {
	FromWarehouseID string                `json:"from_warehouse_id" binding:"required"`
	ToWarehouseID   string                `json:"to_warehouse_id" binding:"required"`
	Notes           *string               `json:"notes"`
	Items           []TransferItemRequest `json:"items"`
	PerformedBy     string                `json:"performed_by"`
}

type ReceiveItemRequest struct {
	ItemID           string           `json:"item_id"`
	ReceivedQuantity *decimal.Decimal `json:"received_quantity" swaggertype:"string"`
	SerialNumbers    []string         `json:"serial_numbers"`
}

type ReceiveInterWarehouseTransferRequest struct {
	Items       []ReceiveItemRequest `json:"items"`
	PerformedBy string               `json:"performed_by"`
}

func (r ReceiveInterWarehouseTransferRequest) toCommand(transferID string) commands.ReceiveInterWarehouseTransfer {
	cmd := commands.ReceiveInterWarehouseTransfer{TransferID: transferID, PerformedBy: r.PerformedBy}
	for _, item := range r.Items {
		cmd.Items = append(cmd.Items, commands.ReceiveLine{
			ItemID:        item.ItemID,
			Quantity:      item.ReceivedQuantity,
			SerialNumbers: item.SerialNumbers,
		})
	}
	return cmd
}

type CreateInventoryCountRequest struct {
	WarehouseID       *string         `json:"warehouse_id"`
	ToleranceQuantity decimal.Decimal `json:"tolerance_quantity" swaggertype:"string" example:"0.5"`
	Notes             *string         `json:"notes"`
	PerformedBy       string          `json:"performed_by"`
}

type RecordCountRequest struct {
	CountedQuantity *decimal.Decimal `json:"counted_quantity" binding:"required" swaggertype:"string" example:"9"`
	PerformedBy     string           `json:"performed_by"`
}

type ReservationRequest struct {
	ProductID string          `json:"product_id" binding:"required"`
	BinID     string          `json:"bin_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" swaggertype:"string" example:"2"`
}

// MovementPage is one page of journal entries
type MovementPage struct {
	Items  []domain.MovementEntry `json:"items"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// DriftResponse reports projection drift found by verify or fixed by rebuild
type DriftResponse struct {
	Drift []ledger.Drift `json:"drift"`
}
