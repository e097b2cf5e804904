package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockLine is the on-hand quantity of one product at one bin.
// It is a cached projection of the movement journal.
type StockLine struct {
	ID               string          `db:"id" json:"id"`
	ProductID        string          `db:"product_id" json:"product_id"`
	BinID            string          `db:"bin_id" json:"bin_id"`
	Quantity         decimal.Decimal `db:"quantity" json:"quantity"`
	ReservedQuantity decimal.Decimal `db:"reserved_quantity" json:"reserved_quantity"`
	Unit             string          `db:"unit" json:"unit"`
	Version          int             `db:"version" json:"version"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// AvailableQuantity returns the available quantity (total - reserved)
func (s *StockLine) AvailableQuantity() decimal.Decimal {
	return s.Quantity.Sub(s.ReservedQuantity)
}

// ApplyDelta adds a signed delta to the quantity. A result below zero leaves the line untouched.
func (s *StockLine) ApplyDelta(delta decimal.Decimal, now time.Time) error {
	newQuantity := s.Quantity.Add(delta)
	if newQuantity.IsNegative() {
		return NewInsufficientStock(s.ProductID, s.BinID, s.Quantity, delta.Neg())
	}
	s.Quantity = newQuantity
	s.UpdatedAt = now
	s.Version++
	return nil
}

// Withdraw removes quantity, checked against the available (unreserved) quantity.
func (s *StockLine) Withdraw(quantity decimal.Decimal, now time.Time) error {
	if s.AvailableQuantity().LessThan(quantity) {
		return NewInsufficientStock(s.ProductID, s.BinID, s.AvailableQuantity(), quantity)
	}
	return s.ApplyDelta(quantity.Neg(), now)
}

// ReserveStock reserves stock
func (s *StockLine) ReserveStock(quantity decimal.Decimal, now time.Time) error {
	if s.AvailableQuantity().LessThan(quantity) {
		return NewInsufficientStock(s.ProductID, s.BinID, s.AvailableQuantity(), quantity)
	}
	s.ReservedQuantity = s.ReservedQuantity.Add(quantity)
	s.UpdatedAt = now
	s.Version++
	return nil
}

// ReleaseStock releases reserved stock
func (s *StockLine) ReleaseStock(quantity decimal.Decimal, now time.Time) error {
	if s.ReservedQuantity.LessThan(quantity) {
		return NewValidationError("invalid release quantity", map[string]any{
			"reserved":  s.ReservedQuantity.String(),
			"requested": quantity.String(),
		})
	}
	s.ReservedQuantity = s.ReservedQuantity.Sub(quantity)
	s.UpdatedAt = now
	s.Version++
	return nil
}

// LotLine is the quantity of one product batch at one bin.
type LotLine struct {
	ID          string          `db:"id" json:"id"`
	ProductID   string          `db:"product_id" json:"product_id"`
	BinID       string          `db:"bin_id" json:"bin_id"`
	BatchNumber string          `db:"batch_number" json:"batch_number"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	ExpiryDate  *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// SerialStatus is the lifecycle status of a serial unit
type SerialStatus string

const (
	SerialInStock   SerialStatus = "in_stock"
	SerialInTransit SerialStatus = "in_transit"
	SerialIssued    SerialStatus = "issued"
)

// SerialUnit is one physically unique item. CurrentBinID is set iff Status is in_stock.
type SerialUnit struct {
	ID           string       `db:"id" json:"id"`
	SerialNumber string       `db:"serial_number" json:"serial_number"`
	ProductID    string       `db:"product_id" json:"product_id"`
	CurrentBinID *string      `db:"current_bin_id" json:"current_bin_id"`
	Status       SerialStatus `db:"status" json:"status"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// Place puts the unit in stock at a bin.
func (u *SerialUnit) Place(binID string, now time.Time) {
	bin := binID
	u.CurrentBinID = &bin
	u.Status = SerialInStock
	u.UpdatedAt = now
}

// Detach moves the unit to a status without a bin (in_transit or issued).
func (u *SerialUnit) Detach(status SerialStatus, now time.Time) {
	u.CurrentBinID = nil
	u.Status = status
	u.UpdatedAt = now
}

// AtBin reports whether the unit is in stock at the given bin.
func (u *SerialUnit) AtBin(binID string) bool {
	return u.Status == SerialInStock && u.CurrentBinID != nil && *u.CurrentBinID == binID
}
