package domain

import "time"

// Product carries the tracking flags the movement core needs
type Product struct {
	ID             string    `db:"id" json:"id"`
	SKU            string    `db:"sku" json:"sku"`
	Name           string    `db:"name" json:"name"`
	DefaultUnit    string    `db:"default_unit" json:"default_unit"`
	RequiresBatch  bool      `db:"requires_batch" json:"requires_batch"`
	RequiresSerial bool      `db:"requires_serial" json:"requires_serial"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// UnitOrDefault returns unit, falling back to the product's default unit.
func (p *Product) UnitOrDefault(unit string) string {
	if unit != "" {
		return unit
	}
	if p.DefaultUnit != "" {
		return p.DefaultUnit
	}
	return "piece"
}

type Warehouse struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Bin is a storage location inside a warehouse
type Bin struct {
	ID          string    `db:"id" json:"id"`
	WarehouseID string    `db:"warehouse_id" json:"warehouse_id"`
	Code        string    `db:"code" json:"code"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
