package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"directstock/internal/domain"
	"directstock/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Repository holds the master data the movement core reads: products, warehouses and bins
type Repository struct {
	db     *store.DB
	logger *zap.Logger
}

func NewRepository(db *store.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// NewProduct describes a product to register
type NewProduct struct {
	SKU            string
	Name           string
	DefaultUnit    string
	RequiresBatch  bool
	RequiresSerial bool
}

func (r *Repository) CreateProduct(ctx context.Context, in NewProduct) (*domain.Product, error) {
	in.SKU = strings.TrimSpace(in.SKU)
	in.Name = strings.TrimSpace(in.Name)
	if in.SKU == "" {
		return nil, domain.NewFieldError("sku", "sku is required")
	}
	if in.Name == "" {
		return nil, domain.NewFieldError("name", "name is required")
	}

	p := &domain.Product{
		ID:             uuid.New().String(),
		SKU:            in.SKU,
		Name:           in.Name,
		RequiresBatch:  in.RequiresBatch,
		RequiresSerial: in.RequiresSerial,
		CreatedAt:      time.Now().UTC(),
	}
	p.DefaultUnit = p.UnitOrDefault(in.DefaultUnit)

	_, err := r.db.NamedExec(ctx, `
		INSERT INTO products (id, sku, name, default_unit, requires_batch, requires_serial, created_at)
		VALUES (:id, :sku, :name, :default_unit, :requires_batch, :requires_serial, :created_at)`, p)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, domain.NewConflict("sku already exists", map[string]any{"sku": p.SKU})
		}
		return nil, fmt.Errorf("failed to insert product: %w", err)
	}

	r.logger.Info("Product created", zap.String("product_id", p.ID), zap.String("sku", p.SKU))
	return p, nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := r.db.Get(ctx, &p, `SELECT * FROM products WHERE id = ?`, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domain.NewNotFound("product", id)
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return &p, nil
}

func (r *Repository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products := []domain.Product{}
	if err := r.db.Select(ctx, &products, `SELECT * FROM products ORDER BY sku`); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func (r *Repository) CreateWarehouse(ctx context.Context, code, name string) (*domain.Warehouse, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.NewFieldError("code", "code is required")
	}
	if strings.TrimSpace(name) == "" {
		name = code
	}

	w := &domain.Warehouse{
		ID:        uuid.New().String(),
		Code:      code,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.db.NamedExec(ctx, `
		INSERT INTO warehouses (id, code, name, created_at)
		VALUES (:id, :code, :name, :created_at)`, w)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, domain.NewConflict("warehouse code already exists", map[string]any{"code": code})
		}
		return nil, fmt.Errorf("failed to insert warehouse: %w", err)
	}

	r.logger.Info("Warehouse created", zap.String("warehouse_id", w.ID), zap.String("code", code))
	return w, nil
}

func (r *Repository) GetWarehouse(ctx context.Context, id string) (*domain.Warehouse, error) {
	var w domain.Warehouse
	err := r.db.Get(ctx, &w, `SELECT * FROM warehouses WHERE id = ?`, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domain.NewNotFound("warehouse", id)
		}
		return nil, fmt.Errorf("failed to load warehouse: %w", err)
	}
	return &w, nil
}

func (r *Repository) ListWarehouses(ctx context.Context) ([]domain.Warehouse, error) {
	warehouses := []domain.Warehouse{}
	if err := r.db.Select(ctx, &warehouses, `SELECT * FROM warehouses ORDER BY code`); err != nil {
		return nil, fmt.Errorf("failed to list warehouses: %w", err)
	}
	return warehouses, nil
}

// CreateBin adds a storage location to an existing warehouse
func (r *Repository) CreateBin(ctx context.Context, warehouseID, code string) (*domain.Bin, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.NewFieldError("code", "code is required")
	}
	if _, err := r.GetWarehouse(ctx, warehouseID); err != nil {
		return nil, err
	}

	b := &domain.Bin{
		ID:          uuid.New().String(),
		WarehouseID: warehouseID,
		Code:        code,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := r.db.NamedExec(ctx, `
		INSERT INTO bins (id, warehouse_id, code, created_at)
		VALUES (:id, :warehouse_id, :code, :created_at)`, b)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, domain.NewConflict("bin code already exists in warehouse", map[string]any{
				"warehouse_id": warehouseID,
				"code":         code,
			})
		}
		return nil, fmt.Errorf("failed to insert bin: %w", err)
	}

	r.logger.Info("Bin created", zap.String("bin_id", b.ID), zap.String("warehouse_id", warehouseID))
	return b, nil
}

func (r *Repository) GetBin(ctx context.Context, id string) (*domain.Bin, error) {
	var b domain.Bin
	err := r.db.Get(ctx, &b, `SELECT * FROM bins WHERE id = ?`, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domain.NewNotFound("bin", id)
		}
		return nil, fmt.Errorf("failed to load bin: %w", err)
	}
	return &b, nil
}

func (r *Repository) ListBins(ctx context.Context, warehouseID string) ([]domain.Bin, error) {
	bins := []domain.Bin{}
	if err := r.db.Select(ctx, &bins, `SELECT * FROM bins WHERE warehouse_id = ? ORDER BY code`, warehouseID); err != nil {
		return nil, fmt.Errorf("failed to list bins: %w", err)
	}
	return bins, nil
}

// RequireBinInWarehouse loads a bin and checks it belongs to the given warehouse
func (r *Repository) RequireBinInWarehouse(ctx context.Context, binID, warehouseID string) (*domain.Bin, error) {
	b, err := r.GetBin(ctx, binID)
	if err != nil {
		return nil, err
	}
	if b.WarehouseID != warehouseID {
		return nil, domain.NewValidationError("bin does not belong to warehouse", map[string]any{
			"bin_id":       binID,
			"warehouse_id": warehouseID,
		})
	}
	return b, nil
}
