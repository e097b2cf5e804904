package handlers

import (
	"net/http"

	"directstock/internal/catalog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CatalogHandler struct {
	catalog *catalog.Repository
	logger  *zap.Logger
}

func NewCatalogHandler(repo *catalog.Repository, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: repo, logger: logger}
}

// CreateProduct handles POST /api/v1/products
// @Summary      Register a product
// @Description  Batch-tracked products need a batch number on every receipt; serial-tracked products need one serial per unit.
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Param        request  body      CreateProductRequest  true  "Product"
// @Success      201      {object}  domain.Product
// @Failure      400      {object}  ErrorResponse
// @Failure      409      {object}  ErrorResponse  "SKU already exists"
// @Router       /products [post]
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var req CreateProductRequest
	if !bindJSON(c, &req, h.logger) {
		return
	}
	p, err := h.catalog.CreateProduct(c.Request.Context(), catalog.NewProduct{
		SKU:            req.SKU,
		Name:           req.Name,
		DefaultUnit:    req.DefaultUnit,
		RequiresBatch:  req.RequiresBatch,
		RequiresSerial: req.RequiresSerial,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// GetProduct handles GET /api/v1/products/:id
// @Summary  Get a product
// @Tags     catalog
// @Produce  json
// @Param    id   path      string  true  "Product ID"
// @Success  200  {object}  domain.Product
// @Failure  404  {object}  ErrorResponse
// @Router   /products/{id} [get]
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	p, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *CatalogHandler) ListProducts(c *gin.Context) {
	ps, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ps)
}

// CreateWarehouse handles POST /api/v1/warehouses
// @Summary  Register a warehouse
// @Tags     catalog
// @Accept   json
// @Produce  json
// @Param    request  body      CreateWarehouseRequest  true  "Warehouse"
// @Success  201      {object}  domain.Warehouse
// @Failure  409      {object}  ErrorResponse
// @Router   /warehouses [post]
func (h *CatalogHandler) CreateWarehouse(c *gin.Context) {
	var req CreateWarehouseRequest
	if !bindJSON(c, &req, h.logger) {
		return
	}
	w, err := h.catalog.CreateWarehouse(c.Request.Context(), req.Code, req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *CatalogHandler) ListWarehouses(c *gin.Context) {
	ws, err := h.catalog.ListWarehouses(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

// CreateBin handles POST /api/v1/warehouses/:id/bins
// @Summary  Add a bin to a warehouse
// @Tags     catalog
// @Accept   json
// @Produce  json
// @Param    id       path      string            true  "Warehouse ID"
// @Param    request  body      CreateBinRequest  true  "Bin"
// @Success  201      {object}  domain.Bin
// @Failure  404      {object}  ErrorResponse
// @Router   /warehouses/{id}/bins [post]
func (h *CatalogHandler) CreateBin(c *gin.Context) {
	var req CreateBinRequest
	if !bindJSON(c, &req, h.logger) {
		return
	}
	b, err := h.catalog.CreateBin(c.Request.Context(), c.Param("id"), req.Code)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *CatalogHandler) ListBins(c *gin.Context) {
	bs, err := h.catalog.ListBins(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bs)
}

// GetBin handles GET /api/v1/bins/:id
func (h *CatalogHandler) GetBin(c *gin.Context) {
	b, err := h.catalog.GetBin(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
