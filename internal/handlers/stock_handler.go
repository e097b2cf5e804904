package handlers

import (
	"context"
	"net/http"
	"strconv"

	"directstock/internal/commands"
	"directstock/internal/domain"
	"directstock/internal/ledger"
	"directstock/internal/lots"
	"directstock/internal/operations"
	"directstock/internal/serials"
	apperrors "directstock/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StockReader lists current stock lines; the cached query and the ledger both satisfy it
type StockReader interface {
	List(ctx context.Context, f ledger.StockFilter) ([]domain.StockLine, error)
}

// StockHandler serves stock, lot, serial and journal reads plus reservation counters
type StockHandler struct {
	ops     *operations.Service
	stock   StockReader
	lots    *lots.Registry
	serials *serials.Registry
	journal *ledger.Journal
	logger  *zap.Logger
}

func NewStockHandler(ops *operations.Service, stock StockReader, lotRegistry *lots.Registry,
	serialRegistry *serials.Registry, journal *ledger.Journal, logger *zap.Logger) *StockHandler {
	return &StockHandler{
		ops:     ops,
		stock:   stock,
		lots:    lotRegistry,
		serials: serialRegistry,
		journal: journal,
		logger:  logger,
	}
}

// ListStock handles GET /api/v1/stock
// @Summary  Current stock lines
// @Tags     stock
// @Produce  json
// @Param    product_id    query     string  false  "Product"
// @Param    bin_id        query     string  false  "Bin"
// @Param    warehouse_id  query     string  false  "Warehouse"
// @Success  200           {array}   domain.StockLine
// @Router   /stock [get]
func (h *StockHandler) ListStock(c *gin.Context) {
	lines, err := h.stock.List(c.Request.Context(), ledger.StockFilter{
		ProductID:   c.Query("product_id"),
		BinID:       c.Query("bin_id"),
		WarehouseID: c.Query("warehouse_id"),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lines)
}

// ListLots handles GET /api/v1/stock/lots, FEFO order per (product, bin)
func (h *StockHandler) ListLots(c *gin.Context) {
	ls, err := h.lots.List(c.Request.Context(), lots.Filter{
		ProductID: c.Query("product_id"),
		BinID:     c.Query("bin_id"),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ls)
}

// Reserve handles POST /api/v1/stock/reserve
// @Summary  Earmark available stock
// @Tags     stock
// @Accept   json
// @Produce  json
// @Param    request  body      ReservationRequest  true  "Reservation"
// @Success  200      {object}  domain.StockLine
// @Failure  409      {object}  ErrorResponse  "insufficient_stock"
// @Router   /stock/reserve [post]
func (h *StockHandler) Reserve(c *gin.Context) {
	h.adjust(c, h.ops.ReserveStock)
}

// Release handles POST /api/v1/stock/release
func (h *StockHandler) Release(c *gin.Context) {
	h.adjust(c, h.ops.ReleaseStock)
}

func (h *StockHandler) adjust(c *gin.Context, apply func(context.Context, commands.AdjustReservation) (*domain.StockLine, error)) {
	var req ReservationRequest
	if !bindJSON(c, &req, h.logger) {
		return
	}
	line, err := apply(c.Request.Context(), commands.AdjustReservation{
		ProductID: req.ProductID,
		BinID:     req.BinID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

// GetSerial handles GET /api/v1/serials/:serial
func (h *StockHandler) GetSerial(c *gin.Context) {
	unit, err := h.serials.Get(c.Request.Context(), c.Param("serial"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, unit)
}

// ListMovements handles GET /api/v1/movements
// @Summary  Journal entries, newest first
// @Tags     movements
// @Produce  json
// @Param    product_id        query     string  false  "Product"
// @Param    bin_id            query     string  false  "Source or destination bin"
// @Param    movement_type     query     string  false  "Movement type"
// @Param    reference_number  query     string  false  "Document number"
// @Param    limit             query     int     false  "Page size (max 500)"
// @Param    offset            query     int     false  "Offset"
// @Success  200               {object}  MovementPage
// @Router   /movements [get]
func (h *StockHandler) ListMovements(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, apperrors.NewValidationError("limit must be an integer", "limit"))
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		c.JSON(http.StatusBadRequest, apperrors.NewValidationError("offset must be an integer", "offset"))
		return
	}
	entries, err := h.journal.List(c.Request.Context(), ledger.MovementFilter{
		ProductID:       c.Query("product_id"),
		BinID:           c.Query("bin_id"),
		MovementType:    domain.MovementType(c.Query("movement_type")),
		ReferenceNumber: c.Query("reference_number"),
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, MovementPage{Items: entries, Limit: limit, Offset: offset})
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
