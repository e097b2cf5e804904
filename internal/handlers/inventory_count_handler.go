package handlers

import (
	"net/http"

	"directstock/internal/commands"
	"directstock/internal/operations"
	"directstock/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type InventoryCountHandler struct {
	ops    *operations.Service
	logger *zap.Logger
}

func NewInventoryCountHandler(ops *operations.Service, logger *zap.Logger) *InventoryCountHandler {
	return &InventoryCountHandler{ops: ops, logger: logger}
}

// Create handles POST /api/v1/inventory-counts
// @Summary  Open a count session
// @Tags     inventory-counts
// @Accept   json
// @Produce  json
// @Param    request  body      CreateInventoryCountRequest  true  "Session"
// @Success  201      {object}  domain.InventoryCountSession
// @Router   /inventory-counts [post]
func (h *InventoryCountHandler) Create(c *gin.Context) {
	var req CreateInventoryCountRequest
	if !bindJSON(c, &req, h.logger) {
		return
	}
	s, err := h.ops.CreateInventoryCount(c.Request.Context(), commands.CreateInventoryCount{
		WarehouseID:       req.WarehouseID,
		ToleranceQuantity: req.ToleranceQuantity,
		Notes:             req.Notes,
		PerformedBy:       middleware.PerformedBy(c, req.PerformedBy),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *InventoryCountHandler) Get(c *gin.Context) {
	s, err := h.ops.GetInventoryCount(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// Generate handles POST /api/v1/inventory-counts/:id/generate
// @Summary  Snapshot stock lines into count items
// @Tags     inventory-counts
// @Produce  json
// @Param    id   path      string  true  "Session ID"
// @Success  200  {object}  domain.InventoryCountSession
// @Router   /inventory-counts/{id}/generate [post]
func (h *InventoryCountHandler) Generate(c *gin.Context) {
	by, ok := performer(c, h.logger)
	if !ok {
		return
	}
	s, err := h.ops.GenerateInventoryCount(c.Request.Context(), c.Param("id"), by)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// RecordCount handles POST /api/v1/inventory-counts/:id/items/:itemId/count
// @Summary      Record a physical count
// @Description  A count outside the tolerance sets recount_required until a count within tolerance is recorded.
// @Tags         inventory-counts
// @Accept       json
// @Produce      json
// @Param        id       path      string              true  "Session ID"
// @Param        itemId   path      string              true  "Item ID"
// @Param        request  body      RecordCountRequest  true  "Count"
// @Success      200      {object}  domain.InventoryCountItem
// @Router       /inventory-counts/{id}/items/{itemId}/count [post]
func (h *InventoryCountHandler) RecordCount(c *gin.Context) {
	var req RecordCountRequest
	if !bindJSON(c, &req, h.logger) {
		return
	}
	item, err := h.ops.RecordCount(c.Request.Context(), commands.RecordCount{
		SessionID:       c.Param("id"),
		ItemID:          c.Param("itemId"),
		CountedQuantity: *req.CountedQuantity,
		PerformedBy:     middleware.PerformedBy(c, req.PerformedBy),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// Complete handles POST /api/v1/inventory-counts/:id/complete
// @Summary  Apply count differences
// @Tags     inventory-counts
// @Produce  json
// @Param    id   path      string  true  "Session ID"
// @Success  200  {object}  domain.InventoryCountSession
// @Failure  409  {object}  ErrorResponse  "recount_required or uncounted items"
// @Router   /inventory-counts/{id}/complete [post]
func (h *InventoryCountHandler) Complete(c *gin.Context) {
	by, ok := performer(c, h.logger)
	if !ok {
		return
	}
	s, err := h.ops.CompleteInventoryCount(c.Request.Context(), c.Param("id"), by)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *InventoryCountHandler) Cancel(c *gin.Context) {
	s, err := h.ops.CancelInventoryCount(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
