package handlers

import (
	"net/http"

	"directstock/internal/commands"
	"directstock/internal/operations"
	"directstock/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StockTransferHandler serves bin-to-bin moves inside one warehouse
type StockTransferHandler struct {
	ops    *operations.Service
	logger *zap.Logger
}

func NewStockTransferHandler(ops *operations.Service, logger *zap.Logger) *StockTransferHandler {
	return &StockTransferHandler{ops: ops, logger: logger}
}

func (h *StockTransferHandler) Create(c *gin.Context) {
	var req CreateStockTransferRequest
	if !bindJSON(c, &req, h.logger) {
		return
	}
	t, err := h.ops.CreateStockTransfer(c.Request.Context(), commands.CreateStockTransfer{
		Notes:       req.Notes,
		Items:       toTransferLines(req.Items),
		PerformedBy: middleware.PerformedBy(c, req.PerformedBy),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *StockTransferHandler) AddItem(c *gin.Context) {
	var req TransferItemRequest
	if !bindJSON(c, &req, h.logger) {
		return
	}
	item, err := h.ops.AddStockTransferItem(c.Request.Context(), c.Param("id"), req.toLine())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *StockTransferHandler) Get(c *gin.Context) {
	t, err := h.ops.GetStockTransfer(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *StockTransferHandler) Complete(c *gin.Context) {
	by, ok := performer(c, h.logger)
	if !ok {
		return
	}
	t, err := h.ops.CompleteStockTransfer(c.Request.Context(), c.Param("id"), by)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *StockTransferHandler) Cancel(c *gin.Context) {
	t, err := h.ops.CancelStockTransfer(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
