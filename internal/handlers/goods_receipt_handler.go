package handlers

import (
	"net/http"

	"directstock/internal/operations"
	"directstock/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type GoodsReceiptHandler struct {
	ops    *operations.Service
	logger *zap.Logger
}

func NewGoodsReceiptHandler(ops *operations.Service, logger *zap.Logger) *GoodsReceiptHandler {
	return &GoodsReceiptHandler{ops: ops, logger: logger}
}

// Create handles POST /api/v1/goods-receipts
// @Summary      Open a draft goods receipt
// @Description  Items may be given now or added later while the receipt is a draft.
// @Description  **Idempotency**: send X-Operation-ID; a retry with the same id replays the stored response.
// @Tags         goods-receipts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        X-Operation-ID  header    string                     false  "Operation id"
// @Param        request         body      CreateGoodsReceiptRequest  true   "Receipt"
// @Success      201             {object}  domain.GoodsReceipt
// @Failure      400             {object}  ErrorResponse  "Invalid item, details.item_index names it"
// @Failure      409             {object}  ErrorResponse  "Operation id reused or in flight"
// @Router       /goods-receipts [post]
func (h *GoodsReceiptHandler) Create(c *gin.Context) {
	var req CreateGoodsReceiptRequest
	if !bindJSON(c, &req, h.logger) {
		return
	}
	cmd, err := req.toCommand()
	if err != nil {
		fail(c, err)
		return
	}
	cmd.PerformedBy = middleware.PerformedBy(c, cmd.PerformedBy)
	r, err := h.ops.CreateGoodsReceipt(c.Request.Context(), cmd)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// AddItem handles POST /api/v1/goods-receipts/:id/items
// @Summary  Add an item to a draft receipt
// @Tags     goods-receipts
// @Accept   json
// @Produce  json
// @Param    id       path      string                   true  "Receipt ID"
// @Param    request  body      GoodsReceiptItemRequest  true  "Item"
// @Success  201      {object}  domain.GoodsReceiptItem
// @Failure  409      {object}  ErrorResponse  "Receipt is not a draft"
// @Router   /goods-receipts/{id}/items [post]
func (h *GoodsReceiptHandler) AddItem(c *gin.Context) {
	var req GoodsReceiptItemRequest
	if !bindJSON(c, &req, h.logger) {
		return
	}
	line, err := req.toLine()
	if err != nil {
		fail(c, err)
		return
	}
	item, err := h.ops.AddGoodsReceiptItem(c.Request.Context(), c.Param("id"), line)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// Get handles GET /api/v1/goods-receipts/:id
func (h *GoodsReceiptHandler) Get(c *gin.Context) {
	r, err := h.ops.GetGoodsReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Complete handles POST /api/v1/goods-receipts/:id/complete
// @Summary      Book a receipt into stock
// @Description  Applies every item or none. Serial numbers must be unknown or previously issued.
// @Tags         goods-receipts
// @Accept       json
// @Produce      json
// @Param        id              path      string            true   "Receipt ID"
// @Param        X-Operation-ID  header    string            false  "Operation id"
// @Param        request         body      PerformerRequest  false  "Performer"
// @Success      200             {object}  domain.GoodsReceipt
// @Failure      409             {object}  ErrorResponse  "invalid_state or serial_state_conflict"
// @Router       /goods-receipts/{id}/complete [post]
func (h *GoodsReceiptHandler) Complete(c *gin.Context) {
	by, ok := performer(c, h.logger)
	if !ok {
		return
	}
	r, err := h.ops.CompleteGoodsReceipt(c.Request.Context(), c.Param("id"), by)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Cancel handles POST /api/v1/goods-receipts/:id/cancel
func (h *GoodsReceiptHandler) Cancel(c *gin.Context) {
	r, err := h.ops.CancelGoodsReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
