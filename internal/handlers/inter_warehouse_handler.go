package handlers

import (
	"net/http"

	"directstock/internal/commands"
	"directstock/internal/operations"
	"directstock/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InterWarehouseHandler serves two-step transfers that pass through an in-transit state
type InterWarehouseHandler struct {
	ops    *operations.Service
	logger *zap.Logger
}

func NewInterWarehouseHandler(ops *operations.Service, logger *zap.Logger) *InterWarehouseHandler {
	return &InterWarehouseHandler{ops: ops, logger: logger}
}

// Create handles POST /api/v1/inter-warehouse-transfers
// @Summary  Open a draft inter-warehouse transfer
// @Tags     inter-warehouse-transfers
// @Accept   json
// @Produce  json
// @Param    X-Operation-ID  header    string                               false  "Operation id"
// @Param    request         body      CreateInterWarehouseTransferRequest  true   "Transfer"
// @Success  201             {object}  domain.InterWarehouseTransfer
// @Failure  400             {object}  ErrorResponse  "Bins outside their warehouse"
// @Router   /inter-warehouse-transfers [post]
func (h *InterWarehouseHandler) Create(c *gin.Context) {
	var req CreateInterWarehouseTransferRequest
	if !bindJSON(c, &req, h.logger) {
		return
	}
	t, err := h.ops.CreateInterWarehouseTransfer(c.Request.Context(), commands.CreateInterWarehouseTransfer{
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		Notes:           req.Notes,
		Items:           toTransferLines(req.Items),
		PerformedBy:     middleware.PerformedBy(c, req.PerformedBy),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *InterWarehouseHandler) AddItem(c *gin.Context) {
	var req TransferItemRequest
	if !bindJSON(c, &req, h.logger) {
		return
	}
	item, err := h.ops.AddInterWarehouseItem(c.Request.Context(), c.Param("id"), req.toLine())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *InterWarehouseHandler) Get(c *gin.Context) {
	t, err := h.ops.GetInterWarehouseTransfer(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Dispatch handles POST /api/v1/inter-warehouse-transfers/:id/dispatch
// @Summary      Ship a transfer
// @Description  Withdraws stock from the source bins and moves serials to in-transit.
// @Tags         inter-warehouse-transfers
// @Produce      json
// @Param        id              path      string            true   "Transfer ID"
// @Param        X-Operation-ID  header    string            false  "Operation id"
// @Param        request         body      PerformerRequest  false  "Performer"
// @Success      200             {object}  domain.InterWarehouseTransfer
// @Failure      409             {object}  ErrorResponse
// @Router       /inter-warehouse-transfers/{id}/dispatch [post]
func (h *InterWarehouseHandler) Dispatch(c *gin.Context) {
	by, ok := performer(c, h.logger)
	if !ok {
		return
	}
	t, err := h.ops.DispatchInterWarehouseTransfer(c.Request.Context(), c.Param("id"), by)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Receive handles POST /api/v1/inter-warehouse-transfers/:id/receive
// @Summary      Confirm arrival
// @Description  Items not listed arrive in full. Non-serial items may arrive short; serial items must arrive complete.
// @Tags         inter-warehouse-transfers
// @Accept       json
// @Produce      json
// @Param        id              path      string                                true   "Transfer ID"
// @Param        X-Operation-ID  header    string                                false  "Operation id"
// @Param        request         body      ReceiveInterWarehouseTransferRequest  false  "Received quantities"
// @Success      200             {object}  domain.InterWarehouseTransfer
// @Failure      409             {object}  ErrorResponse
// @Router       /inter-warehouse-transfers/{id}/receive [post]
func (h *InterWarehouseHandler) Receive(c *gin.Context) {
	var req ReceiveInterWarehouseTransferRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, h.logger) {
		return
	}
	cmd := req.toCommand(c.Param("id"))
	cmd.PerformedBy = middleware.PerformedBy(c, cmd.PerformedBy)
	t, err := h.ops.ReceiveInterWarehouseTransfer(c.Request.Context(), cmd)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Cancel handles POST /api/v1/inter-warehouse-transfers/:id/cancel. Only drafts can be cancelled.
func (h *InterWarehouseHandler) Cancel(c *gin.Context) {
	t, err := h.ops.CancelInterWarehouseTransfer(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
