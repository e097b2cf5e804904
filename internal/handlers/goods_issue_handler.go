package handlers

import (
	"net/http"

	"directstock/internal/operations"
	"directstock/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type GoodsIssueHandler struct {
	ops    *operations.Service
	logger *zap.Logger
}

func NewGoodsIssueHandler(ops *operations.Service, logger *zap.Logger) *GoodsIssueHandler {
	return &GoodsIssueHandler{ops: ops, logger: logger}
}

// Create handles POST /api/v1/goods-issues
// @Summary  Open a draft goods issue
// @Tags     goods-issues
// @Accept   json
// @Produce  json
// @Param    X-Operation-ID  header    string                   false  "Operation id"
// @Param    request         body      CreateGoodsIssueRequest  true   "Issue"
// @Success  201             {object}  domain.GoodsIssue
// @Failure  400             {object}  ErrorResponse
// @Router   /goods-issues [post]
func (h *GoodsIssueHandler) Create(c *gin.Context) {
	var req CreateGoodsIssueRequest
	if !bindJSON(c, &req, h.logger) {
		return
	}
	cmd := req.toCommand()
	cmd.PerformedBy = middleware.PerformedBy(c, cmd.PerformedBy)
	issue, err := h.ops.CreateGoodsIssue(c.Request.Context(), cmd)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, issue)
}

func (h *GoodsIssueHandler) AddItem(c *gin.Context) {
	var req GoodsIssueItemRequest
	if !bindJSON(c, &req, h.logger) {
		return
	}
	item, err := h.ops.AddGoodsIssueItem(c.Request.Context(), c.Param("id"), req.toLine())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *GoodsIssueHandler) Get(c *gin.Context) {
	issue, err := h.ops.GetGoodsIssue(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

// Complete handles POST /api/v1/goods-issues/:id/complete
// @Summary      Take an issue out of stock
// @Description  Items without a batch number draw lots in FEFO order. Any shortfall aborts the whole issue.
// @Tags         goods-issues
// @Produce      json
// @Param        id              path      string            true   "Issue ID"
// @Param        X-Operation-ID  header    string            false  "Operation id"
// @Param        request         body      PerformerRequest  false  "Performer"
// @Success      200             {object}  domain.GoodsIssue
// @Failure      409             {object}  ErrorResponse  "insufficient_stock, serial_state_conflict or invalid_state"
// @Router       /goods-issues/{id}/complete [post]
func (h *GoodsIssueHandler) Complete(c *gin.Context) {
	by, ok := performer(c, h.logger)
	if !ok {
		return
	}
	issue, err := h.ops.CompleteGoodsIssue(c.Request.Context(), c.Param("id"), by)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

func (h *GoodsIssueHandler) Cancel(c *gin.Context) {
	issue, err := h.ops.CancelGoodsIssue(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}
