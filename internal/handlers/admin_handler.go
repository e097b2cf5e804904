package handlers

import (
	"net/http"
	"time"

	"directstock/internal/idempotency"
	"directstock/internal/ledger"
	apperrors "directstock/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler exposes maintenance of the reservation log and the stock projection
type AdminHandler struct {
	reservations *idempotency.Log
	projection   *ledger.Projection
	logger       *zap.Logger
}

func NewAdminHandler(reservations *idempotency.Log, projection *ledger.Projection, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{reservations: reservations, projection: projection, logger: logger}
}

// cutoff reads ?older_than=<duration>, defaulting to def
func cutoff(c *gin.Context, def time.Duration) (time.Time, bool) {
	age := def
	if v := c.Query("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			c.JSON(http.StatusBadRequest, apperrors.NewValidationError("older_than must be a positive duration", "older_than"))
			return time.Time{}, false
		}
		age = d
	}
	return time.Now().UTC().Add(-age), true
}

// PruneReservations handles POST /api/v1/admin/reservations/prune
// @Summary  Delete finalized operation reservations older than a cutoff
// @Tags     admin
// @Produce  json
// @Param    older_than  query     string  false  "Age, e.g. 720h"
// @Success  200         {object}  map[string]int64
// @Router   /admin/reservations/prune [post]
func (h *AdminHandler) PruneReservations(c *gin.Context) {
	before, ok := cutoff(c, 30*24*time.Hour)
	if !ok {
		return
	}
	n, err := h.reservations.Prune(c.Request.Context(), before)
	if err != nil {
		fail(c, err)
		return
	}
	h.logger.Info("Reservations pruned", zap.Int64("count", n), zap.Time("cutoff", before))
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// ReleaseStaleReservations handles POST /api/v1/admin/reservations/release-stale.
// Only for attempts whose process died; a live attempt loses its reservation.
func (h *AdminHandler) ReleaseStaleReservations(c *gin.Context) {
	before, ok := cutoff(c, time.Hour)
	if !ok {
		return
	}
	n, err := h.reservations.ReleaseStale(c.Request.Context(), before)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": n})
}

// VerifyProjection handles GET /api/v1/admin/projection/verify
// @Summary  Compare stock lines with the replayed journal
// @Tags     admin
// @Produce  json
// @Success  200  {object}  DriftResponse
// @Router   /admin/projection/verify [get]
func (h *AdminHandler) VerifyProjection(c *gin.Context) {
	drift, err := h.projection.Verify(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if drift == nil {
		drift = []ledger.Drift{}
	}
	c.JSON(http.StatusOK, DriftResponse{Drift: drift})
}
