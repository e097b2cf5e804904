package middleware

import (
	"bytes"
	"context"
	"net/http"

	"directstock/internal/idempotency"
	"directstock/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReplayHeader marks a response served from the reservation log
const ReplayHeader = "X-Idempotent-Replay"

// IdempotencyMiddleware binds mutating requests that carry an operation id to the
// reservation log. The handler runs inside one transaction carried in the request
// context; the stored response is written in that same transaction, so a retry either
// replays the exact bytes of a committed attempt or finds no trace of a failed one.
// Handlers signal business failures with c.Error; such attempts are rolled back and
// their reservation discarded.
func IdempotencyMiddleware(db *store.DB, log *idempotency.Log, header string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		operationID := c.GetHeader(header)
		if operationID == "" {
			c.Next()
			return
		}

		baseCtx := c.Request.Context()
		endpoint := c.Request.URL.Path
		decision, err := log.Reserve(baseCtx, operationID, endpoint, c.Request.Method)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		switch decision.Outcome {
		case idempotency.Replay:
			logger.Info("Replaying stored response",
				zap.String("operation_id", operationID),
				zap.String("path", endpoint),
				zap.Int("status", decision.Reservation.StatusCode),
			)
			c.Header(ReplayHeader, "true")
			c.Data(decision.Reservation.StatusCode, "application/json; charset=utf-8", decision.Reservation.ResponseBody)
			c.Abort()
			return
		case idempotency.Conflict:
			_ = c.Error(decision.Err)
			c.Abort()
			return
		}

		discard := func() {
			if err := log.Discard(context.WithoutCancel(baseCtx), operationID); err != nil {
				logger.Error("Failed to discard operation reservation",
					zap.String("operation_id", operationID),
					zap.Error(err),
				)
			}
		}

		tx, err := db.Begin(baseCtx)
		if err != nil {
			discard()
			_ = c.Error(err)
			c.Abort()
			return
		}

		original := c.Writer
		buffered := &bufferedWriter{ResponseWriter: original}
		c.Writer = buffered
		c.Request = c.Request.WithContext(store.ContextWithTx(baseCtx, tx))

		finished := false
		defer func() {
			if finished {
				return
			}
			// Handler panicked; leave no trace and let recovery render the 500
			_ = tx.Rollback()
			discard()
			c.Writer = original
		}()

		c.Next()

		c.Writer = original
		c.Request = c.Request.WithContext(baseCtx)

		if len(c.Errors) > 0 {
			finished = true
			if err := tx.Rollback(); err != nil {
				logger.Warn("Rollback failed", zap.String("operation_id", operationID), zap.Error(err))
			}
			discard()
			buffered.flushTo(original)
			return
		}

		status := buffered.Status()
		body := buffered.body.Bytes()
		txCtx := store.ContextWithTx(baseCtx, tx)
		if err := log.Finalize(txCtx, operationID, status, body); err != nil {
			finished = true
			_ = tx.Rollback()
			discard()
			_ = c.Error(err)
			return
		}
		if err := tx.Commit(); err != nil {
			finished = true
			discard()
			_ = c.Error(err)
			return
		}
		finished = true

		logger.Debug("Operation finalized",
			zap.String("operation_id", operationID),
			zap.String("path", endpoint),
			zap.Int("status", status),
		)
		buffered.flushTo(original)
	}
}

// bufferedWriter holds the status and body until the transaction outcome is known
type bufferedWriter struct {
	gin.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() {}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

func (w *bufferedWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *bufferedWriter) Size() int {
	if w.status == 0 && w.body.Len() == 0 {
		return -1
	}
	return w.body.Len()
}

func (w *bufferedWriter) Written() bool {
	return w.status != 0 || w.body.Len() > 0
}

func (w *bufferedWriter) flushTo(dst gin.ResponseWriter) {
	if !w.Written() {
		return
	}
	dst.WriteHeader(w.Status())
	if w.body.Len() > 0 {
		_, _ = dst.Write(w.body.Bytes())
	} else {
		dst.WriteHeaderNow()
	}
}
