package idempotency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"directstock/internal/domain"
	"directstock/internal/store"

	"go.uber.org/zap"
)

// MaxOperationIDLength bounds client-supplied operation ids
const MaxOperationIDLength = 128

// insert attempts before giving up when the existing row keeps vanishing
const maxReserveAttempts = 3

// Outcome is the result of claiming an operation id
type Outcome int

const (
	// Proceed means the caller owns the reservation and must finalize or discard it
	Proceed Outcome = iota
	// Replay means a finished attempt exists; its stored response is returned verbatim
	Replay
	// Conflict means the id is in flight or was used for a different call
	Conflict
)

func (o Outcome) String() string {
	switch o {
	case Proceed:
		return "proceed"
	case Replay:
		return "replay"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Decision is returned by Reserve
type Decision struct {
	Outcome Outcome
	// Reservation is the stored row for Replay and Conflict
	Reservation *domain.Reservation
	// Err is the conflict to report when Outcome is Conflict
	Err error
}

// Log is the operation reservation log backed by the operation_reservations table
type Log struct {
	db     *store.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewLog(db *store.DB, logger *zap.Logger) *Log {
	return &Log{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// ValidateOperationID rejects blank and oversized ids
func ValidateOperationID(id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.NewFieldError("operation_id", "operation id must not be blank")
	}
	if len(id) > MaxOperationIDLength {
		return domain.NewValidationError("operation id is too long", map[string]any{
			"field":      "operation_id",
			"max_length": MaxOperationIDLength,
		})
	}
	return nil
}

// Reserve claims operationID for endpoint and method. The insert is committed on its
// own so that concurrent attempts with the same id serialize on the primary key.
func (l *Log) Reserve(ctx context.Context, operationID, endpoint, method string) (Decision, error) {
	if err := ValidateOperationID(operationID); err != nil {
		return Decision{}, err
	}

	for attempt := 0; attempt < maxReserveAttempts; attempt++ {
		now := l.now()
		_, err := l.db.Exec(ctx, `
			INSERT INTO operation_reservations (operation_id, endpoint, method, status_code, response_body, created_at, updated_at)
			VALUES (?, ?, ?, 0, NULL, ?, ?)`,
			operationID, endpoint, method, now, now)
		if err == nil {
			l.logger.Debug("Operation reserved",
				zap.String("operation_id", operationID),
				zap.String("endpoint", endpoint),
				zap.String("method", method),
			)
			return Decision{Outcome: Proceed}, nil
		}
		if !store.IsUniqueViolation(err) {
			return Decision{}, fmt.Errorf("failed to reserve operation: %w", err)
		}

		existing, err := l.Get(ctx, operationID)
		if err != nil {
			if domain.KindOf(err) == domain.KindNotFound {
				// Discarded between our insert and read
				continue
			}
			return Decision{}, err
		}
		return l.decide(existing, endpoint, method), nil
	}

	return Decision{}, fmt.Errorf("failed to reserve operation %s after %d attempts", operationID, maxReserveAttempts)
}

func (l *Log) decide(existing *domain.Reservation, endpoint, method string) Decision {
	if existing.Endpoint != endpoint || existing.Method != method {
		l.logger.Warn("Operation id reused for a different call",
			zap.String("operation_id", existing.OperationID),
			zap.String("existing_endpoint", existing.Endpoint),
			zap.String("request_endpoint", endpoint),
		)
		return Decision{
			Outcome:     Conflict,
			Reservation: existing,
			Err: domain.NewConflict("operation id already used for a different request", map[string]any{
				"operation_id":      existing.OperationID,
				"existing_endpoint": existing.Endpoint,
				"existing_method":   existing.Method,
				"request_endpoint":  endpoint,
				"request_method":    method,
			}),
		}
	}
	if existing.InFlight() {
		return Decision{
			Outcome:     Conflict,
			Reservation: existing,
			Err: domain.NewConflict("operation already in progress", map[string]any{
				"operation_id": existing.OperationID,
			}),
		}
	}
	return Decision{Outcome: Replay, Reservation: existing}
}

// Finalize stores the response of the attempt that owns the reservation. When ctx carries
// a transaction the write commits or rolls back with the business changes.
func (l *Log) Finalize(ctx context.Context, operationID string, statusCode int, body []byte) error {
	if statusCode <= 0 {
		return fmt.Errorf("invalid status code %d", statusCode)
	}
	if body == nil {
		body = []byte{}
	}
	res, err := l.db.Exec(ctx, `
		UPDATE operation_reservations
		SET status_code = ?, response_body = ?, updated_at = ?
		WHERE operation_id = ? AND status_code = 0`,
		statusCode, body, l.now(), operationID)
	if err != nil {
		return fmt.Errorf("failed to finalize operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finalize operation: %w", err)
	}
	if n == 0 {
		return domain.NewConflict("operation is not in flight", map[string]any{"operation_id": operationID})
	}
	return nil
}

// Discard removes an in-flight reservation so a retry with the same id starts clean
func (l *Log) Discard(ctx context.Context, operationID string) error {
	_, err := l.db.Exec(ctx, `DELETE FROM operation_reservations WHERE operation_id = ? AND status_code = 0`, operationID)
	if err != nil {
		return fmt.Errorf("failed to discard operation: %w", err)
	}
	l.logger.Debug("Operation reservation discarded", zap.String("operation_id", operationID))
	return nil
}

func (l *Log) Get(ctx context.Context, operationID string) (*domain.Reservation, error) {
	var r domain.Reservation
	err := l.db.Get(ctx, &r, `SELECT * FROM operation_reservations WHERE operation_id = ?`, operationID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domain.NewNotFound("operation", operationID)
		}
		return nil, fmt.Errorf("failed to load operation: %w", err)
	}
	return &r, nil
}

// Prune deletes finalized reservations last touched before cutoff
func (l *Log) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.Exec(ctx, `DELETE FROM operation_reservations WHERE status_code <> 0 AND updated_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune operations: %w", err)
	}
	return res.RowsAffected()
}

// ReleaseStale deletes in-flight reservations created before cutoff. This is an
// administrative repair for attempts whose process died before finishing.
func (l *Log) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.Exec(ctx, `DELETE FROM operation_reservations WHERE status_code = 0 AND created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to release stale operations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.logger.Warn("Released stale operation reservations", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}
