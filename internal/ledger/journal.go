package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"directstock/internal/domain"
	"directstock/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Listener is told about each journal entry once its transaction has committed
type Listener interface {
	MovementCommitted(ctx context.Context, entry domain.MovementEntry)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(ctx context.Context, entry domain.MovementEntry)

func (f ListenerFunc) MovementCommitted(ctx context.Context, entry domain.MovementEntry) {
	f(ctx, entry)
}

// Journal is the append-only movement log
type Journal struct {
	db        *store.DB
	logger    *zap.Logger
	now       func() time.Time
	mu        sync.RWMutex
	listeners []Listener
}

func NewJournal(db *store.DB, logger *zap.Logger) *Journal {
	return &Journal{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Subscribe registers a listener for committed entries
func (j *Journal) Subscribe(l Listener) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.listeners = append(j.listeners, l)
}

// Append writes one entry. Listeners are notified after the surrounding transaction
// commits, never for rolled back work.
func (j *Journal) Append(ctx context.Context, entry *domain.MovementEntry) error {
	if entry.FromBinID == nil && entry.ToBinID == nil {
		return fmt.Errorf("movement entry needs a source or destination bin")
	}
	if !entry.Quantity.IsPositive() {
		return fmt.Errorf("movement entry quantity must be positive, got %s", entry.Quantity)
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.PerformedAt.IsZero() {
		entry.PerformedAt = j.now()
	}
	if entry.Metadata == nil {
		entry.Metadata = domain.Metadata{}
	}

	_, err := j.db.NamedExec(ctx, `
		INSERT INTO movement_entries (id, movement_type, reference_type, reference_number, product_id,
			from_bin_id, to_bin_id, quantity, unit, performed_by, performed_at, metadata)
		VALUES (:id, :movement_type, :reference_type, :reference_number, :product_id,
			:from_bin_id, :to_bin_id, :quantity, :unit, :performed_by, :performed_at, :metadata)`, entry)
	if err != nil {
		return fmt.Errorf("failed to append movement entry: %w", err)
	}

	committed := *entry
	store.AfterCommit(ctx, func() {
		j.notify(context.WithoutCancel(ctx), committed)
	})
	return nil
}

func (j *Journal) notify(ctx context.Context, entry domain.MovementEntry) {
	j.mu.RLock()
	listeners := append([]Listener(nil), j.listeners...)
	j.mu.RUnlock()

	for _, l := range listeners {
		l.MovementCommitted(ctx, entry)
	}
}

// MovementFilter narrows List; empty fields are ignored
type MovementFilter struct {
	ProductID       string
	BinID           string
	MovementType    domain.MovementType
	ReferenceNumber string
	Limit           int
	Offset          int
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// List returns entries newest first
func (j *Journal) List(ctx context.Context, f MovementFilter) ([]domain.MovementEntry, error) {
	query := `SELECT * FROM movement_entries`
	var where []string
	var args []any
	if f.ProductID != "" {
		where = append(where, "product_id = ?")
		args = append(args, f.ProductID)
	}
	if f.BinID != "" {
		where = append(where, "(from_bin_id = ? OR to_bin_id = ?)")
		args = append(args, f.BinID, f.BinID)
	}
	if f.MovementType != "" {
		where = append(where, "movement_type = ?")
		args = append(args, f.MovementType)
	}
	if f.ReferenceNumber != "" {
		where = append(where, "reference_number = ?")
		args = append(args, f.ReferenceNumber)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	query += " ORDER BY performed_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	entries := []domain.MovementEntry{}
	if err := j.db.Select(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list movement entries: %w", err)
	}
	return entries, nil
}

// ForReference returns the entries a document produced, oldest first
func (j *Journal) ForReference(ctx context.Context, kind domain.DocumentKind, number string) ([]domain.MovementEntry, error) {
	entries := []domain.MovementEntry{}
	err := j.db.Select(ctx, &entries,
		`SELECT * FROM movement_entries WHERE reference_type = ? AND reference_number = ? ORDER BY performed_at, id`,
		kind, number)
	if err != nil {
		return nil, fmt.Errorf("failed to list movement entries: %w", err)
	}
	return entries, nil
}

// All streams the whole journal in append order
func (j *Journal) All(ctx context.Context) ([]domain.MovementEntry, error) {
	entries := []domain.MovementEntry{}
	if err := j.db.Select(ctx, &entries, `SELECT * FROM movement_entries ORDER BY performed_at, id`); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return entries, nil
}
