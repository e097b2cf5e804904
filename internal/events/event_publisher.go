package events

import (
	"context"
	"sync"
	"time"

	"directstock/internal/domain"

	"go.uber.org/zap"
)

// MovementPublisher delivers committed journal entries to downstream consumers
type MovementPublisher interface {
	Publish(ctx context.Context, entry domain.MovementEntry) error
	Close() error
}

// MovementRecordedEvent is the payload published for each committed journal entry
type MovementRecordedEvent struct {
	EntryID         string              `json:"entry_id"`
	MovementType    domain.MovementType `json:"movement_type"`
	ReferenceType   domain.DocumentKind `json:"reference_type"`
	ReferenceNumber string              `json:"reference_number"`
	ProductID       string              `json:"product_id"`
	FromBinID       *string             `json:"from_bin_id,omitempty"`
	ToBinID         *string             `json:"to_bin_id,omitempty"`
	Quantity        string              `json:"quantity"`
	Unit            string              `json:"unit"`
	PerformedBy     string              `json:"performed_by"`
	PerformedAt     time.Time           `json:"performed_at"`
	Metadata        domain.Metadata     `json:"metadata,omitempty"`
}

const eventTypeMovementRecorded = "MovementRecorded"

func NewMovementRecordedEvent(e domain.MovementEntry) MovementRecordedEvent {
	return MovementRecordedEvent{
		EntryID:         e.ID,
		MovementType:    e.MovementType,
		ReferenceType:   e.ReferenceType,
		ReferenceNumber: e.ReferenceNumber,
		ProductID:       e.ProductID,
		FromBinID:       e.FromBinID,
		ToBinID:         e.ToBinID,
		Quantity:        e.Quantity.String(),
		Unit:            e.Unit,
		PerformedBy:     e.PerformedBy,
		PerformedAt:     e.PerformedAt,
		Metadata:        e.Metadata,
	}
}

// InMemoryPublisher keeps published entries in process. Used when Kafka is disabled
// and in tests.
type InMemoryPublisher struct {
	mu     sync.Mutex
	events []MovementRecordedEvent
	limit  int
	logger *zap.Logger
}

// NewInMemoryPublisher retains at most limit events; limit <= 0 keeps everything
func NewInMemoryPublisher(limit int, logger *zap.Logger) *InMemoryPublisher {
	return &InMemoryPublisher{limit: limit, logger: logger}
}

func (p *InMemoryPublisher) Publish(ctx context.Context, entry domain.MovementEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, NewMovementRecordedEvent(entry))
	if p.limit > 0 && len(p.events) > p.limit {
		p.events = p.events[len(p.events)-p.limit:]
	}
	p.logger.Debug("Movement recorded in memory",
		zap.String("entry_id", entry.ID),
		zap.String("movement_type", string(entry.MovementType)),
	)
	return nil
}

// Events returns a copy of the retained events, oldest first
func (p *InMemoryPublisher) Events() []MovementRecordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]MovementRecordedEvent, len(p.events))
	copy(out, p.events)
	return out
}

func (p *InMemoryPublisher) Close() error { return nil }
