package operations

import (
	"context"
	"fmt"

	"directstock/internal/domain"
	"directstock/internal/store"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// transition runs fn in one transaction under a span named after the document action
func (s *Service) transition(ctx context.Context, kind domain.DocumentKind, action, id string, fn func(ctx context.Context) error) error {
	ctx, span := s.startSpan(ctx, string(kind)+"."+action,
		attribute.String("document.kind", string(kind)),
		attribute.String("document.id", id),
	)
	err := s.db.WithinTx(ctx, fn)
	endSpan(span, err)
	return err
}

// loadHeader reads a document row, locking it on drivers that support row locks
func (s *Service) loadHeader(ctx context.Context, dest any, table string, kind domain.DocumentKind, id string, lock bool) error {
	query := "SELECT * FROM " + table + " WHERE id = ?"
	if lock {
		query += s.db.ForUpdate()
	}
	if err := s.db.Get(ctx, dest, query, id); err != nil {
		if store.IsNotFound(err) {
			return domain.NewNotFound(string(kind), id)
		}
		return fmt.Errorf("failed to load %s: %w", kind, err)
	}
	return nil
}

func (s *Service) loadItems(ctx context.Context, dest any, table, parentColumn, parentID string) error {
	query := "SELECT * FROM " + table + " WHERE " + parentColumn + " = ? ORDER BY created_at, id"
	if err := s.db.Select(ctx, dest, query, parentID); err != nil {
		return fmt.Errorf("failed to load %s: %w", table, err)
	}
	return nil
}

// productSet memoizes product lookups for the duration of one transition
type productSet struct {
	s     *Service
	cache map[string]*domain.Product
}

func (s *Service) products() *productSet {
	return &productSet{s: s, cache: map[string]*domain.Product{}}
}

func (p *productSet) get(ctx context.Context, id string) (*domain.Product, error) {
	if prod, ok := p.cache[id]; ok {
		return prod, nil
	}
	prod, err := p.s.catalog.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	p.cache[id] = prod
	return prod, nil
}

func requireItems(kind domain.DocumentKind, id string, count int) error {
	if count == 0 {
		return domain.NewValidationError("document has no items", map[string]any{
			"entity": string(kind),
			"id":     id,
		})
	}
	return nil
}

func (s *Service) logTransition(kind domain.DocumentKind, action, id, number string, items int) {
	s.logger.Info("Document "+action,
		zap.String("kind", string(kind)),
		zap.String("document_id", id),
		zap.String("number", number),
		zap.Int("items", items),
	)
}
