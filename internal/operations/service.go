package operations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"directstock/internal/catalog"
	"directstock/internal/domain"
	"directstock/internal/ledger"
	"directstock/internal/lots"
	"directstock/internal/serials"
	"directstock/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "directstock/operations"

// Service runs the movement orchestrators. Each completion runs in one transaction,
// joining the caller's transaction when ctx carries one.
type Service struct {
	db      *store.DB
	catalog *catalog.Repository
	ledger  *ledger.Ledger
	journal *ledger.Journal
	lots    *lots.Registry
	serials *serials.Registry
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Deps are the collaborators of Service
type Deps struct {
	DB      *store.DB
	Catalog *catalog.Repository
	Ledger  *ledger.Ledger
	Journal *ledger.Journal
	Lots    *lots.Registry
	Serials *serials.Registry
	Logger  *zap.Logger
}

func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:      d.DB,
		catalog: d.Catalog,
		ledger:  d.Ledger,
		journal: d.Journal,
		lots:    d.Lots,
		serials: d.Serials,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if kind := domain.KindOf(err); kind != "" {
			span.SetAttributes(attribute.String("error.kind", string(kind)))
		}
	}
	span.End()
}

// newNumber builds a human-readable document number, e.g. GR-20260115-3FA9C1
func (s *Service) newNumber(kind domain.DocumentKind) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("%s-%s-%s", kind.NumberPrefix(), s.now().Format("20060102"), suffix)
}

func performer(by string) string {
	if strings.TrimSpace(by) == "" {
		return "system"
	}
	return by
}

// checkTracking applies the product's batch and serial rules to one line
func checkTracking(product *domain.Product, quantity decimal.Decimal, batch *string, serialNumbers []string) error {
	if err := domain.CheckSerialQuantity(product, quantity, serialNumbers); err != nil {
		return err
	}
	if batch != nil && !product.RequiresBatch {
		return domain.NewValidationError("product is not batch tracked", map[string]any{
			"field":      "batch_number",
			"product_id": product.ID,
		})
	}
	return nil
}

// takeStock removes quantity from a bin: the named lot or FEFO lots for batch-tracked
// products, then the stock line checked against available quantity.
func (s *Service) takeStock(ctx context.Context, product *domain.Product, binID string, quantity decimal.Decimal, batch *string) ([]domain.BatchAllocation, error) {
	var allocations []domain.BatchAllocation
	if product.RequiresBatch {
		if batch != nil {
			a, err := s.lots.Withdraw(ctx, product.ID, binID, *batch, quantity)
			if err != nil {
				return nil, err
			}
			allocations = []domain.BatchAllocation{*a}
		} else {
			var err error
			allocations, err = s.lots.AllocateFefo(ctx, product.ID, binID, quantity)
			if err != nil {
				return nil, err
			}
		}
	}
	if _, err := s.ledger.Withdraw(ctx, product.ID, binID, quantity); err != nil {
		return nil, err
	}
	return allocations, nil
}

// putStock adds quantity to a bin and deposits the given lots. It returns the batches
// whose stored expiry differs from the deposited one.
func (s *Service) putStock(ctx context.Context, product *domain.Product, binID string, quantity decimal.Decimal, unit string, allocations []domain.BatchAllocation) ([]string, error) {
	if _, err := s.ledger.ApplyDelta(ctx, product.ID, binID, quantity, unit); err != nil {
		return nil, err
	}
	if !product.RequiresBatch {
		return nil, nil
	}
	var mismatched []string
	for _, a := range allocations {
		res, err := s.lots.Deposit(ctx, product.ID, binID, a.BatchNumber, a.Quantity, a.ExpiryDate)
		if err != nil {
			return nil, err
		}
		if res.ExpiryMismatch {
			mismatched = append(mismatched, a.BatchNumber)
		}
	}
	return mismatched, nil
}

func movementMetadata(allocations []domain.BatchAllocation, serialNumbers []string) domain.Metadata {
	m := domain.Metadata{}
	if len(allocations) > 0 {
		m["batch_allocations"] = allocations
	}
	if len(serialNumbers) > 0 {
		m["serial_numbers"] = serialNumbers
	}
	return m
}

// sliceAllocations returns the part of allocations that lies after the first skip
// units and spans at most take units, preserving order.
func sliceAllocations(allocations []domain.BatchAllocation, skip, take decimal.Decimal) []domain.BatchAllocation {
	var out []domain.BatchAllocation
	for _, a := range allocations {
		if !take.IsPositive() {
			break
		}
		q := a.Quantity
		if skip.IsPositive() {
			used := decimal.Min(skip, q)
			skip = skip.Sub(used)
			q = q.Sub(used)
		}
		if !q.IsPositive() {
			continue
		}
		part := decimal.Min(q, take)
		out = append(out, domain.BatchAllocation{BatchNumber: a.BatchNumber, Quantity: part, ExpiryDate: a.ExpiryDate})
		take = take.Sub(part)
	}
	return out
}

func strPtr(s string) *string { return &s }
