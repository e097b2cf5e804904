package operations

import (
	"context"

	"directstock/internal/commands"
	"directstock/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ReserveStock earmarks available quantity on a stock line. Reservations never journal.
func (s *Service) ReserveStock(ctx context.Context, cmd commands.AdjustReservation) (*domain.StockLine, error) {
	return s.adjustReservation(ctx, "stock.reserve", cmd, s.ledger.Reserve)
}

// ReleaseStock returns reserved quantity to available
func (s *Service) ReleaseStock(ctx context.Context, cmd commands.AdjustReservation) (*domain.StockLine, error) {
	return s.adjustReservation(ctx, "stock.release", cmd, s.ledger.Release)
}

type reservationFn func(ctx context.Context, productID, binID string, quantity decimal.Decimal) (*domain.StockLine, error)

func (s *Service) adjustReservation(ctx context.Context, name string, cmd commands.AdjustReservation, apply reservationFn) (*domain.StockLine, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, name,
		attribute.String("product.id", cmd.ProductID),
		attribute.String("bin.id", cmd.BinID),
	)
	line, err := apply(ctx, cmd.ProductID, cmd.BinID, cmd.Quantity)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Stock reservation adjusted",
		zap.String("action", name),
		zap.String("product_id", cmd.ProductID),
		zap.String("bin_id", cmd.BinID),
		zap.String("quantity", cmd.Quantity.String()),
		zap.String("reserved", line.ReservedQuantity.String()))
	return line, nil
}
