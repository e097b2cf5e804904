package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

func TestSetupTracing_WithoutExporter(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TracingConfig{}, zap.NewNop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, shutdown(context.Background())) }()

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	assert.NotEmpty(t, carrier.Get("traceparent"))
}
