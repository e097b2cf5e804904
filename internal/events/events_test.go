package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"directstock/internal/domain"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func sampleEntry() domain.MovementEntry {
	bin := "bin-a"
	return domain.MovementEntry{
		ID:              "entry-1",
		MovementType:    domain.MovementGoodsIssue,
		ReferenceType:   domain.DocumentGoodsIssue,
		ReferenceNumber: "GI-20250101-ABC123",
		ProductID:       "prod-1",
		FromBinID:       &bin,
		Quantity:        decimal.RequireFromString("2.5"),
		Unit:            "kg",
		PerformedBy:     "picker",
		PerformedAt:     time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		Metadata:        domain.Metadata{"customer_ref": "C-9"},
	}
}

func header(msg *sarama.ProducerMessage, key string) string {
	return headerCarrier{msg: msg}.Get(key)
}

func TestKafkaPublisher_BuildMessage(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	p := newKafkaPublisher(nil, "inventory.movements", zap.NewNop())

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	msg, err := p.buildMessage(ctx, sampleEntry())
	require.NoError(t, err)

	assert.Equal(t, "inventory.movements", msg.Topic)
	key, _ := msg.Key.Encode()
	assert.Equal(t, "prod-1", string(key))
	assert.Equal(t, eventTypeMovementRecorded, header(msg, "event-type"))
	assert.Equal(t, "goods_issue", header(msg, "movement-type"))
	assert.Contains(t, header(msg, "traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")

	raw, _ := msg.Value.Encode()
	var ev MovementRecordedEvent
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, "2.5", ev.Quantity)
	assert.Equal(t, "bin-a", *ev.FromBinID)
	assert.Nil(t, ev.ToBinID)
}

func TestKafkaPublisher_RetriesThenSucceeds(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)
	producer.ExpectSendMessageAndSucceed()

	p := newKafkaPublisher(producer, "inventory.movements", zap.NewNop())
	p.baseDelay = time.Millisecond

	require.NoError(t, p.Publish(context.Background(), sampleEntry()))
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_GivesUp(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	for i := 0; i < 3; i++ {
		producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	}

	p := newKafkaPublisher(producer, "inventory.movements", zap.NewNop())
	p.baseDelay = time.Millisecond

	err := p.Publish(context.Background(), sampleEntry())
	assert.ErrorContains(t, err, "after 3 attempts")
	require.NoError(t, p.Close())
}

func TestInMemoryPublisher_Limit(t *testing.T) {
	p := NewInMemoryPublisher(2, zap.NewNop())
	for _, id := range []string{"a", "b", "c"} {
		e := sampleEntry()
		e.ID = id
		require.NoError(t, p.Publish(context.Background(), e))
	}
	got := p.Events()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].EntryID)
	assert.Equal(t, "c", got[1].EntryID)
}

type failingPublisher struct {
	InMemoryPublisher
	fail bool
}

func (p *failingPublisher) Publish(ctx context.Context, e domain.MovementEntry) error {
	if p.fail {
		return errors.New("broker down")
	}
	return p.InMemoryPublisher.Publish(ctx, e)
}

func TestForwarder_DeliversAndDrainsOnClose(t *testing.T) {
	pub := NewInMemoryPublisher(0, zap.NewNop())
	f := NewForwarder(pub, 8, zap.NewNop())

	for _, id := range []string{"a", "b", "c"} {
		e := sampleEntry()
		e.ID = id
		f.MovementCommitted(context.Background(), e)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.Close(ctx))

	got := pub.Events()
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].EntryID)
}

func TestForwarder_PublishFailureDoesNotStopWorker(t *testing.T) {
	pub := &failingPublisher{InMemoryPublisher: InMemoryPublisher{logger: zap.NewNop()}, fail: true}
	f := NewForwarder(pub, 8, zap.NewNop())

	f.MovementCommitted(context.Background(), sampleEntry())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.Close(ctx))
	assert.Empty(t, pub.Events())
}

func TestForwarder_CommitAfterCloseIsDropped(t *testing.T) {
	pub := NewInMemoryPublisher(0, zap.NewNop())
	f := NewForwarder(pub, 8, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.Close(ctx))

	assert.NotPanics(t, func() {
		f.MovementCommitted(context.Background(), sampleEntry())
	})
	require.NoError(t, f.Close(ctx))
	assert.Empty(t, pub.Events())
}

func TestForwarder_CommitRacingClose(t *testing.T) {
	pub := NewInMemoryPublisher(0, zap.NewNop())
	f := NewForwarder(pub, 4, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				f.MovementCommitted(context.Background(), sampleEntry())
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.Close(ctx))
	wg.Wait()
}
