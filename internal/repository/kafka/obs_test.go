package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrierRoundTripsTraceContext(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03},
		SpanID:     trace.SpanID{0x0a},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	prop := propagation.TraceContext{}

	msg := kafka.Message{Headers: []kafka.Header{{Key: "source", Value: []byte("scraper")}}}
	prop.Inject(ctx, carrierFor(&msg.Headers))
	prop.Inject(ctx, carrierFor(&msg.Headers))

	assert.ElementsMatch(t, []string{"source", "traceparent"}, carrierFor(&msg.Headers).Keys())
	assert.Equal(t, "scraper", carrierFor(&msg.Headers).Get("source"))

	got := trace.SpanContextFromContext(prop.Extract(context.Background(), carrierFor(&msg.Headers)))
	require.True(t, got.IsValid())
	assert.Equal(t, sc.TraceID(), got.TraceID())
	assert.Equal(t, sc.SpanID(), got.SpanID())
}

func TestHeaderCarrierMissingKey(t *testing.T) {
	var hs []kafka.Header
	assert.Empty(t, carrierFor(&hs).Get("traceparent"))
	assert.Empty(t, carrierFor(&hs).Keys())
}
