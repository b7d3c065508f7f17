package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerProviderDisabled(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, tp)
	assert.NoError(t, Shutdown(context.Background(), tp))

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
}

func TestInitTracerProviderRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := InitTracerProvider(context.Background(), Config{Enabled: true, ServiceName: "serpforge-test"}, recorder)
	require.NoError(t, err)
	require.NotNil(t, tp)
	t.Cleanup(func() { _ = Shutdown(context.Background(), tp) })

	ctx, span := otel.Tracer("test").Start(context.Background(), "search")
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "search", ended[0].Name())
	assert.Contains(t, carrier.Get("traceparent"), span.SpanContext().TraceID().String())

	var found bool
	for _, kv := range ended[0].Resource().Attributes() {
		if kv.Key == "service.name" {
			found = kv.Value.AsString() == "serpforge-test"
		}
	}
	assert.True(t, found)
}

func TestSamplerBounds(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}
