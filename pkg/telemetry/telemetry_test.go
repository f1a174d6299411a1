package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder() (*tracetest.SpanRecorder, *OTel) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, NewOTel(tp)
}

func attrs(kv []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(kv))
	for _, a := range kv {
		out[string(a.Key)] = a.Value
	}
	return out
}

func TestOTel_Statistics(t *testing.T) {
	sr, m := newRecorder()
	m.Statistics("A*res", true, "3")

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "effects.statistics", spans[0].Name())
	a := attrs(spans[0].Attributes())
	assert.Equal(t, "A*res", a["effects.resource_id"].AsString())
	assert.True(t, a["effects.compressed_texture"].AsBool())
	assert.Equal(t, "3", a["effects.gles_version"].AsString())
}

func TestOTel_Error(t *testing.T) {
	sr, m := newRecorder()
	m.Error("A*res", "runtime_error", "gl context lost")

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "effects.error", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "gl context lost", spans[0].Status().Description)
	assert.Equal(t, "runtime_error", attrs(spans[0].Attributes())["effects.error_kind"].AsString())
}

func TestNop(t *testing.T) {
	var m Monitor = Nop{}
	m.Statistics("r", false, "2")
	m.Error("r", "k", "m")
}

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := Setup(context.Background(), "effects-test", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address so no export happens.
	shutdown, err := Setup(context.Background(), "effects-test", "http://192.0.2.1:4318")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
