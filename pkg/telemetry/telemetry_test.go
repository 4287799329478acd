package telemetry

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func resetGlobalConfig() {
	globalConfig = nil
	configOnce = sync.Once{}
}

func TestLoadFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("OTEL_ENABLED", "")
		t.Setenv("OTEL_SERVICE_NAME", "")
		t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "")

		cfg := LoadFromEnv()
		assert.False(t, cfg.Enabled)
		assert.Equal(t, DefaultServiceName, cfg.ServiceName)
		assert.Equal(t, "grpc", cfg.Protocol)
	})

	t.Run("custom", func(t *testing.T) {
		t.Setenv("OTEL_ENABLED", "TRUE")
		t.Setenv("OTEL_SERVICE_NAME", "scanner")
		t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "Authorization=Bearer t=1,X-Env=ci")
		t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")

		cfg := LoadFromEnv()
		assert.True(t, cfg.Enabled)
		assert.True(t, cfg.Insecure)
		assert.Equal(t, "scanner", cfg.ServiceName)
		assert.Equal(t, map[string]string{"Authorization": "Bearer t=1", "X-Env": "ci"}, cfg.Headers)
	})
}

func TestParseKeyValuePairs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"spaces", " a = 1 , b = 2 ", map[string]string{"a": "1", "b": "2"}},
		{"empty value", "k=", map[string]string{"k": ""}},
		{"invalid entries", "ok=1,bad,=x", map[string]string{"ok": "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseKeyValuePairs(tt.input))
		})
	}
}

func TestParseRatio(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"", 1}, {"0.25", 0.25}, {"-1", 0}, {"3", 1}, {"junk", 1},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRatio(tt.input))
		})
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		sampler string
		prefix  string
	}{
		{"", "AlwaysOnSampler"},
		{"always_off", "AlwaysOffSampler"},
		{"traceidratio", "TraceIDRatioBased"},
		{"parentbased_always_on", "ParentBased"},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			s := createSampler(&Config{Sampler: tt.sampler, SamplerArg: "0.5"})
			assert.Contains(t, s.Description(), tt.prefix)
		})
	}
}

func TestSplitEndpoint(t *testing.T) {
	host, plain := splitEndpoint("http://collector:4317")
	assert.Equal(t, "collector:4317", host)
	assert.True(t, plain)

	host, plain = splitEndpoint("https://collector:4317")
	assert.Equal(t, "collector:4317", host)
	assert.False(t, plain)
}

func TestPickIP(t *testing.T) {
	addrs := []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("fe80::1"), net.ParseIP("10.0.0.5")}
	assert.Equal(t, "10.0.0.5", pickIP(addrs))
	assert.Equal(t, "fe80::1", pickIP(addrs[:2]))
	assert.Empty(t, pickIP(addrs[:1]))
}

func TestInit_Disabled(t *testing.T) {
	resetGlobalConfig()
	t.Cleanup(resetGlobalConfig)
	t.Setenv("OTEL_ENABLED", "false")

	shutdown, err := Init(context.Background())
	require.NoError(t, err)
	assert.False(t, Enabled())
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartSpan(context.Background(), "scan", AttrScanOrder.String("bfs"))
	EndSpan(span, errors.New("boom"))

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "heapscan.scan", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Contains(t, ended[0].Attributes(), AttrScanOrder.String("bfs"))
}
