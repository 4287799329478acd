package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/heapscan"

// Span attribute keys.
const (
	AttrSnapshotPath = attribute.Key("heapscan.snapshot.path")
	AttrNumObjects   = attribute.Key("heapscan.snapshot.objects")
	AttrNumClasses   = attribute.Key("heapscan.snapshot.classes")
	AttrScanOrder    = attribute.Key("heapscan.scan.order")
	AttrOverhead     = attribute.Key("heapscan.overhead.bytes")
)

// Tracer returns the heapscan tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan starts a span named "heapscan.<name>".
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "heapscan."+name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
