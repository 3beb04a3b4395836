package setuplog

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TraceInfo holds the OTel identifiers captured when a run is created.
type TraceInfo struct {
	// TraceID is the W3C trace ID (32 lowercase hex chars). Empty when no
	// span is active in the context.
	TraceID string

	// SpanID is the W3C span ID (16 lowercase hex chars).
	SpanID string
}

// ExtractTraceInfo reads the active span from ctx and returns its trace and
// span ids as hex strings. With no active span (e.g. in unit tests) both
// fields are empty; callers store them as-is.
func ExtractTraceInfo(ctx context.Context) TraceInfo {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceInfo{}
	}
	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}
