package otxray

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Emitter receives closed, sampled segments. It is the boundary to the
// trace submission transport; implementations must not block for long.
type Emitter interface {
	Emit(ctx context.Context, seg SegmentData)
}

// EmitterFunc adapts a function to [Emitter].
type EmitterFunc func(ctx context.Context, seg SegmentData)

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, seg SegmentData) { f(ctx, seg) }

// NopEmitter drops segments.
type NopEmitter struct{}

// Emit does nothing.
func (NopEmitter) Emit(context.Context, SegmentData) {}

// RecordingEmitter keeps emitted segments in memory.
type RecordingEmitter struct {
	mu       sync.Mutex
	segments []SegmentData
}

// Emit stores seg.
func (r *RecordingEmitter) Emit(_ context.Context, seg SegmentData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segments = append(r.segments, seg)
}

// Segments returns a copy of everything emitted so far.
func (r *RecordingEmitter) Segments() []SegmentData {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]SegmentData(nil), r.segments...)
}

// Reset forgets emitted segments.
func (r *RecordingEmitter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segments = nil
}

// SpanEmitter exports each segment as an OpenTelemetry server span. The span
// keeps the segment's trace and segment IDs when the TracerProvider was built
// with [IDGenerator] (as [NewTracerProvider] does).
type SpanEmitter struct {
	tracer trace.Tracer
}

// NewSpanEmitter creates a SpanEmitter. A nil provider uses the global one.
func NewSpanEmitter(tp trace.TracerProvider) *SpanEmitter {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &SpanEmitter{tracer: tp.Tracer(instrumentationName)}
}

// Emit starts and ends a span covering the segment's lifetime.
func (e *SpanEmitter) Emit(_ context.Context, seg SegmentData) {
	// The request context carries the segment's own span context, so the
	// span is parented explicitly from the segment's parent ID instead.
	parent := context.Background()
	if seg.ParentID != "" {
		var flags trace.TraceFlags
		if seg.Sampled {
			flags = trace.FlagsSampled
		}
		parent = trace.ContextWithRemoteSpanContext(parent, trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    otelTraceID(seg.TraceID),
			SpanID:     otelSpanID(seg.ParentID),
			TraceFlags: flags,
			Remote:     true,
		}))
	}
	parent = context.WithValue(parent, segmentIDsKey{}, segmentIDs{
		traceID: otelTraceID(seg.TraceID),
		spanID:  otelSpanID(seg.ID),
	})

	_, span := e.tracer.Start(parent, seg.Name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithTimestamp(seg.StartTime),
		trace.WithAttributes(segmentAttributes(seg)...),
	)

	for _, ex := range seg.Exceptions {
		span.AddEvent(semconv.ExceptionEventName, trace.WithAttributes(
			attribute.String("exception.id", ex.ID),
			attribute.String("exception.type", ex.Type),
			attribute.String("exception.message", ex.Message),
		))
	}
	if seg.Fault {
		span.SetStatus(codes.Error, fmt.Sprintf("fault: status %d", seg.HTTP.Response.Status))
	}

	span.End(trace.WithTimestamp(seg.EndTime))
}

func segmentAttributes(seg SegmentData) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("aws.xray.trace_id", seg.TraceID),
		attribute.Bool("aws.xray.error", seg.Error),
		attribute.Bool("aws.xray.fault", seg.Fault),
		attribute.Bool("aws.xray.throttle", seg.Throttle),
	}
	if seg.Origin != "" {
		attrs = append(attrs, attribute.String("aws.xray.origin", seg.Origin))
	}

	req := seg.HTTP.Request
	if req.Method != "" {
		attrs = append(attrs, semconv.HTTPRequestMethodKey.String(req.Method))
	}
	if req.URL != "" {
		attrs = append(attrs, semconv.URLFull(req.URL))
	}
	if req.UserAgent != "" {
		attrs = append(attrs, semconv.UserAgentOriginal(req.UserAgent))
	}
	if req.ClientIP != "" {
		attrs = append(attrs, semconv.ClientAddress(req.ClientIP))
	}
	if resp := seg.HTTP.Response; resp.Status != 0 {
		attrs = append(attrs,
			semconv.HTTPResponseStatusCode(resp.Status),
			semconv.HTTPResponseBodySize(int(resp.ContentLength)),
		)
	}

	for k, v := range seg.Annotations {
		attrs = append(attrs, annotationAttribute("aws.xray.annotations."+k, v))
	}
	for ns, values := range seg.Metadata {
		for k, v := range values {
			attrs = append(attrs, attribute.String("aws.xray.metadata."+ns+"."+k, encodeMetadata(v)))
		}
	}
	for plugin, values := range seg.AWS {
		attrs = append(attrs, attribute.String("aws.xray.aws."+plugin, encodeMetadata(values)))
	}

	return attrs
}

func annotationAttribute(key string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case bool:
		return attribute.Bool(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	case float32:
		return attribute.Float64(key, float64(val))
	default:
		return attribute.String(key, fmt.Sprint(val))
	}
}

func encodeMetadata(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}

	return string(b)
}

type segmentIDsKey struct{}

type segmentIDs struct {
	traceID trace.TraceID
	spanID  trace.SpanID
}

// IDGenerator is an sdktrace.IDGenerator that reuses segment identifiers for
// spans started by [SpanEmitter] and generates random IDs otherwise.
type IDGenerator struct{}

// NewIDs returns the segment's IDs for root segments, random IDs otherwise.
func (IDGenerator) NewIDs(ctx context.Context) (trace.TraceID, trace.SpanID) {
	if ids, ok := ctx.Value(segmentIDsKey{}).(segmentIDs); ok {
		return ids.traceID, ids.spanID
	}

	var tid trace.TraceID
	for !tid.IsValid() {
		_, _ = rand.Read(tid[:])
	}

	return tid, randomSpanID()
}

// NewSpanID returns the segment's ID when it belongs to traceID, a random ID otherwise.
func (IDGenerator) NewSpanID(ctx context.Context, traceID trace.TraceID) trace.SpanID {
	if ids, ok := ctx.Value(segmentIDsKey{}).(segmentIDs); ok && ids.traceID == traceID {
		return ids.spanID
	}

	return randomSpanID()
}

func randomSpanID() trace.SpanID {
	var sid trace.SpanID
	for !sid.IsValid() {
		_, _ = rand.Read(sid[:])
	}

	return sid
}
