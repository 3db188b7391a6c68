package otxray

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// knownPropagators lists the propagator names understood in PropConfig.
var knownPropagators = map[string]bool{
	"tracecontext": true,
	"baggage":      true,
	"xray":         true,
	"none":         true,
}

// Propagator is an OpenTelemetry TextMapPropagator for the X-Amzn-Trace-Id header.
//
// Inject prefers the X-Ray trace ID of the segment bound to the context so
// that roots which are not OTel-convertible still round-trip unchanged.
type Propagator struct{}

var _ propagation.TextMapPropagator = Propagator{}

// Inject writes the trace header for the active span (or segment) in ctx.
func (Propagator) Inject(ctx context.Context, carrier propagation.TextMapCarrier) {
	seg := FromContext(ctx)
	sc := trace.SpanContextFromContext(ctx)

	if !sc.IsValid() {
		if seg != nil {
			carrier.Set(TraceHeaderName, seg.DownstreamHeader().String())
		}

		return
	}

	root := xrayTraceID(sc.TraceID())
	if seg != nil && otelTraceID(seg.TraceID()) == sc.TraceID() {
		root = seg.TraceID()
	}

	h := TraceHeader{
		Root:    root,
		Parent:  sc.SpanID().String(),
		Sampled: decisionOf(sc.IsSampled()),
	}
	carrier.Set(TraceHeaderName, h.String())
}

// Extract reads the trace header into a remote span context.
// Headers without both a root and a parent leave ctx unchanged.
func (Propagator) Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	h := ParseTraceHeader(carrier.Get(TraceHeaderName))
	if h.Root == "" || h.Parent == "" {
		return ctx
	}

	var flags trace.TraceFlags
	if h.Sampled == SampledTrue {
		flags = trace.FlagsSampled
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    otelTraceID(h.Root),
		SpanID:     otelSpanID(h.Parent),
		TraceFlags: flags,
		Remote:     true,
	})
	if !sc.IsValid() {
		return ctx
	}

	return trace.ContextWithRemoteSpanContext(ctx, sc)
}

// Fields returns the header names this propagator uses.
func (Propagator) Fields() []string {
	return []string{TraceHeaderName}
}

// buildPropagator creates a composite propagator from configuration.
// Unknown names are reported through otel.Handle and ignored.
func buildPropagator(cfg *PropConfig) propagation.TextMapPropagator {
	if cfg == nil {
		cfg = &PropConfig{Propagators: defaultPropagators}
	}

	for _, name := range splitList(cfg.Propagators) {
		if !knownPropagators[name] {
			otel.Handle(errors.New("otxray: unknown propagator \"" + name + "\", ignoring"))
		}
	}

	var propagators []propagation.TextMapPropagator
	if cfg.Has("xray") {
		propagators = append(propagators, Propagator{})
	}
	if cfg.Has("tracecontext") {
		propagators = append(propagators, propagation.TraceContext{})
	}
	if cfg.Has("baggage") {
		propagators = append(propagators, propagation.Baggage{})
	}

	return propagation.NewCompositeTextMapPropagator(propagators...)
}

// NewPropagator returns the propagator described by cfg, defaulting to
// "xray,tracecontext,baggage".
func NewPropagator(cfg *PropConfig) propagation.TextMapPropagator {
	return buildPropagator(cfg)
}

// segmentSpanContext converts a segment's identifiers into an OTel span context.
func segmentSpanContext(seg *Segment) trace.SpanContext {
	var flags trace.TraceFlags
	if seg.Sampled() {
		flags = trace.FlagsSampled
	}

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    otelTraceID(seg.TraceID()),
		SpanID:     otelSpanID(seg.ID()),
		TraceFlags: flags,
		Remote:     true,
	})
}

// otelTraceID converts "1-<8 hex>-<24 hex>" into a 128 bit trace ID. Roots in
// any other shape are hashed so the mapping stays deterministic.
func otelTraceID(root string) trace.TraceID {
	if parts := strings.Split(root, "-"); len(parts) == 3 && parts[0] == "1" &&
		len(parts[1]) == 8 && len(parts[2]) == 24 {
		if id, err := trace.TraceIDFromHex(parts[1] + parts[2]); err == nil {
			return id
		}
	}

	var id trace.TraceID
	sum := sha256.Sum256([]byte(root))
	copy(id[:], sum[:len(id)])

	return id
}

// otelSpanID converts a 16 hex character segment ID, hashing anything else.
func otelSpanID(id string) trace.SpanID {
	if sid, err := trace.SpanIDFromHex(id); err == nil {
		return sid
	}

	var sid trace.SpanID
	sum := sha256.Sum256([]byte(id))
	copy(sid[:], sum[:len(sid)])

	return sid
}

// xrayTraceID formats a 128 bit trace ID as an X-Ray root.
func xrayTraceID(id trace.TraceID) string {
	h := hex.EncodeToString(id[:])

	return "1-" + h[:8] + "-" + h[8:]
}
