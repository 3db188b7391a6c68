package nats

import (
	"context"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/propagation"
)

// headerCarrier adapts nats.Header to propagation.TextMapCarrier.
type headerCarrier nats.Header

var _ propagation.TextMapCarrier = headerCarrier{}

// Get returns the first value for key, or "" if absent.
func (c headerCarrier) Get(key string) string {
	return nats.Header(c).Get(key)
}

// Set stores the key-value pair in the NATS headers.
func (c headerCarrier) Set(key, value string) {
	nats.Header(c).Set(key, value)
}

// Keys returns all keys in the NATS headers.
func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}

	return keys
}

// InjectHeader writes the trace header of the segment in ctx into the message
// headers. If msg.Header is nil, it is initialized first.
// If prop is nil, the X-Ray propagator is used.
func InjectHeader(ctx context.Context, msg *nats.Msg, prop propagation.TextMapPropagator) {
	if msg.Header == nil {
		msg.Header = make(nats.Header)
	}

	if prop == nil {
		prop = otxrayPropagator
	}

	prop.Inject(ctx, headerCarrier(msg.Header))
}

// TraceHeader returns the raw X-Amzn-Trace-Id value of a message header.
func TraceHeader(header nats.Header) string {
	if header == nil {
		return ""
	}

	return headerCarrier(header).Get(traceHeaderKey)
}
