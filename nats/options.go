package nats

import (
	"github.com/arloliu/otxray"
	"go.opentelemetry.io/otel/propagation"
)

const traceHeaderKey = otxray.TraceHeaderName

var otxrayPropagator = otxray.NewPropagator(nil)

// options holds configuration for the message wrappers.
type options struct {
	prop        propagation.TextMapPropagator
	stream      string // Override stream name for segments
	ackOnReturn bool
}

func defaultOptions() options {
	return options{}
}

// Option configures the message wrappers.
type Option func(*options)

// WithPropagator sets the propagator used to inject the trace header.
// If not set, the X-Ray propagator is used.
func WithPropagator(prop propagation.TextMapPropagator) Option {
	return func(o *options) {
		o.prop = prop
	}
}

// WithStream sets an explicit stream name for segment URLs and metadata.
// Use this when the stream name cannot be determined from message metadata.
func WithStream(stream string) Option {
	return func(o *options) {
		o.stream = stream
	}
}

// WithAckOnReturn acknowledges each message after the handler returns:
// Ack on success, Nak on error. Default is false, leaving
// acknowledgement to the handler.
func WithAckOnReturn(enabled bool) Option {
	return func(o *options) {
		o.ackOnReturn = enabled
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

func (o options) propagator() propagation.TextMapPropagator {
	if o.prop != nil {
		return o.prop
	}

	return otxrayPropagator
}
