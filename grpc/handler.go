package grpc

import (
	"github.com/arloliu/otxray"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/stats"
)

// ServerHandler returns an otelgrpc stats.Handler for server spans, using the
// global providers and the X-Ray aware propagator.
//
// It complements [UnaryServerInterceptor]: the interceptors record the
// segment, the handler records OTel spans nested under it.
func ServerHandler(opts ...otelgrpc.Option) stats.Handler {
	return ServerHandlerWithProviders(nil, nil, nil, opts...)
}

// ServerHandlerWithProviders is like [ServerHandler] with explicit providers.
// Nil providers fall back to the global ones; a nil propagator falls back to
// [otxray.NewPropagator] with its defaults.
func ServerHandlerWithProviders(
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	prop propagation.TextMapPropagator,
	opts ...otelgrpc.Option,
) stats.Handler {
	return otelgrpc.NewServerHandler(append(buildProviderOptions(tp, mp, prop), opts...)...)
}

// ClientHandler returns an otelgrpc stats.Handler that records client spans
// for downstream calls and injects the trace header.
func ClientHandler(opts ...otelgrpc.Option) stats.Handler {
	return ClientHandlerWithProviders(nil, nil, nil, opts...)
}

// ClientHandlerWithProviders is like [ClientHandler] with explicit providers.
func ClientHandlerWithProviders(
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	prop propagation.TextMapPropagator,
	opts ...otelgrpc.Option,
) stats.Handler {
	return otelgrpc.NewClientHandler(append(buildProviderOptions(tp, mp, prop), opts...)...)
}

func buildProviderOptions(
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	prop propagation.TextMapPropagator,
) []otelgrpc.Option {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if prop == nil {
		prop = otxray.NewPropagator(nil)
	}

	return []otelgrpc.Option{
		otelgrpc.WithTracerProvider(tp),
		otelgrpc.WithMeterProvider(mp),
		otelgrpc.WithPropagators(prop),
	}
}
