package http

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/arloliu/otxray"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Transport wraps an http.RoundTripper so outbound calls carry the trace
// header of the current segment and are recorded as client spans.
//
// It uses the global TracerProvider and MeterProvider and the X-Ray,
// tracecontext and baggage propagators. If base is nil,
// http.DefaultTransport is used.
//
// Usage:
//
//	client := &http.Client{Transport: otxhttp.Transport(nil)}
func Transport(base http.RoundTripper, opts ...otelhttp.Option) http.RoundTripper {
	return TransportWithProviders(base, nil, nil, nil, opts...)
}

// TransportWithProviders is like [Transport] with explicit providers. Nil
// providers fall back to the global ones; a nil propagator falls back to
// [otxray.NewPropagator] with its defaults. A base that is the
// http.DefaultTransport instrumented by [Register] is unwrapped first, so
// calls are never recorded twice.
func TransportWithProviders(
	base http.RoundTripper,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	prop propagation.TextMapPropagator,
	opts ...otelhttp.Option,
) http.RoundTripper {
	base = uninstrumented(base)

	allOpts := append(buildProviderOptions(tp, mp, prop), opts...)

	return otelhttp.NewTransport(base, allOpts...)
}

func buildProviderOptions(
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	prop propagation.TextMapPropagator,
) []otelhttp.Option {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if prop == nil {
		prop = otxray.NewPropagator(nil)
	}

	return []otelhttp.Option{
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithMeterProvider(mp),
		otelhttp.WithPropagators(prop),
	}
}

// defaultCapture remembers http.DefaultTransport from before Register
// replaced it.
type defaultCapture struct {
	original http.RoundTripper
	wrapped  http.RoundTripper
}

var (
	captureDefaultOnce sync.Once
	capturedDefault    atomic.Pointer[defaultCapture]
)

// uninstrumented resolves a nil base to http.DefaultTransport and maps the
// transport installed by Register back to the one it wrapped.
func uninstrumented(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if c := capturedDefault.Load(); c != nil && base == c.wrapped {
		return c.original
	}

	return base
}

// Register wraps h with the segment middleware. When the recorder's config
// enables CaptureOutboundHTTP, http.DefaultTransport is instrumented as well
// (once per process), so calls made through http.DefaultClient propagate the
// trace header.
func Register(rec *otxray.Recorder, h http.Handler, opts ...Option) http.Handler {
	if rec.Config().CaptureOutboundHTTP {
		captureDefaultOnce.Do(func() {
			original := http.DefaultTransport
			wrapped := TransportWithProviders(original, nil, nil,
				otxray.NewPropagator(rec.Config().Propagation))
			capturedDefault.Store(&defaultCapture{original: original, wrapped: wrapped})
			http.DefaultTransport = wrapped
			rec.Logger().Debug("instrumented http.DefaultTransport")
		})
	}

	return Handler(rec, h, opts...)
}
