package http

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type clientConfig struct {
	timeout             time.Duration
	dialTimeout         time.Duration
	maxIdleConnsPerHost int
	idleConnTimeout     time.Duration
	baseTransport       http.RoundTripper
}

// ClientOption configures an HTTP client.
type ClientOption func(*clientConfig)

// WithTimeout sets the client request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.timeout = d }
}

// WithDialTimeout sets the TCP dial timeout.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.dialTimeout = d }
}

// WithMaxIdleConnsPerHost sets the idle connections kept per host.
func WithMaxIdleConnsPerHost(n int) ClientOption {
	return func(c *clientConfig) { c.maxIdleConnsPerHost = n }
}

// WithIdleConnTimeout sets how long an idle connection stays open.
func WithIdleConnTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.idleConnTimeout = d }
}

// WithTransport sets the base transport. Transport settings above are only
// applied when it is an *http.Transport.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *clientConfig) { c.baseTransport = rt }
}

// NewClient creates an http.Client whose calls carry the current segment's
// trace header downstream.
//
// Usage:
//
//	client := otxhttp.NewClient(otxhttp.WithTimeout(5 * time.Second))
//	req, _ := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
//	resp, err := client.Do(req)
func NewClient(opts ...ClientOption) *http.Client {
	return NewClientWithProviders(nil, nil, nil, opts...)
}

// NewClientWithProviders is like [NewClient] with explicit providers.
func NewClientWithProviders(
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	prop propagation.TextMapPropagator,
	opts ...ClientOption,
) *http.Client {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return &http.Client{
		Transport: TransportWithProviders(buildTransport(cfg), tp, mp, prop),
		Timeout:   cfg.timeout,
	}
}

func buildTransport(c *clientConfig) http.RoundTripper {
	base := uninstrumented(c.baseTransport)
	t, ok := base.(*http.Transport)
	if !ok {
		return base
	}
	transport := t.Clone()

	if c.dialTimeout > 0 {
		transport.DialContext = (&net.Dialer{
			Timeout:   c.dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}
	if c.maxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = c.maxIdleConnsPerHost
	}
	if c.idleConnTimeout > 0 {
		transport.IdleConnTimeout = c.idleConnTimeout
	}

	return transport
}
