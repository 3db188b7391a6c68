package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/otxray"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func headerEchoServer(t *testing.T) (*httptest.Server, *string) {
	t.Helper()

	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(otxray.TraceHeaderName)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	return server, &got
}

func TestTransport_PropagatesSegmentHeader(t *testing.T) {
	server, got := headerEchoServer(t)

	seg := otxray.NewSegment("orders", "1-5759e988-bd862e3fe1be46a994272793", "", true)
	ctx := otxray.ContextWithSegment(context.Background(), seg)

	client := &http.Client{Transport: Transport(nil)}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	h := otxray.ParseTraceHeader(*got)
	assert.Equal(t, seg.TraceID(), h.Root)
	assert.Equal(t, otxray.SampledTrue, h.Sampled)
	assert.NotEmpty(t, h.Parent)
}

func TestTransportWithProviders_ClientSpanNestsUnderSegment(t *testing.T) {
	server, got := headerEchoServer(t)

	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))

	seg := otxray.NewSegment("orders", "", "", true)
	ctx := otxray.ContextWithSegment(context.Background(), seg)

	client := &http.Client{Transport: TransportWithProviders(nil, tp, noop.NewMeterProvider(), nil)}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET", spans[0].Name)
	assert.Equal(t, seg.ID(), spans[0].Parent.SpanID().String())

	h := otxray.ParseTraceHeader(*got)
	assert.Equal(t, seg.TraceID(), h.Root)
	assert.Equal(t, spans[0].SpanContext.SpanID().String(), h.Parent)
}

func TestTransport_NoSegmentNoHeader(t *testing.T) {
	server, got := headerEchoServer(t)

	client := &http.Client{Transport: Transport(nil)}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Empty(t, *got)
}

// resetDefaultCapture lets a test run Register's capture again and puts
// http.DefaultTransport back afterwards.
func resetDefaultCapture(t *testing.T) {
	t.Helper()

	original := http.DefaultTransport
	captureDefaultOnce = sync.Once{}
	capturedDefault.Store(nil)
	t.Cleanup(func() {
		http.DefaultTransport = original
		captureDefaultOnce = sync.Once{}
		capturedDefault.Store(nil)
	})
}

func TestRegister_CapturesDefaultTransport(t *testing.T) {
	resetDefaultCapture(t)

	rec, em := newTestRecorder(t)
	rec.Config().CaptureOutboundHTTP = true

	h := Register(rec, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	_, ok := http.DefaultTransport.(*otelhttp.Transport)
	assert.True(t, ok)

	serveOnce(h, httptest.NewRequest(http.MethodGet, "/", nil))
	segs := em.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, http.StatusAccepted, segs[0].HTTP.Response.Status)
}

func TestRegister_ClientsAfterCaptureRecordOnce(t *testing.T) {
	resetDefaultCapture(t)
	server, _ := headerEchoServer(t)

	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	prevTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prevTP) })

	rec, _ := newTestRecorder(t)
	rec.Config().CaptureOutboundHTTP = true
	Register(rec, http.NotFoundHandler())
	require.IsType(t, &otelhttp.Transport{}, http.DefaultTransport)

	base, ok := buildTransport(&clientConfig{dialTimeout: time.Second}).(*http.Transport)
	require.True(t, ok, "capture must not hide the underlying *http.Transport")
	assert.NotSame(t, http.DefaultTransport, base)

	resp, err := NewClient(WithDialTimeout(time.Second)).Get(server.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Len(t, exporter.GetSpans(), 1)

	exporter.Reset()
	resp, err = http.DefaultClient.Get(server.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Len(t, exporter.GetSpans(), 1)
}
