package grpc

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/arloliu/otxray"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const inboundHeader = "Root=1-5759e988-bd862e3fe1be46a994272793;Parent=53995c3f42cd8ad8;Sampled=1"

func newTestRecorder(t *testing.T, opts ...otxray.Option) (*otxray.Recorder, *otxray.RecordingEmitter) {
	t.Helper()

	em := &otxray.RecordingEmitter{}
	opts = append([]otxray.Option{
		otxray.WithEmitter(em),
		otxray.WithSampler(otxray.SamplerFunc(func(otxray.SamplingRequest) bool { return true })),
		otxray.WithLogger(otxray.NopLogger()),
	}, opts...)

	rec, err := otxray.Setup(context.Background(), &otxray.Config{}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Shutdown(context.Background()) })

	return rec, em
}

// startHealthServer serves the gRPC health service over bufconn.
func startHealthServer(t *testing.T, serverOpts []grpc.ServerOption, dialOpts ...grpc.DialOption) (*health.Server, *grpc.ClientConn) {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer(serverOpts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	dialOpts = append([]grpc.DialOption{
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, dialOpts...)
	conn, err := grpc.NewClient("passthrough://bufnet", dialOpts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return hs, conn
}

func TestUnaryServerInterceptor_RecordsSegment(t *testing.T) {
	rec, em := newTestRecorder(t)

	var current *otxray.Segment
	capture := func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		current = otxray.Current(ctx)
		return handler(ctx, req)
	}
	_, conn := startHealthServer(t, []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(rec), capture),
	})

	ctx := metadata.AppendToOutgoingContext(context.Background(), traceMetadataKey, inboundHeader)
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	segs := em.Segments()
	require.Len(t, segs, 1)
	seg := segs[0]
	assert.Equal(t, "1-5759e988-bd862e3fe1be46a994272793", seg.TraceID)
	assert.Equal(t, "53995c3f42cd8ad8", seg.ParentID)
	assert.NotEmpty(t, seg.Name)
	assert.Contains(t, seg.HTTP.Request.URL, "/grpc.health.v1.Health/Check")
	assert.Equal(t, http.StatusOK, seg.HTTP.Response.Status)
	assert.False(t, seg.Error || seg.Fault)

	require.NotNil(t, current)
	assert.Equal(t, seg.ID, current.ID())
}

func TestUnaryServerInterceptor_StatusClassification(t *testing.T) {
	rec, em := newTestRecorder(t)
	_, conn := startHealthServer(t, ServerOptions(rec))

	_, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: "unknown"})
	require.Equal(t, codes.NotFound, status.Code(err))

	segs := em.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, http.StatusNotFound, segs[0].HTTP.Response.Status)
	assert.True(t, segs[0].Error)
	assert.Empty(t, segs[0].Exceptions, "404 drops error detail")
}

func TestUnaryServerInterceptor_EchoesRequestedDecision(t *testing.T) {
	rec, _ := newTestRecorder(t)
	_, conn := startHealthServer(t, ServerOptions(rec))

	ctx := metadata.AppendToOutgoingContext(context.Background(), traceMetadataKey,
		"Root=1-5759e988-bd862e3fe1be46a994272793;Sampled=?")
	var header metadata.MD
	_, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{}, grpc.Header(&header))
	require.NoError(t, err)

	assert.Equal(t, []string{"Root=1-5759e988-bd862e3fe1be46a994272793;Sampled=1"}, header.Get(traceMetadataKey))
}

func TestUnaryServerInterceptor_Panic(t *testing.T) {
	rec, em := newTestRecorder(t)

	interceptor := UnaryServerInterceptor(rec)
	info := &grpc.UnaryServerInfo{FullMethod: "/svc/Explode"}

	assert.PanicsWithValue(t, "boom", func() {
		_, _ = interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
			panic("boom")
		})
	})

	segs := em.Segments()
	require.Len(t, segs, 1)
	assert.True(t, segs[0].Fault)
	assert.Len(t, segs[0].Exceptions, 1)
}

func TestStreamServerInterceptor(t *testing.T) {
	rec, em := newTestRecorder(t)
	_, conn := startHealthServer(t, ServerOptions(rec))

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := healthpb.NewHealthClient(conn).Watch(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	resp, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	assert.Empty(t, em.Segments(), "segment stays open while streaming")

	cancel()
	require.Eventually(t, func() bool { return len(em.Segments()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, em.Segments()[0].HTTP.Request.URL, "/grpc.health.v1.Health/Watch")
}

func TestDialOptions_PropagatesHeader(t *testing.T) {
	rec, _ := newTestRecorder(t)

	var got string
	capture := func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		got = metadataCarrier(md).Get(traceMetadataKey)
		return handler(ctx, req)
	}
	_, conn := startHealthServer(t, []grpc.ServerOption{grpc.UnaryInterceptor(capture)}, DialOptions(rec)...)

	seg := otxray.NewSegment("caller", "", "", true)
	ctx := otxray.ContextWithSegment(context.Background(), seg)
	_, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)

	h := otxray.ParseTraceHeader(got)
	assert.Equal(t, seg.TraceID(), h.Root)
	assert.Equal(t, seg.ID(), h.Parent)
	assert.Equal(t, otxray.SampledTrue, h.Sampled)
}

func TestClientHandlerWithProviders_RecordsDownstreamSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	mp := noop.NewMeterProvider()

	var got string
	capture := func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		got = metadataCarrier(md).Get(traceMetadataKey)
		return handler(ctx, req)
	}
	_, conn := startHealthServer(t,
		[]grpc.ServerOption{grpc.UnaryInterceptor(capture)},
		grpc.WithStatsHandler(ClientHandlerWithProviders(tp, mp, nil)),
	)

	seg := otxray.NewSegment("caller", "", "", true)
	ctx := otxray.ContextWithSegment(context.Background(), seg)
	_, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(exporter.GetSpans()) == 1 }, time.Second, 5*time.Millisecond)
	span := exporter.GetSpans()[0]
	assert.Equal(t, seg.ID(), span.Parent.SpanID().String())

	h := otxray.ParseTraceHeader(got)
	assert.Equal(t, seg.TraceID(), h.Root)
	assert.Equal(t, span.SpanContext.SpanID().String(), h.Parent)
}

func TestServerHandlerWithProviders(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	rec, em := newTestRecorder(t)

	opts := append(ServerOptions(rec), grpc.StatsHandler(ServerHandlerWithProviders(tp, noop.NewMeterProvider(), nil)))
	_, conn := startHealthServer(t, opts)

	ctx := metadata.AppendToOutgoingContext(context.Background(), traceMetadataKey, inboundHeader)
	_, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)

	require.Len(t, em.Segments(), 1)
	require.Eventually(t, func() bool { return len(exporter.GetSpans()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "5759e988bd862e3fe1be46a994272793", exporter.GetSpans()[0].SpanContext.TraceID().String())
}

func TestHTTPStatusFromCode(t *testing.T) {
	cases := map[codes.Code]int{
		codes.OK:                http.StatusOK,
		codes.Canceled:          499,
		codes.InvalidArgument:   http.StatusBadRequest,
		codes.NotFound:          http.StatusNotFound,
		codes.PermissionDenied:  http.StatusForbidden,
		codes.ResourceExhausted: http.StatusTooManyRequests,
		codes.Unimplemented:     http.StatusNotImplemented,
		codes.Unavailable:       http.StatusServiceUnavailable,
		codes.DeadlineExceeded:  http.StatusGatewayTimeout,
		codes.Internal:          http.StatusInternalServerError,
		codes.Unknown:           http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatusFromCode(code), code.String())
	}

	assert.True(t, otxray.Classify(HTTPStatusFromCode(codes.ResourceExhausted)).Throttle)
}
