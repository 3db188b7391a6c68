package grpc

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/arloliu/otxray"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor records a segment for every unary RPC.
//
// The trace header is read from the x-amzn-trace-id metadata key. The
// returned gRPC status is mapped with [HTTPStatusFromCode] to classify the
// segment; a panicking handler is recorded as a 500 and the panic propagated.
func UnaryServerInterceptor(rec *otxray.Recorder) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		ctx, seg := beginRPC(ctx, rec, info.FullMethod)
		defer closeRPC(ctx, rec, seg, &err)

		return handler(ctx, req)
	}
}

// StreamServerInterceptor records a segment for every streaming RPC. The
// segment stays open until the handler returns.
func StreamServerInterceptor(rec *otxray.Recorder) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		ctx, seg := beginRPC(ss.Context(), rec, info.FullMethod)
		defer closeRPC(ctx, rec, seg, &err)

		return handler(srv, &boundStream{ServerStream: ss, ctx: ctx})
	}
}

// ServerOptions returns the interceptors as server options.
func ServerOptions(rec *otxray.Recorder) []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(rec)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(rec)),
	}
}

type boundStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *boundStream) Context() context.Context { return s.ctx }

func beginRPC(ctx context.Context, rec *otxray.Recorder, fullMethod string) (context.Context, *otxray.Segment) {
	md, _ := metadata.FromIncomingContext(ctx)
	carrier := metadataCarrier(md)

	authority := carrier.Get(":authority")
	in := otxray.IncomingRequest{
		TraceHeader: carrier.Get(traceMetadataKey),
		Host:        hostOnly(authority),
		Method:      http.MethodPost,
		URL:         "grpc://" + authority + fullMethod,
		UserAgent:   carrier.Get("user-agent"),
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		in.ClientIP = hostOnly(p.Addr.String())
	}

	seg, h := rec.Begin(ctx, in)
	if echo, ok := otxray.ResponseTraceHeader(h, seg); ok {
		if err := grpc.SetHeader(ctx, metadata.Pairs(traceMetadataKey, echo.String())); err != nil {
			rec.Logger().Debug("set trace response header", "error", err)
		}
	}

	return rec.Bind(ctx, seg), seg
}

func closeRPC(ctx context.Context, rec *otxray.Recorder, seg *otxray.Segment, errp *error) {
	if p := recover(); p != nil {
		rec.Close(ctx, seg, otxray.Completion{
			Status: http.StatusInternalServerError,
			Err:    fmt.Errorf("panic: %v", p),
		})
		panic(p)
	}

	c := otxray.Completion{Status: HTTPStatusFromCode(status.Code(*errp))}
	if *errp != nil {
		c.Err = *errp
	}
	rec.Close(ctx, seg, c)
}

func hostOnly(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}

	return hostport
}

// UnaryClientInterceptor adds the trace header of the current segment to
// outgoing unary calls.
func UnaryClientInterceptor(prop propagation.TextMapPropagator) grpc.UnaryClientInterceptor {
	if prop == nil {
		prop = otxray.NewPropagator(nil)
	}

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(injectOutgoing(ctx, prop), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor adds the trace header of the current segment to
// outgoing streams.
func StreamClientInterceptor(prop propagation.TextMapPropagator) grpc.StreamClientInterceptor {
	if prop == nil {
		prop = otxray.NewPropagator(nil)
	}

	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(injectOutgoing(ctx, prop), desc, cc, method, opts...)
	}
}

func injectOutgoing(ctx context.Context, prop propagation.TextMapPropagator) context.Context {
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.MD{}
	}
	prop.Inject(ctx, metadataCarrier(md))

	return metadata.NewOutgoingContext(ctx, md)
}

// DialOptions returns the client options for calls made on behalf of a
// segment. With CaptureDownstreamCalls enabled the calls are recorded as
// OTel client spans (which carry the header); otherwise only the header is
// propagated.
func DialOptions(rec *otxray.Recorder) []grpc.DialOption {
	prop := otxray.NewPropagator(rec.Config().Propagation)
	if rec.Config().CaptureDownstreamCalls {
		return []grpc.DialOption{grpc.WithStatsHandler(ClientHandlerWithProviders(nil, nil, prop))}
	}

	return []grpc.DialOption{
		grpc.WithChainUnaryInterceptor(UnaryClientInterceptor(prop)),
		grpc.WithChainStreamInterceptor(StreamClientInterceptor(prop)),
	}
}
