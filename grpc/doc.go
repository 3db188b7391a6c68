// Package grpc records X-Ray segments for gRPC servers and propagates the
// trace header to downstream gRPC calls.
//
// # gRPC Server
//
//	server := grpc.NewServer(otxgrpc.ServerOptions(rec)...)
//
// Each RPC gets a segment; the gRPC status code is mapped to an HTTP status
// (see [HTTPStatusFromCode]) for error, fault and throttle classification.
// Add [ServerHandler] as a stats handler to also record OTel spans.
//
// # gRPC Client
//
//	conn, err := grpc.NewClient(target, otxgrpc.DialOptions(rec)...)
package grpc
