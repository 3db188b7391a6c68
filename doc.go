// Package otxray records AWS X-Ray style segments for inbound requests and
// exports them through OpenTelemetry.
//
// # Overview
//
// Every inbound request gets exactly one [Segment]:
//   - trace context is read from the X-Amzn-Trace-Id header ([ParseTraceHeader])
//   - the segment is named ([ResolveName]) and sampled ([DecideSampling])
//   - it is bound to the request chain ([Recorder.Bind]) so downstream code finds it
//   - it is closed exactly once when the request finishes or the connection
//     goes away, and flagged by status code ([Classify])
//
// Closed, sampled segments go to an [Emitter]. The default [SpanEmitter]
// turns them into OpenTelemetry server spans that keep the X-Ray trace and
// segment IDs, exported by the configured OTLP or console exporter.
//
// # Quick Start
//
//	cfg, err := otxray.LoadConfig("xray.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rec, err := otxray.Setup(ctx, cfg, otxray.WithLogger(otxray.NewZapLogger(logger)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rec.Shutdown(ctx)
//
//	handler := otxhttp.Middleware(rec)(mux)
//
// Inside a handler:
//
//	_ = otxray.AddAnnotation(r.Context(), "hitController", true)
//
// # Modes
//
// In automatic mode (the default) the segment travels in the request's
// context.Context and [Current] returns it anywhere in the request chain,
// including goroutines started with [Recorder.Go]. In manual mode the
// segment is stored in the request [Bag]; [Current] panics and callers pass
// the segment explicitly with [ContextWithSegment].
//
// # Configuration
//
// Configure via YAML or environment variables:
//
//	enabled: true                 # XRAY_ENABLED
//	serviceName: "checkout"       # OTEL_SERVICE_NAME
//	segmentName: "checkout"       # XRAY_SEGMENT_NAME
//	automaticMode: true           # XRAY_AUTOMATIC_MODE
//	plugins: "host,ec2"           # XRAY_PLUGINS
//	sampling:
//	  sampler: "reservoir"        # OTEL_TRACES_SAMPLER
//	  samplerArg: 0.05            # OTEL_TRACES_SAMPLER_ARG
//	  reservoirPerSecond: 1       # XRAY_SAMPLING_RESERVOIR
//	otlp:
//	  endpoint: "collector:4317"  # OTEL_EXPORTER_OTLP_ENDPOINT
//
// # Adapters
//
// Sub-packages wire the recorder into host frameworks: http (net/http),
// gin, grpc and nats.
package otxray
