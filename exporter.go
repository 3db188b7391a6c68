package otxray

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type signal int

const (
	signalTraces signal = iota
	signalMetrics
	signalLogs
)

// exporterParams holds the resolved settings for one signal's exporter.
type exporterParams struct {
	Type        string // otlp, console, nop
	Protocol    string // grpc, http/protobuf
	Endpoint    string
	Headers     map[string]string
	Timeout     time.Duration
	Compression string
	Insecure    bool
}

// resolveExporterParams merges the shared OTLP block with the per-signal
// overrides. Per-signal endpoints win over the shared one.
func resolveExporterParams(cfg *Config, sig signal) exporterParams {
	otlp := cfg.GetOTLPConfig()
	params := exporterParams{
		Type:        "otlp",
		Protocol:    "grpc",
		Endpoint:    "localhost:4317",
		Timeout:     10 * time.Second,
		Headers:     otlp.Headers,
		Compression: otlp.Compression,
		Insecure:    otlp.IsInsecure(),
	}
	if otlp.Endpoint != "" {
		params.Endpoint = otlp.Endpoint
	}
	if otlp.Protocol != "" {
		params.Protocol = otlp.Protocol
	}
	if otlp.Timeout > 0 {
		params.Timeout = normalizeDuration(otlp.Timeout)
	}

	var exporter, endpoint string
	switch sig {
	case signalTraces:
		exporter = cfg.GetTracesExporter()
		if cfg != nil && cfg.Traces != nil {
			endpoint = cfg.Traces.Endpoint
		}
	case signalMetrics:
		if cfg != nil && cfg.Metrics != nil {
			exporter, endpoint = cfg.Metrics.Exporter, cfg.Metrics.Endpoint
		}
	case signalLogs:
		if cfg != nil && cfg.Logs != nil {
			exporter, endpoint = cfg.Logs.Exporter, cfg.Logs.Endpoint
		}
	}
	if exporter != "" {
		params.Type = exporter
	}
	if endpoint != "" {
		params.Endpoint = endpoint
	}
	params.Type = normalizeExporterType(params.Type)

	return params
}

func isHTTPProtocol(protocol string) bool {
	return protocol == "http/protobuf" || protocol == "http"
}

type nopSpanExporter struct{}

func (nopSpanExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (nopSpanExporter) Shutdown(context.Context) error                             { return nil }

// buildTraceExporter creates the exporter closed segments are sent through.
func buildTraceExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	params := resolveExporterParams(cfg, signalTraces)

	switch params.Type {
	case "console":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "none", "nop":
		return nopSpanExporter{}, nil
	}

	if isHTTPProtocol(params.Protocol) {
		opts := buildHTTPOptions(params,
			otlptracehttp.WithEndpoint,
			otlptracehttp.WithEndpointURL,
			otlptracehttp.WithHeaders,
			otlptracehttp.WithTimeout,
			otlptracehttp.WithInsecure,
			func() otlptracehttp.Option { return otlptracehttp.WithCompression(otlptracehttp.GzipCompression) },
		)

		return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	}

	opts := buildGRPCOptions(params,
		otlptracegrpc.WithEndpoint,
		otlptracegrpc.WithHeaders,
		otlptracegrpc.WithTimeout,
		otlptracegrpc.WithInsecure,
		func() otlptracegrpc.Option { return otlptracegrpc.WithCompressor("gzip") },
	)

	return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
}

type nopLogExporter struct{}

func (nopLogExporter) Export(context.Context, []sdklog.Record) error { return nil }
func (nopLogExporter) Shutdown(context.Context) error                { return nil }
func (nopLogExporter) ForceFlush(context.Context) error              { return nil }

// buildLogExporter creates the exporter for the OTel log bridge.
func buildLogExporter(ctx context.Context, cfg *Config) (sdklog.Exporter, error) {
	params := resolveExporterParams(cfg, signalLogs)

	switch params.Type {
	case "console":
		return stdoutlog.New(stdoutlog.WithPrettyPrint())
	case "none", "nop":
		return nopLogExporter{}, nil
	}

	if isHTTPProtocol(params.Protocol) {
		return otlploghttp.New(ctx, buildHTTPOptions(params,
			otlploghttp.WithEndpoint,
			otlploghttp.WithEndpointURL,
			otlploghttp.WithHeaders,
			otlploghttp.WithTimeout,
			otlploghttp.WithInsecure,
			func() otlploghttp.Option { return otlploghttp.WithCompression(otlploghttp.GzipCompression) },
		)...)
	}

	return otlploggrpc.New(ctx, buildGRPCOptions(params,
		otlploggrpc.WithEndpoint,
		otlploggrpc.WithHeaders,
		otlploggrpc.WithTimeout,
		otlploggrpc.WithInsecure,
		func() otlploggrpc.Option { return otlploggrpc.WithCompressor("gzip") },
	)...)
}

type nopMetricExporter struct{}

func (nopMetricExporter) Export(context.Context, *metricdata.ResourceMetrics) error { return nil }
func (nopMetricExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (nopMetricExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}
func (nopMetricExporter) ForceFlush(context.Context) error { return nil }
func (nopMetricExporter) Shutdown(context.Context) error   { return nil }

// buildMetricExporter creates the exporter for segment metrics.
func buildMetricExporter(ctx context.Context, cfg *Config) (sdkmetric.Exporter, error) {
	params := resolveExporterParams(cfg, signalMetrics)

	switch params.Type {
	case "console":
		return stdoutmetric.New(stdoutmetric.WithPrettyPrint())
	case "none", "nop":
		return nopMetricExporter{}, nil
	}

	if isHTTPProtocol(params.Protocol) {
		return otlpmetrichttp.New(ctx, buildHTTPOptions(params,
			otlpmetrichttp.WithEndpoint,
			otlpmetrichttp.WithEndpointURL,
			otlpmetrichttp.WithHeaders,
			otlpmetrichttp.WithTimeout,
			otlpmetrichttp.WithInsecure,
			func() otlpmetrichttp.Option { return otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression) },
		)...)
	}

	return otlpmetricgrpc.New(ctx, buildGRPCOptions(params,
		otlpmetricgrpc.WithEndpoint,
		otlpmetricgrpc.WithHeaders,
		otlpmetricgrpc.WithTimeout,
		otlpmetricgrpc.WithInsecure,
		func() otlpmetricgrpc.Option { return otlpmetricgrpc.WithCompressor("gzip") },
	)...)
}

func normalizeExporterType(value string) string {
	switch v := strings.ToLower(strings.TrimSpace(value)); v {
	case "":
		return "otlp"
	case "stdout":
		return "console"
	case "noop":
		return "nop"
	default:
		return v
	}
}

// normalizeDuration reads sub-millisecond values as milliseconds, since
// numeric OTel env vars are specified in milliseconds.
func normalizeDuration(value time.Duration) time.Duration {
	if value > 0 && value < time.Millisecond {
		//nolint:durationcheck // numeric env values are milliseconds
		return value * time.Millisecond
	}

	return value
}

func isURLEndpoint(endpoint string) bool {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}

func buildHTTPOptions[T any](
	params exporterParams,
	withEndpoint func(string) T,
	withEndpointURL func(string) T,
	withHeaders func(map[string]string) T,
	withTimeout func(time.Duration) T,
	withInsecure func() T,
	withCompression func() T,
) []T {
	var opts []T
	if isURLEndpoint(params.Endpoint) {
		opts = append(opts, withEndpointURL(params.Endpoint))
	} else {
		opts = append(opts, withEndpoint(params.Endpoint))
	}

	return appendCommonOptions(opts, params, withHeaders, withTimeout, withInsecure, withCompression)
}

func buildGRPCOptions[T any](
	params exporterParams,
	withEndpoint func(string) T,
	withHeaders func(map[string]string) T,
	withTimeout func(time.Duration) T,
	withInsecure func() T,
	withCompression func() T,
) []T {
	opts := []T{withEndpoint(params.Endpoint)}

	return appendCommonOptions(opts, params, withHeaders, withTimeout, withInsecure, withCompression)
}

func appendCommonOptions[T any](
	opts []T,
	params exporterParams,
	withHeaders func(map[string]string) T,
	withTimeout func(time.Duration) T,
	withInsecure func() T,
	withCompression func() T,
) []T {
	if len(params.Headers) > 0 {
		opts = append(opts, withHeaders(params.Headers))
	}
	if params.Timeout > 0 {
		opts = append(opts, withTimeout(params.Timeout))
	}
	if params.Insecure {
		opts = append(opts, withInsecure())
	}
	if params.Compression == "gzip" {
		opts = append(opts, withCompression())
	}

	return opts
}
