//revive:disable:line-length-limit
package otxray

import (
	"slices"
	"strings"
	"time"
)

const defaultPropagators = "xray,tracecontext,baggage"

// Config configures segment recording and the OpenTelemetry pipeline that
// closed segments are exported through.
//
// Environment variable names follow the OTel specification where one exists:
// https://opentelemetry.io/docs/specs/otel/configuration/sdk-environment-variables/
// X-Ray specific knobs use the XRAY_ prefix.
type Config struct {
	// Enabled controls whether segments are exported through OTel providers.
	// Segments are still created and closed when disabled; they go to a no-op emitter.
	Enabled *bool `yaml:"enabled" default:"false" env:"XRAY_ENABLED"`

	// ServiceName identifies the service in exported telemetry.
	// Maps to OTEL_SERVICE_NAME.
	ServiceName string `yaml:"serviceName" env:"OTEL_SERVICE_NAME" validate:"required_if=Enabled true"`

	// Version is the service version, used in the service.version resource attribute.
	Version string `yaml:"version" env:"OTEL_SERVICE_VERSION"`

	// Environment is the deployment environment (e.g., production, development).
	Environment string `yaml:"environment" env:"OTEL_DEPLOYMENT_ENVIRONMENT" default:"development"`

	// ResourceAttributes contains additional resource attributes.
	// Maps to OTEL_RESOURCE_ATTRIBUTES (comma-separated key=value pairs).
	ResourceAttributes map[string]string `yaml:"resourceAttributes,omitempty" env:"OTEL_RESOURCE_ATTRIBUTES"`

	// SegmentName overrides segment naming. When empty the Host header is
	// used, then a name derived from the binary's build info.
	SegmentName string `yaml:"segmentName" env:"XRAY_SEGMENT_NAME"`

	// AutomaticMode selects implicit context propagation (true) or explicit
	// segment passing through the request bag (false).
	AutomaticMode *bool `yaml:"automaticMode" env:"XRAY_AUTOMATIC_MODE" default:"true"`

	// CaptureOutboundHTTP instruments http.DefaultTransport when the HTTP
	// adapter is registered.
	CaptureOutboundHTTP bool `yaml:"captureOutboundHTTP" env:"XRAY_CAPTURE_OUTBOUND_HTTP" default:"false"`

	// CaptureDownstreamCalls instruments outbound gRPC calls made through
	// connections built with the grpc adapter's DialOptions.
	CaptureDownstreamCalls bool `yaml:"captureDownstreamCalls" env:"XRAY_CAPTURE_DOWNSTREAM_CALLS" default:"false"`

	// CaptureAsync makes Recorder.Go detach goroutines from request
	// cancellation while keeping the segment, and record their panics.
	CaptureAsync *bool `yaml:"captureAsync" env:"XRAY_CAPTURE_ASYNC" default:"true"`

	// Plugins is a comma-separated list of metadata plugins: "host", "ec2", "ecs".
	Plugins string `yaml:"plugins" env:"XRAY_PLUGINS"`

	// Sampling configures the sampler consulted when the inbound header
	// carries no decision.
	Sampling *SamplingConfig `yaml:"sampling,omitempty"`

	// OTLP contains shared OTLP exporter settings used by all signals.
	OTLP *OTLPConfig `yaml:"otlp,omitempty"`

	// Traces configures the exporter closed segments are sent to.
	Traces *TracesConfig `yaml:"traces,omitempty"`

	// Logs configures the OTel log bridge used by NewOTelLogger.
	Logs *LogsConfig `yaml:"logs,omitempty"`

	// Metrics configures segment metrics export.
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`

	// Propagation configures the propagators installed globally.
	Propagation *PropConfig `yaml:"propagation,omitempty"`
}

// OTLPConfig contains shared OTLP exporter settings.
type OTLPConfig struct {
	// Endpoint is the OTLP collector endpoint.
	// Maps to OTEL_EXPORTER_OTLP_ENDPOINT.
	//
	// gRPC takes "host:port"; HTTP takes a full URL with scheme.
	Endpoint string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`

	// Insecure disables TLS for the OTLP connection.
	Insecure *bool `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`

	// Headers adds custom headers to OTLP requests.
	// Avoid logging this value, as it may contain sensitive credentials.
	Headers map[string]string `yaml:"headers,omitempty" env:"OTEL_EXPORTER_OTLP_HEADERS"`

	// Protocol is one of "grpc", "http/protobuf", "http".
	Protocol string `yaml:"protocol" env:"OTEL_EXPORTER_OTLP_PROTOCOL" default:"grpc" validate:"oneof=grpc http/protobuf http"`

	// Timeout is the timeout for exporter operations.
	Timeout time.Duration `yaml:"timeout" env:"OTEL_EXPORTER_OTLP_TIMEOUT" default:"10s" validate:"gte=0"`

	// Compression is "gzip" or "none".
	Compression string `yaml:"compression,omitempty" env:"OTEL_EXPORTER_OTLP_COMPRESSION" validate:"omitempty,oneof=gzip none"`
}

// IsInsecure returns true if insecure connection is enabled.
func (c *OTLPConfig) IsInsecure() bool {
	return c == nil || c.Insecure == nil || *c.Insecure
}

// TracesConfig configures segment export.
type TracesConfig struct {
	// Enabled controls whether segment export is active. Defaults to true if parent is enabled.
	Enabled *bool `yaml:"enabled" default:"true"`

	// Exporter is one of "otlp", "console", "stdout", "none".
	// Maps to OTEL_TRACES_EXPORTER.
	Exporter string `yaml:"exporter" env:"OTEL_TRACES_EXPORTER" default:"otlp" validate:"oneof=otlp console stdout none"`

	// Endpoint overrides OTLP.Endpoint for traces.
	Endpoint string `yaml:"endpoint,omitempty" env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
}

// IsEnabled returns true if segment export is enabled.
func (c *TracesConfig) IsEnabled() bool {
	return c == nil || c.Enabled == nil || *c.Enabled
}

// LogsConfig configures the OTel log bridge.
type LogsConfig struct {
	// Enabled controls whether OTel log export is active. Opt-in.
	Enabled *bool `yaml:"enabled" default:"false"`

	// Exporter is one of "otlp", "console", "stdout", "none".
	// Maps to OTEL_LOGS_EXPORTER.
	Exporter string `yaml:"exporter" env:"OTEL_LOGS_EXPORTER" default:"otlp" validate:"oneof=otlp console stdout none"`

	// Endpoint overrides OTLP.Endpoint for logs.
	Endpoint string `yaml:"endpoint,omitempty" env:"OTEL_EXPORTER_OTLP_LOGS_ENDPOINT"`
}

// IsEnabled returns true if OTel log export is enabled.
func (c *LogsConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// MetricsConfig configures segment metrics export.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active. Opt-in.
	Enabled *bool `yaml:"enabled" default:"false"`

	// Exporter is one of "otlp", "console", "stdout", "none".
	// Maps to OTEL_METRICS_EXPORTER.
	Exporter string `yaml:"exporter" env:"OTEL_METRICS_EXPORTER" default:"otlp" validate:"oneof=otlp console stdout none"`

	// Endpoint overrides OTLP.Endpoint for metrics.
	Endpoint string `yaml:"endpoint,omitempty" env:"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"`

	// Interval is the export interval of the periodic reader.
	// Maps to OTEL_METRIC_EXPORT_INTERVAL (milliseconds if numeric).
	Interval time.Duration `yaml:"interval,omitempty" env:"OTEL_METRIC_EXPORT_INTERVAL" default:"60s" validate:"omitempty,gt=0"`
}

// IsEnabled returns true if metrics collection is enabled.
func (c *MetricsConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// SamplingConfig configures the local sampler.
type SamplingConfig struct {
	// Sampler is one of "always_on", "always_off", "traceidratio", "reservoir".
	// The parentbased_* OTel names are accepted as aliases of their root
	// sampler, since an inbound decision always wins anyway.
	// Maps to OTEL_TRACES_SAMPLER.
	Sampler string `yaml:"sampler" env:"OTEL_TRACES_SAMPLER" default:"reservoir" validate:"oneof=always_on always_off traceidratio reservoir parentbased_always_on parentbased_always_off parentbased_traceidratio"`

	// SamplerArg is the fixed sampling rate in [0, 1] for "traceidratio" and
	// for requests beyond the reservoir of "reservoir".
	// Maps to OTEL_TRACES_SAMPLER_ARG.
	SamplerArg float64 `yaml:"samplerArg" env:"OTEL_TRACES_SAMPLER_ARG" default:"0.05" validate:"gte=0,lte=1"`

	// ReservoirPerSecond is the number of requests per second sampled
	// unconditionally by the "reservoir" sampler.
	ReservoirPerSecond int `yaml:"reservoirPerSecond" env:"XRAY_SAMPLING_RESERVOIR" default:"1" validate:"gte=0"`
}

// PropConfig configures context propagation.
type PropConfig struct {
	// Propagators is a comma-separated list of "xray", "tracecontext",
	// "baggage" or "none". Maps to OTEL_PROPAGATORS.
	Propagators string `yaml:"propagators" env:"OTEL_PROPAGATORS" default:"xray,tracecontext,baggage"`
}

// Has reports whether the named propagator is enabled.
func (c *PropConfig) Has(name string) bool {
	if c == nil || c.Propagators == "" {
		return slices.Contains(splitList(defaultPropagators), name)
	}

	return slices.Contains(splitList(c.Propagators), name)
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(list string) []string {
	if list == "" {
		return nil
	}

	var result []string
	for p := range strings.SplitSeq(list, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}

	return result
}

// IsEnabled returns true if export is enabled.
// Defaults to false if nil.
func (c *Config) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// IsAutomaticMode reports whether automatic context propagation is selected.
// Defaults to true.
func (c *Config) IsAutomaticMode() bool {
	return c == nil || c.AutomaticMode == nil || *c.AutomaticMode
}

// IsCaptureAsync reports whether Recorder.Go detaches and instruments goroutines.
// Defaults to true.
func (c *Config) IsCaptureAsync() bool {
	return c == nil || c.CaptureAsync == nil || *c.CaptureAsync
}

// PluginNames returns the configured plugin names.
func (c *Config) PluginNames() []string {
	if c == nil {
		return nil
	}

	return splitList(c.Plugins)
}

// GetTracesExporter returns the effective traces exporter type.
func (c *Config) GetTracesExporter() string {
	if c != nil && c.Traces != nil && c.Traces.Exporter != "" {
		return c.Traces.Exporter
	}

	return "otlp"
}

// GetOTLPEndpoint returns the effective OTLP endpoint for traces.
// Priority: Traces.Endpoint > OTLP.Endpoint > default.
func (c *Config) GetOTLPEndpoint() string {
	if c == nil {
		return "localhost:4317"
	}
	if c.Traces != nil && c.Traces.Endpoint != "" {
		return c.Traces.Endpoint
	}
	if c.OTLP != nil && c.OTLP.Endpoint != "" {
		return c.OTLP.Endpoint
	}

	return "localhost:4317"
}

// GetOTLPConfig returns the shared OTLP config, never nil.
func (c *Config) GetOTLPConfig() *OTLPConfig {
	if c == nil || c.OTLP == nil {
		return &OTLPConfig{}
	}

	return c.OTLP
}

// boolPtr returns a pointer to the given boolean value.
func boolPtr(v bool) *bool { return &v }
