package otxray

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type opt struct {
	kind string
	val  string
}

func TestNormalizeExporterType(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: "otlp"},
		{name: "stdout", input: "stdout", want: "console"},
		{name: "noop", input: "noop", want: "nop"},
		{name: "mixed case", input: "OTLP", want: "otlp"},
		{name: "passthrough", input: "console", want: "console"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeExporterType(tt.input))
		})
	}
}

func TestNormalizeDuration(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, normalizeDuration(500))
	assert.Equal(t, 2*time.Second, normalizeDuration(2*time.Second))
	assert.Equal(t, time.Duration(0), normalizeDuration(0))
}

func TestIsURLEndpoint(t *testing.T) {
	assert.True(t, isURLEndpoint("http://localhost:4318/v1/traces"))
	assert.True(t, isURLEndpoint("HTTPS://collector.example.com"))
	assert.False(t, isURLEndpoint("localhost:4317"))
	assert.False(t, isURLEndpoint("collector:4317"))
}

func TestResolveExporterParams_Defaults(t *testing.T) {
	params := resolveExporterParams(&Config{}, signalTraces)

	assert.Equal(t, "otlp", params.Type)
	assert.Equal(t, "grpc", params.Protocol)
	assert.Equal(t, "localhost:4317", params.Endpoint)
	assert.Equal(t, 10*time.Second, params.Timeout)
	assert.True(t, params.Insecure)
}

func TestResolveExporterParams_Overrides(t *testing.T) {
	cfg := &Config{
		OTLP: &OTLPConfig{
			Endpoint:    "http://collector:4318",
			Protocol:    "http/protobuf",
			Insecure:    boolPtr(false),
			Headers:     map[string]string{"x-api-key": "secret"},
			Timeout:     3 * time.Second,
			Compression: "gzip",
		},
		Traces:  &TracesConfig{Exporter: "stdout", Endpoint: "http://traces:4318/v1/traces"},
		Metrics: &MetricsConfig{Exporter: "none"},
		Logs:    &LogsConfig{Endpoint: "http://logs:4318/v1/logs"},
	}

	traces := resolveExporterParams(cfg, signalTraces)
	assert.Equal(t, "console", traces.Type)
	assert.Equal(t, "http://traces:4318/v1/traces", traces.Endpoint)
	assert.Equal(t, "http/protobuf", traces.Protocol)
	assert.False(t, traces.Insecure)
	assert.Equal(t, 3*time.Second, traces.Timeout)
	assert.Equal(t, "gzip", traces.Compression)
	assert.Equal(t, "secret", traces.Headers["x-api-key"])

	metrics := resolveExporterParams(cfg, signalMetrics)
	assert.Equal(t, "none", metrics.Type)
	assert.Equal(t, "http://collector:4318", metrics.Endpoint)

	logs := resolveExporterParams(cfg, signalLogs)
	assert.Equal(t, "otlp", logs.Type)
	assert.Equal(t, "http://logs:4318/v1/logs", logs.Endpoint)
}

func TestBuildHTTPOptions(t *testing.T) {
	params := exporterParams{
		Endpoint:    "http://localhost:4318/v1/logs",
		Headers:     map[string]string{"k": "v"},
		Timeout:     5 * time.Second,
		Insecure:    true,
		Compression: "gzip",
	}

	build := func(p exporterParams) []opt {
		return buildHTTPOptions(
			p,
			func(v string) opt { return opt{kind: "endpoint", val: v} },
			func(v string) opt { return opt{kind: "endpointURL", val: v} },
			func(_ map[string]string) opt { return opt{kind: "headers"} },
			func(d time.Duration) opt { return opt{kind: "timeout", val: d.String()} },
			func() opt { return opt{kind: "insecure"} },
			func() opt { return opt{kind: "compression"} },
		)
	}

	opts := build(params)
	require.NotEmpty(t, opts)
	assert.Equal(t, opt{kind: "endpointURL", val: "http://localhost:4318/v1/logs"}, opts[0])
	assert.Equal(t, []string{"endpointURL", "headers", "timeout", "insecure", "compression"}, kinds(opts))

	params.Endpoint = "localhost:4317"
	params.Headers = nil
	params.Insecure = false
	params.Compression = ""
	opts = build(params)
	assert.Equal(t, []string{"endpoint", "timeout"}, kinds(opts))
	assert.Equal(t, "5s", opts[1].val)
}

func TestBuildGRPCOptions(t *testing.T) {
	params := exporterParams{
		Endpoint:    "localhost:4317",
		Headers:     map[string]string{"k": "v"},
		Timeout:     2 * time.Second,
		Insecure:    true,
		Compression: "gzip",
	}

	opts := buildGRPCOptions(
		params,
		func(v string) opt { return opt{kind: "endpoint", val: v} },
		func(_ map[string]string) opt { return opt{kind: "headers"} },
		func(d time.Duration) opt { return opt{kind: "timeout", val: d.String()} },
		func() opt { return opt{kind: "insecure"} },
		func() opt { return opt{kind: "compression"} },
	)

	require.NotEmpty(t, opts)
	assert.Equal(t, opt{kind: "endpoint", val: "localhost:4317"}, opts[0])
	assert.Equal(t, []string{"endpoint", "headers", "timeout", "insecure", "compression"}, kinds(opts))
}

func kinds(opts []opt) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		out = append(out, o.kind)
	}

	return out
}
