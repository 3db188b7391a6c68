package otxray

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// SamplingRequest describes the request a sampling decision is made for.
type SamplingRequest struct {
	TraceID string
	Name    string
	Host    string
	Method  string
	URL     string
}

// Sampler decides whether a request without an upstream decision is traced.
// Implementations backed by centralized sampling rules plug in here.
type Sampler interface {
	ShouldSample(req SamplingRequest) bool
}

// SamplerFunc adapts a function to [Sampler].
type SamplerFunc func(req SamplingRequest) bool

// ShouldSample calls f.
func (f SamplerFunc) ShouldSample(req SamplingRequest) bool { return f(req) }

// DecideSampling honors an explicit upstream decision and consults s otherwise.
// A nil sampler samples everything.
func DecideSampling(h TraceHeader, s Sampler, req SamplingRequest) bool {
	switch h.Sampled {
	case SampledTrue:
		return true
	case SampledFalse:
		return false
	}
	if s == nil {
		return true
	}

	return s.ShouldSample(req)
}

// NewSampler builds a sampler from configuration. A nil cfg yields the
// X-Ray default rule shape: one request per second, then 5%.
//
// Supported names: always_on, always_off, traceidratio, reservoir. The OTel
// parentbased_* names map to their root sampler.
func NewSampler(cfg *SamplingConfig) Sampler {
	if cfg == nil {
		cfg = &SamplingConfig{Sampler: "reservoir", SamplerArg: 0.05, ReservoirPerSecond: 1}
	}

	switch cfg.Sampler {
	case "always_on", "parentbased_always_on":
		return otelSampler{sdktrace.AlwaysSample()}
	case "always_off", "parentbased_always_off":
		return otelSampler{sdktrace.NeverSample()}
	case "traceidratio", "parentbased_traceidratio":
		return otelSampler{sdktrace.TraceIDRatioBased(cfg.SamplerArg)}
	default:
		return NewReservoirSampler(cfg.ReservoirPerSecond, cfg.SamplerArg)
	}
}

// otelSampler evaluates an OTel SDK sampler against the X-Ray trace ID.
type otelSampler struct {
	s sdktrace.Sampler
}

func (o otelSampler) ShouldSample(req SamplingRequest) bool {
	res := o.s.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       otelTraceID(req.TraceID),
		Name:          req.Name,
		Kind:          trace.SpanKindServer,
	})

	return res.Decision == sdktrace.RecordAndSample
}

// ReservoirSampler samples up to perSecond requests each second and applies
// a fixed trace ID ratio to the rest.
type ReservoirSampler struct {
	reservoir *rate.Limiter
	fallback  Sampler
}

// NewReservoirSampler creates a reservoir sampler. A perSecond of zero
// disables the reservoir.
func NewReservoirSampler(perSecond int, fixedRate float64) *ReservoirSampler {
	s := &ReservoirSampler{fallback: otelSampler{sdktrace.TraceIDRatioBased(fixedRate)}}
	if perSecond > 0 {
		s.reservoir = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}

	return s
}

// ShouldSample takes from the reservoir first, then falls back to the ratio.
func (s *ReservoirSampler) ShouldSample(req SamplingRequest) bool {
	if s.reservoir != nil && s.reservoir.Allow() {
		return true
	}

	return s.fallback.ShouldSample(req)
}
