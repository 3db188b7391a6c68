package otxray

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricSegmentsClosed  = "xray.segments.closed"
	metricSegmentDuration = "xray.segment.duration"
)

// segmentMetrics counts closed segments by outcome and records their duration.
type segmentMetrics struct {
	closed   metric.Int64Counter
	duration metric.Float64Histogram
}

func newSegmentMetrics(mp metric.MeterProvider) (*segmentMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	closed, err := meter.Int64Counter(metricSegmentsClosed,
		metric.WithDescription("Number of closed request segments."),
		metric.WithUnit("{segment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("otxray: create %s counter: %w", metricSegmentsClosed, err)
	}

	duration, err := meter.Float64Histogram(metricSegmentDuration,
		metric.WithDescription("Duration of request segments."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("otxray: create %s histogram: %w", metricSegmentDuration, err)
	}

	return &segmentMetrics{closed: closed, duration: duration}, nil
}

func (m *segmentMetrics) record(ctx context.Context, data SegmentData) {
	if m == nil {
		return
	}

	outcome := Classification{Error: data.Error, Fault: data.Fault, Throttle: data.Throttle}.Outcome()
	attrs := metric.WithAttributes(
		attribute.String("segment.name", data.Name),
		attribute.String("outcome", outcome),
		attribute.Bool("sampled", data.Sampled),
	)
	m.closed.Add(ctx, 1, attrs)
	m.duration.Record(ctx, data.EndTime.Sub(data.StartTime).Seconds(), attrs)
}
