package otxray

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/arloliu/otxray/internal/tracker"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// IncomingRequest is the framework-neutral view of an inbound request that
// [Recorder.Begin] needs.
type IncomingRequest struct {
	// TraceHeader is the raw X-Amzn-Trace-Id value, possibly empty.
	TraceHeader   string
	Host          string
	Method        string
	URL           string
	UserAgent     string
	ClientIP      string
	XForwardedFor bool
}

// Option configures a Recorder.
type Option func(*options)

type options struct {
	logger         Logger
	sampler        Sampler
	emitter        Emitter
	namer          SegmentNamer
	plugins        []Plugin
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	automatic      *bool
}

// WithLogger sets the logger for debug and error output.
func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSampler replaces the sampler built from Config.Sampling.
func WithSampler(s Sampler) Option {
	return func(o *options) { o.sampler = s }
}

// WithEmitter sets where closed segments are sent. It takes precedence over
// the exporter pipeline built from Config.
func WithEmitter(e Emitter) Option {
	return func(o *options) { o.emitter = e }
}

// WithNamer replaces segment naming.
func WithNamer(n SegmentNamer) Option {
	return func(o *options) { o.namer = n }
}

// WithPlugins adds metadata plugins to the ones named in Config.Plugins.
func WithPlugins(plugins ...Plugin) Option {
	return func(o *options) { o.plugins = append(o.plugins, plugins...) }
}

// WithTracerProvider exports segments through tp instead of a provider built
// from Config.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider records segment metrics on mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithAutomaticMode overrides Config.AutomaticMode.
func WithAutomaticMode(automatic bool) Option {
	return func(o *options) { o.automatic = &automatic }
}

// WithManualMode is shorthand for WithAutomaticMode(false).
func WithManualMode() Option {
	return WithAutomaticMode(false)
}

// Recorder creates, binds and closes request segments. A Recorder is safe
// for concurrent use by every request of a server.
type Recorder struct {
	cfg          *Config
	namer        SegmentNamer
	sampler      Sampler
	emitter      Emitter
	logger       Logger
	metrics      *segmentMetrics
	origin       string
	aws          map[string]any
	automatic    bool
	captureAsync bool
	installed    tracker.Token
	shutdowns    []func(context.Context) error
}

// Setup builds a Recorder from cfg and installs its context propagation mode
// process-wide. A nil cfg is replaced by [DefaultConfig].
//
// When cfg enables export, Setup builds the trace (and, if enabled, metric
// and log) providers and owns them until [Recorder.Shutdown].
func Setup(ctx context.Context, cfg *Config, opts ...Option) (*Recorder, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	r := &Recorder{
		cfg:          cfg,
		namer:        o.namer,
		sampler:      o.sampler,
		logger:       o.logger,
		automatic:    cfg.IsAutomaticMode(),
		captureAsync: cfg.IsCaptureAsync(),
	}
	if o.automatic != nil {
		r.automatic = *o.automatic
	}
	if r.sampler == nil {
		r.sampler = NewSampler(cfg.Sampling)
	}

	if err := r.setupLogger(ctx); err != nil {
		return nil, err
	}
	if err := r.setupEmitter(ctx, o); err != nil {
		_ = r.Shutdown(ctx)
		return nil, err
	}
	if err := r.setupMetrics(ctx, o); err != nil {
		_ = r.Shutdown(ctx)
		return nil, err
	}

	named, err := PluginsByName(cfg.PluginNames())
	if err != nil {
		_ = r.Shutdown(ctx)
		return nil, err
	}
	if plugins := slices.Concat(named, o.plugins); len(plugins) > 0 {
		pctx, cancel := context.WithTimeout(ctx, 2*defaultPluginTimeout)
		r.origin, r.aws = collectPlugins(pctx, plugins, r.logger)
		cancel()
	}

	r.installed = tracker.SetMode(r.automatic)
	r.logger.Debug("recorder installed", "automatic", r.automatic, "export", cfg.IsEnabled())

	return r, nil
}

func (r *Recorder) setupLogger(ctx context.Context) error {
	if r.logger != nil {
		return nil
	}

	lp, err := NewLoggerProvider(ctx, r.cfg)
	switch {
	case err == nil:
		r.shutdowns = append(r.shutdowns, lp.Shutdown)
		r.logger = NewOTelLogger(lp)
	case errors.Is(err, ErrDisabled), errors.Is(err, ErrLogsDisabled):
		r.logger = handleLogger{}
	default:
		return err
	}

	return nil
}

func (r *Recorder) setupEmitter(ctx context.Context, o options) error {
	switch {
	case o.emitter != nil:
		r.emitter = o.emitter
	case o.tracerProvider != nil:
		r.emitter = NewSpanEmitter(o.tracerProvider)
	default:
		tp, err := NewTracerProvider(ctx, r.cfg)
		if errors.Is(err, ErrDisabled) {
			r.emitter = NopEmitter{}
			return nil
		}
		if err != nil {
			return err
		}
		r.shutdowns = append(r.shutdowns, tp.Shutdown)
		r.emitter = NewSpanEmitter(tp)
	}

	return nil
}

func (r *Recorder) setupMetrics(ctx context.Context, o options) error {
	mp := o.meterProvider
	if mp == nil {
		sdkmp, err := NewMeterProvider(ctx, r.cfg)
		switch {
		case err == nil:
			r.shutdowns = append(r.shutdowns, sdkmp.Shutdown)
			mp = sdkmp
		case errors.Is(err, ErrDisabled), errors.Is(err, ErrMetricsDisabled):
		default:
			return err
		}
	}

	m, err := newSegmentMetrics(mp)
	if err != nil {
		return err
	}
	r.metrics = m

	return nil
}

// Config returns the configuration the recorder was built from.
func (r *Recorder) Config() *Config { return r.cfg }

// Automatic reports whether the recorder runs in automatic mode.
func (r *Recorder) Automatic() bool { return r.automatic }

// Logger returns the recorder's logger.
func (r *Recorder) Logger() Logger { return r.logger }

// Begin starts a segment for an inbound request. The returned header is the
// parsed inbound trace header; adapters use it for [ResponseTraceHeader].
func (r *Recorder) Begin(_ context.Context, req IncomingRequest) (*Segment, TraceHeader) {
	h := ParseTraceHeader(req.TraceHeader)
	name := r.segmentName(req.Host)

	traceID := h.Root
	if traceID == "" {
		traceID = NewTraceID()
	}
	sampled := DecideSampling(h, r.sampler, SamplingRequest{
		TraceID: traceID,
		Name:    name,
		Host:    req.Host,
		Method:  req.Method,
		URL:     req.URL,
	})

	seg := NewSegment(name, traceID, h.Parent, sampled)
	_ = seg.SetHTTPRequest(HTTPRequest{
		Method:        req.Method,
		URL:           req.URL,
		UserAgent:     req.UserAgent,
		ClientIP:      req.ClientIP,
		XForwardedFor: req.XForwardedFor,
	})
	if r.origin != "" || len(r.aws) > 0 {
		_ = seg.setPluginData(r.origin, r.aws)
	}

	r.logger.Debug("starting segment",
		"url", req.URL, "name", name, "trace_id", seg.TraceID(), "id", seg.ID(), "sampled", sampled)

	return seg, h
}

func (r *Recorder) segmentName(host string) string {
	if r.namer != nil {
		return r.namer.Name(host)
	}

	return ResolveName(host, r.cfg.SegmentName)
}

// Close finalizes seg with the request's completion. Only the first call for
// a segment has any effect; it returns true for that call and false for
// every later one.
func (r *Recorder) Close(ctx context.Context, seg *Segment, c Completion) bool {
	if seg == nil || !seg.finish(c, time.Now()) {
		return false
	}

	ctx = context.WithoutCancel(ctx)
	data := seg.Snapshot()
	r.metrics.record(ctx, data)
	r.logger.Debug("closed segment",
		"url", data.HTTP.Request.URL, "name", data.Name, "trace_id", data.TraceID,
		"id", data.ID, "sampled", data.Sampled, "status", c.Status)

	if data.Sampled {
		r.emitter.Emit(ctx, data)
	}

	return true
}

// ReportError attaches err to the segment bound to ctx while it is open.
// It reports whether the error was recorded.
func (r *Recorder) ReportError(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	seg := r.Resolve(ctx)
	if seg == nil {
		return false
	}
	if addErr := seg.AddError(err); addErr != nil {
		r.logger.Debug("dropping error reported after close", "id", seg.ID(), "error", err)
		return false
	}

	return true
}

// Bind associates seg with the request context ctx. In automatic mode the
// segment becomes the current segment of everything derived from the
// returned context. In manual mode it is only stored in the request bag.
func (r *Recorder) Bind(ctx context.Context, seg *Segment) context.Context {
	if r.automatic {
		return ContextWithSegment(ctx, seg)
	}

	bag := BagFromContext(ctx)
	if bag == nil {
		bag = NewBag()
		ctx = ContextWithBag(ctx, bag)
	}
	bag.Set(SegmentBagKey, seg)

	return ctx
}

// Resolve returns the segment for ctx: the current segment in automatic
// mode, the request bag's segment (or one passed explicitly with
// [ContextWithSegment]) in manual mode.
func (r *Recorder) Resolve(ctx context.Context) *Segment {
	if r.automatic {
		return FromContext(ctx)
	}
	if seg := FromContext(ctx); seg != nil {
		return seg
	}

	return BagFromContext(ctx).Segment()
}

// Shutdown flushes and stops the providers Setup created. If no other
// recorder was set up since, it also restores the default context
// propagation mode.
func (r *Recorder) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(r.shutdowns) - 1; i >= 0; i-- {
		if err := r.shutdowns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.shutdowns = nil
	tracker.Release(r.installed)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("otxray: shutdown: %w", err)
	}

	return nil
}

// ResponseTraceHeader returns the header to echo to the caller when the
// inbound header requested a sampling decision (Sampled=?).
func ResponseTraceHeader(in TraceHeader, seg *Segment) (TraceHeader, bool) {
	if seg == nil || in.Sampled != SampledRequested {
		return TraceHeader{}, false
	}

	return TraceHeader{Root: seg.TraceID(), Sampled: decisionOf(seg.Sampled())}, true
}
