package gin

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/arloliu/otxray"
	otxhttp "github.com/arloliu/otxray/http"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/propagation"
)

// SegmentKey is the gin.Context key holding the request's segment.
const SegmentKey = otxray.SegmentBagKey

// Option configures the middleware.
type Option func(*config)

type config struct {
	filter       func(*gin.Context) bool
	baggage      bool
	baggageKeys  []string
	trustForward bool
}

// WithFilter skips recording for requests where filter returns false.
func WithFilter(filter func(*gin.Context) bool) Option {
	return func(c *config) { c.filter = filter }
}

// WithBaggageAnnotations copies inbound W3C baggage members into segment
// annotations. With no keys every member is copied.
func WithBaggageAnnotations(keys ...string) Option {
	return func(c *config) {
		c.baggage = true
		c.baggageKeys = keys
	}
}

// WithForwardedFor controls whether the client IP is taken from
// X-Forwarded-For. Enabled by default.
func WithForwardedFor(trust bool) Option {
	return func(c *config) { c.trustForward = trust }
}

// Middleware records a segment for every request handled by the engine.
//
// The segment is stored in the gin.Context under [SegmentKey] and bound to
// the request context according to the recorder's mode. Errors attached with
// c.Error are recorded as causes when the request completes.
//
// Usage:
//
//	r := gin.New()
//	r.Use(otxgin.Middleware(rec))
func Middleware(rec *otxray.Recorder, opts ...Option) gin.HandlerFunc {
	cfg := config{trustForward: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *gin.Context) {
		if cfg.filter != nil && !cfg.filter(c) {
			c.Next()
			return
		}

		r := c.Request
		seg, in := rec.Begin(r.Context(), otxhttp.IncomingRequest(r, cfg.trustForward))
		if echo, ok := otxray.ResponseTraceHeader(in, seg); ok {
			c.Header(otxray.TraceHeaderName, echo.String())
		}

		ctx := rec.Bind(r.Context(), seg)
		if cfg.baggage {
			bctx := propagation.Baggage{}.Extract(ctx, propagation.HeaderCarrier(r.Header))
			otxray.AnnotateFromBaggage(bctx, seg, cfg.baggageKeys...)
		}
		c.Request = r.WithContext(ctx)
		c.Set(SegmentKey, seg)

		sw := &statusWriter{ResponseWriter: c.Writer}
		c.Writer = sw

		stop := context.AfterFunc(r.Context(), func() {
			rec.Close(ctx, seg, sw.completion())
		})

		defer func() {
			stop()
			recordErrors(seg, c.Errors)
			if p := recover(); p != nil {
				rec.Close(ctx, seg, otxray.Completion{
					Status:        http.StatusInternalServerError,
					ContentLength: sw.written.Load(),
					Err:           fmt.Errorf("panic: %v", p),
				})
				panic(p)
			}
			rec.Close(ctx, seg, otxray.Completion{
				Status:        c.Writer.Status(),
				ContentLength: sw.written.Load(),
			})
		}()

		c.Next()
	}
}

func recordErrors(seg *otxray.Segment, errs []*gin.Error) {
	for _, e := range errs {
		_ = seg.AddError(e.Err)
	}
}

// Segment returns the segment of the request, or nil.
func Segment(c *gin.Context) *otxray.Segment {
	if v, ok := c.Get(SegmentKey); ok {
		if seg, ok := v.(*otxray.Segment); ok {
			return seg
		}
	}
	if c.Request == nil {
		return nil
	}

	return otxray.Lookup(c.Request.Context())
}

// statusWriter mirrors the response status into atomics so the disconnect
// callback can read it from another goroutine.
type statusWriter struct {
	gin.ResponseWriter
	status  atomic.Int64
	written atomic.Int64
}

// WriteHeader follows gin: the status may change until the body is written
// and is fixed afterwards.
func (w *statusWriter) WriteHeader(code int) {
	if code >= http.StatusOK && !w.ResponseWriter.Written() {
		w.status.Store(int64(code))
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.status.CompareAndSwap(0, http.StatusOK)
	n, err := w.ResponseWriter.Write(b)
	w.written.Add(int64(n))

	return n, err
}

func (w *statusWriter) WriteString(s string) (int, error) {
	w.status.CompareAndSwap(0, http.StatusOK)
	n, err := w.ResponseWriter.WriteString(s)
	w.written.Add(int64(n))

	return n, err
}

func (w *statusWriter) completion() otxray.Completion {
	status := int(w.status.Load())
	if status == 0 {
		status = http.StatusOK
	}

	return otxray.Completion{Status: status, ContentLength: w.written.Load()}
}
