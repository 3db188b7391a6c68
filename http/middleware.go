package http

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/arloliu/otxray"
	"github.com/felixge/httpsnoop"
	"go.opentelemetry.io/otel/propagation"
)

// Option configures the server middleware.
type Option func(*middlewareConfig)

type middlewareConfig struct {
	filter       func(*http.Request) bool
	baggage      bool
	baggageKeys  []string
	trustForward bool
}

// WithFilter skips recording for requests where filter returns false,
// e.g. health checks.
func WithFilter(filter func(*http.Request) bool) Option {
	return func(c *middlewareConfig) { c.filter = filter }
}

// WithBaggageAnnotations copies inbound W3C baggage members into segment
// annotations. With no keys every member is copied.
func WithBaggageAnnotations(keys ...string) Option {
	return func(c *middlewareConfig) {
		c.baggage = true
		c.baggageKeys = keys
	}
}

// WithForwardedFor controls whether the client IP is taken from
// X-Forwarded-For. Enabled by default.
func WithForwardedFor(trust bool) Option {
	return func(c *middlewareConfig) { c.trustForward = trust }
}

// Handler wraps h so that every request is recorded as a segment.
//
// Usage:
//
//	http.Handle("/api", otxhttp.Handler(rec, apiHandler))
func Handler(rec *otxray.Recorder, h http.Handler, opts ...Option) http.Handler {
	return Middleware(rec, opts...)(h)
}

// Middleware returns middleware that records a segment per request.
//
// The segment is closed by whichever comes first: the handler returning, or
// the request context ending because the client went away. The response
// status seen so far classifies the segment; a panicking handler is recorded
// as a 500 and the panic is propagated.
//
// Usage:
//
//	srv := &http.Server{Handler: otxhttp.Middleware(rec)(mux)}
func Middleware(rec *otxray.Recorder, opts ...Option) func(http.Handler) http.Handler {
	cfg := middlewareConfig{trustForward: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.filter != nil && !cfg.filter(r) {
				next.ServeHTTP(w, r)
				return
			}
			serve(rec, &cfg, next, w, r)
		})
	}
}

func serve(rec *otxray.Recorder, cfg *middlewareConfig, next http.Handler, w http.ResponseWriter, r *http.Request) {
	seg, in := rec.Begin(r.Context(), IncomingRequest(r, cfg.trustForward))
	if echo, ok := otxray.ResponseTraceHeader(in, seg); ok {
		w.Header().Set(otxray.TraceHeaderName, echo.String())
	}

	ctx := rec.Bind(r.Context(), seg)
	if cfg.baggage {
		bctx := propagation.Baggage{}.Extract(ctx, propagation.HeaderCarrier(r.Header))
		otxray.AnnotateFromBaggage(bctx, seg, cfg.baggageKeys...)
	}

	rw := &responseRecorder{}
	ww := rw.wrap(w)

	stop := context.AfterFunc(r.Context(), func() {
		rec.Close(ctx, seg, rw.completion())
	})

	defer func() {
		stop()
		if p := recover(); p != nil {
			rec.Close(ctx, seg, otxray.Completion{
				Status:        http.StatusInternalServerError,
				ContentLength: rw.written.Load(),
				Err:           fmt.Errorf("panic: %v", p),
			})
			panic(p)
		}
		rec.Close(ctx, seg, rw.completion())
	}()

	next.ServeHTTP(ww, r.WithContext(ctx))
}

// responseRecorder captures the status and body size written by the handler.
// Fields are atomic because the disconnect callback reads them from another
// goroutine.
type responseRecorder struct {
	status  atomic.Int64
	written atomic.Int64
}

func (rr *responseRecorder) wrap(w http.ResponseWriter) http.ResponseWriter {
	return httpsnoop.Wrap(w, httpsnoop.Hooks{
		WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
			return func(code int) {
				if code >= http.StatusOK {
					rr.status.CompareAndSwap(0, int64(code))
				}
				next(code)
			}
		},
		Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
			return func(b []byte) (int, error) {
				rr.status.CompareAndSwap(0, http.StatusOK)
				n, err := next(b)
				rr.written.Add(int64(n))

				return n, err
			}
		},
		ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
			return func(src io.Reader) (int64, error) {
				rr.status.CompareAndSwap(0, http.StatusOK)
				n, err := next(src)
				rr.written.Add(n)

				return n, err
			}
		},
	})
}

// completion reports what the client has been sent so far. A handler that
// never wrote anything produced an implicit 200.
func (rr *responseRecorder) completion() otxray.Completion {
	status := int(rr.status.Load())
	if status == 0 {
		status = http.StatusOK
	}

	return otxray.Completion{Status: status, ContentLength: rr.written.Load()}
}

// IncomingRequest describes r for [otxray.Recorder.Begin]. With trustForward
// the client IP is taken from the first X-Forwarded-For entry when present.
func IncomingRequest(r *http.Request, trustForward bool) otxray.IncomingRequest {
	clientIP, forwarded := clientAddress(r, trustForward)

	return otxray.IncomingRequest{
		TraceHeader:   r.Header.Get(otxray.TraceHeaderName),
		Host:          hostOnly(r.Host),
		Method:        r.Method,
		URL:           requestURL(r),
		UserAgent:     r.UserAgent(),
		ClientIP:      clientIP,
		XForwardedFor: forwarded,
	}
}

func clientAddress(r *http.Request, trustForward bool) (string, bool) {
	if trustForward {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip, true
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr, false
	}

	return host, false
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func hostOnly(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}

	return hostport
}

// SegmentFromRequest returns the segment recorded for r in either mode, or nil.
func SegmentFromRequest(r *http.Request) *otxray.Segment {
	return otxray.Lookup(r.Context())
}

// ReportError attaches err to the segment of r while it is still open. Use it
// from error-handling middleware that turns errors into responses; the
// recorded cause is dropped if the final status is 404.
func ReportError(r *http.Request, err error) error {
	return otxray.AddError(r.Context(), err)
}
