// Package http records X-Ray segments for net/http servers and propagates
// the trace header on outbound calls.
//
// # Server
//
//	rec, _ := otxray.Setup(ctx, cfg)
//	srv := &http.Server{Handler: otxhttp.Middleware(rec)(mux)}
//
// Handlers reach the segment through the request context:
//
//	func handle(w http.ResponseWriter, r *http.Request) {
//	    _ = otxray.AddAnnotation(r.Context(), "customer", id)
//	}
//
// Error-handling middleware reports causes with [ReportError].
//
// # Client
//
//	client := otxhttp.NewClient(otxhttp.WithTimeout(5 * time.Second))
//
// Requests built with the handler's context send X-Amzn-Trace-Id with the
// current segment as parent.
package http
