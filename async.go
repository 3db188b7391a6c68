package otxray

import (
	"context"
	"fmt"
)

// Go runs fn on a new goroutine that belongs to the request chain of ctx.
//
// With CaptureAsync enabled (the default) fn receives a context that keeps
// the segment but is not canceled when the request ends, and a panic in fn
// is recovered, logged and recorded on the segment if it is still open.
// Otherwise fn receives ctx unchanged and runs unguarded.
func (r *Recorder) Go(ctx context.Context, fn func(ctx context.Context)) {
	if !r.captureAsync {
		go fn(ctx)
		return
	}

	seg := r.Resolve(ctx)
	detached := context.WithoutCancel(ctx)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				err := fmt.Errorf("otxray: async task panic: %v", p)
				if seg != nil {
					_ = seg.AddError(err)
				}
				r.logger.Error("async task panicked", "panic", p)
			}
		}()
		fn(detached)
	}()
}
