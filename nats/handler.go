package nats

import (
	"context"
	"fmt"
	"net/http"

	"github.com/arloliu/otxray"
	"github.com/nats-io/nats.go/jetstream"
)

// HandlerFunc processes one JetStream message. The context carries the
// message's segment.
type HandlerFunc func(ctx context.Context, msg jetstream.Msg) error

// MessageHandler wraps handler so that every message is recorded as a
// segment. The trace header is read from the message's X-Amzn-Trace-Id
// header, so a publisher using [Publisher] or [InjectHeader] continues its
// trace in the consumer.
//
// A nil return closes the segment as a 200; an error closes it as a 500
// fault with the error recorded. A panicking handler is recorded the same way
// and the panic propagated.
//
// Example:
//
//	consumer.Consume(nats.MessageHandler(rec, func(ctx context.Context, msg jetstream.Msg) error {
//	    return processOrder(ctx, msg.Data())
//	}, nats.WithAckOnReturn(true)))
//
// Panics if rec or handler is nil.
func MessageHandler(rec *otxray.Recorder, handler HandlerFunc, opts ...Option) jetstream.MessageHandler {
	if rec == nil {
		panic("otxray/nats: recorder must not be nil")
	}
	if handler == nil {
		panic("otxray/nats: handler must not be nil")
	}
	o := applyOptions(opts)

	return func(msg jetstream.Msg) {
		ctx, seg := beginMessage(context.Background(), rec, msg, o)

		defer func() {
			if r := recover(); r != nil {
				rec.Close(ctx, seg, otxray.Completion{
					Status: http.StatusInternalServerError,
					Err:    fmt.Errorf("panic: %v", r),
				})
				panic(r)
			}
		}()

		err := handler(ctx, msg)
		if o.ackOnReturn {
			if ackErr := acknowledge(msg, err); ackErr != nil {
				_ = seg.AddError(fmt.Errorf("acknowledge message: %w", ackErr))
			}
		}

		c := otxray.Completion{Status: http.StatusOK, ContentLength: int64(len(msg.Data()))}
		if err != nil {
			c.Status = http.StatusInternalServerError
			c.Err = err
		}
		rec.Close(ctx, seg, c)
	}
}

func beginMessage(ctx context.Context, rec *otxray.Recorder, msg jetstream.Msg, o options) (context.Context, *otxray.Segment) {
	info := inspectMessage(msg, o)

	seg, _ := rec.Begin(ctx, otxray.IncomingRequest{
		TraceHeader: TraceHeader(msg.Headers()),
		Host:        info.stream,
		Method:      messageMethodProcess,
		URL:         info.url(),
	})
	info.annotate(seg)

	return rec.Bind(ctx, seg), seg
}

func acknowledge(msg jetstream.Msg, err error) error {
	if err != nil {
		return msg.Nak()
	}

	return msg.Ack()
}
