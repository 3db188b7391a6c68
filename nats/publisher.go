package nats

import (
	"context"

	"github.com/arloliu/otxray"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// MsgPublisher is the part of jetstream.JetStream used by [Publisher].
type MsgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
	PublishMsgAsync(msg *nats.Msg, opts ...jetstream.PublishOpt) (jetstream.PubAckFuture, error)
}

var _ MsgPublisher = (jetstream.JetStream)(nil)

// Publisher publishes JetStream messages carrying the trace header of the
// segment in the publish context.
type Publisher struct {
	js   MsgPublisher
	opts options
}

// NewPublisher creates a Publisher over js, usually a jetstream.JetStream.
//
// Panics if js is nil.
func NewPublisher(js MsgPublisher, opts ...Option) *Publisher {
	if js == nil {
		panic("otxray/nats: JetStream must not be nil")
	}

	return &Publisher{js: js, opts: applyOptions(opts)}
}

// Publish publishes data to subject with the trace header injected.
func (p *Publisher) Publish(
	ctx context.Context,
	subject string,
	data []byte,
	opts ...jetstream.PublishOpt,
) (*jetstream.PubAck, error) {
	return p.PublishMsg(ctx, &nats.Msg{Subject: subject, Data: data}, opts...)
}

// PublishMsg publishes msg with the trace header injected.
// If msg.Header is nil, it will be initialized before injecting.
//
// A publish failure is recorded on the current segment.
func (p *Publisher) PublishMsg(
	ctx context.Context,
	msg *nats.Msg,
	opts ...jetstream.PublishOpt,
) (*jetstream.PubAck, error) {
	InjectHeader(ctx, msg, p.opts.propagator())

	ack, err := p.js.PublishMsg(ctx, msg, opts...)
	if err != nil {
		_ = otxray.AddError(ctx, err)

		return nil, err
	}

	return ack, nil
}

// PublishMsgAsync publishes msg asynchronously with the trace header of the
// segment in ctx injected. The context only supplies the segment; the
// publish itself is not bound to it.
func (p *Publisher) PublishMsgAsync(
	ctx context.Context,
	msg *nats.Msg,
	opts ...jetstream.PublishOpt,
) (jetstream.PubAckFuture, error) {
	InjectHeader(ctx, msg, p.opts.propagator())

	future, err := p.js.PublishMsgAsync(msg, opts...)
	if err != nil {
		_ = otxray.AddError(ctx, err)

		return nil, err
	}

	return future, nil
}
