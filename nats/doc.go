// Package nats records X-Ray segments for NATS JetStream consumers and
// carries the trace header across publish and consume.
//
// # Consumer Usage
//
// Each delivered message gets its own segment, continuing the trace found in
// the message's X-Amzn-Trace-Id header:
//
//	consumer, _ := stream.CreateConsumer(ctx, cfg)
//	cc, _ := consumer.Consume(nats.MessageHandler(rec,
//	    func(ctx context.Context, msg jetstream.Msg) error {
//	        otxray.AddAnnotation(ctx, "order", string(msg.Data()))
//	        return processOrder(ctx, msg.Data())
//	    },
//	    nats.WithAckOnReturn(true),
//	))
//	defer cc.Stop()
//
// A handler error closes the segment as a 500 fault.
//
// # Publisher Usage
//
//	js, _ := jetstream.New(nc)
//	publisher := nats.NewPublisher(js)
//
//	// Inside a request handler, ctx carries the request's segment.
//	publisher.Publish(ctx, "orders.created", data)
//
// The header names the segment as the parent, so the consumer's segment is
// linked to the request that published the message.
package nats
