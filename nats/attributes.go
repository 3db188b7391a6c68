package nats

import (
	"github.com/arloliu/otxray"
	"github.com/nats-io/nats.go/jetstream"
)

// metadataNamespace is the segment metadata namespace for message details.
const metadataNamespace = "nats"

// Metadata keys recorded on every message segment, named after the OTel
// messaging semantic conventions.
const (
	keyMessagingSystem   = "messaging.system"
	keyDestinationName   = "messaging.destination.name"
	keyConsumerGroup     = "messaging.consumer.group.name"
	keyMessageID         = "messaging.message.id"
	keyMessageBodySize   = "messaging.message.body.size"
	keyDeliveredCount    = "nats.delivered"
	keyStream            = "nats.stream"
	messagingSystem      = "nats"
	messageURLScheme     = "nats://"
	messageMethodProcess = "PROCESS"
)

// messageInfo is what the handler learns about a message before processing.
type messageInfo struct {
	stream    string
	consumer  string
	subject   string
	sequence  uint64
	delivered uint64
	size      int
}

func inspectMessage(msg jetstream.Msg, o options) messageInfo {
	info := messageInfo{
		subject: msg.Subject(),
		size:    len(msg.Data()),
	}

	if md, err := msg.Metadata(); err == nil && md != nil {
		info.stream = md.Stream
		info.consumer = md.Consumer
		info.sequence = md.Sequence.Stream
		info.delivered = md.NumDelivered
	}

	if o.stream != "" {
		info.stream = o.stream
	}

	return info
}

// url renders the message as the segment's request URL.
func (m messageInfo) url() string {
	if m.stream == "" {
		return messageURLScheme + m.subject
	}

	return messageURLScheme + m.stream + "/" + m.subject
}

// annotate records the message details as segment metadata.
func (m messageInfo) annotate(seg *otxray.Segment) {
	put := func(key string, value any) {
		_ = seg.AddMetadataToNamespace(metadataNamespace, key, value)
	}

	put(keyMessagingSystem, messagingSystem)
	put(keyDestinationName, m.subject)

	if m.stream != "" {
		put(keyStream, m.stream)
	}

	if m.consumer != "" {
		put(keyConsumerGroup, m.consumer)
	}

	if m.sequence > 0 {
		put(keyMessageID, m.sequence)
	}

	if m.delivered > 0 {
		put(keyDeliveredCount, m.delivered)
	}

	if m.size > 0 {
		put(keyMessageBodySize, m.size)
	}
}
