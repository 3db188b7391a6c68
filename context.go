package otxray

import (
	"context"
	"errors"
	"sync"

	"github.com/arloliu/otxray/internal/tracker"
	"go.opentelemetry.io/otel/trace"
)

// ErrManualMode is the panic value of [Current] when the recorder runs in manual mode.
var ErrManualMode = errors.New("otxray: Current is unavailable in manual mode; read the segment from the request instead")

type segmentKey struct{}

type bagKey struct{}

// ContextWithSegment returns a context carrying seg as the current segment.
// The segment's span context is installed as well, so OpenTelemetry
// instrumentation started from the returned context nests under it.
func ContextWithSegment(ctx context.Context, seg *Segment) context.Context {
	if seg == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, segmentKey{}, seg)

	if sc := segmentSpanContext(seg); sc.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, sc)
	}

	return ctx
}

// FromContext returns the segment bound to ctx, or nil.
// Unlike [Current] it works in both modes and never panics.
func FromContext(ctx context.Context) *Segment {
	if ctx == nil {
		return nil
	}
	seg, _ := ctx.Value(segmentKey{}).(*Segment)

	return seg
}

// Current returns the current segment of the request chain ctx belongs to,
// or nil if there is none.
//
// Current is an automatic mode accessor. It panics with [ErrManualMode] when
// the installed recorder runs in manual mode.
func Current(ctx context.Context) *Segment {
	if !tracker.Automatic() {
		panic(ErrManualMode)
	}

	return FromContext(ctx)
}

// Bag is request-scoped storage. In manual mode the segment lives here
// instead of being the implicit current segment.
type Bag struct {
	mu     sync.RWMutex
	values map[string]any
}

// SegmentBagKey is the key the segment is stored under in a [Bag].
const SegmentBagKey = "xray.segment"

// NewBag returns an empty bag.
func NewBag() *Bag {
	return &Bag{values: make(map[string]any)}
}

// Set stores a value.
func (b *Bag) Set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
}

// Get returns a stored value.
func (b *Bag) Get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]

	return v, ok
}

// Segment returns the segment stored in the bag, or nil.
func (b *Bag) Segment() *Segment {
	if b == nil {
		return nil
	}
	v, _ := b.Get(SegmentBagKey)
	seg, _ := v.(*Segment)

	return seg
}

// ContextWithBag attaches a request bag to ctx.
func ContextWithBag(ctx context.Context, bag *Bag) context.Context {
	return context.WithValue(ctx, bagKey{}, bag)
}

// BagFromContext returns the request bag attached to ctx, or nil.
func BagFromContext(ctx context.Context) *Bag {
	if ctx == nil {
		return nil
	}
	bag, _ := ctx.Value(bagKey{}).(*Bag)

	return bag
}
