package otxray

import (
	"context"
	"errors"
)

// ErrNoSegment is returned by the context helpers when ctx carries no segment.
var ErrNoSegment = errors.New("otxray: no segment in context")

// Lookup returns the segment of ctx in either mode, or nil. It never panics.
func Lookup(ctx context.Context) *Segment {
	if seg := FromContext(ctx); seg != nil {
		return seg
	}

	return BagFromContext(ctx).Segment()
}

// AddAnnotation sets an indexed annotation on the segment of ctx.
func AddAnnotation(ctx context.Context, key string, value any) error {
	seg := Lookup(ctx)
	if seg == nil {
		return ErrNoSegment
	}

	return seg.AddAnnotation(key, value)
}

// AddMetadata sets a value in the default metadata namespace of the segment of ctx.
func AddMetadata(ctx context.Context, key string, value any) error {
	seg := Lookup(ctx)
	if seg == nil {
		return ErrNoSegment
	}

	return seg.AddMetadata(key, value)
}

// AddError records err on the segment of ctx. A nil err is a no-op.
func AddError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	seg := Lookup(ctx)
	if seg == nil {
		return ErrNoSegment
	}

	return seg.AddError(err)
}

// TraceID returns the X-Ray trace ID of the segment of ctx, or "".
func TraceID(ctx context.Context) string {
	if seg := Lookup(ctx); seg != nil {
		return seg.TraceID()
	}

	return ""
}

// SegmentID returns the ID of the segment of ctx, or "".
func SegmentID(ctx context.Context) string {
	if seg := Lookup(ctx); seg != nil {
		return seg.ID()
	}

	return ""
}
