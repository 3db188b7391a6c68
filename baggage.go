package otxray

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/baggage"
)

// SetBaggage adds a W3C baggage member to ctx. Members travel to downstream
// services through the baggage propagator.
func SetBaggage(ctx context.Context, key, value string) (context.Context, error) {
	member, err := baggage.NewMember(key, value)
	if err != nil {
		return ctx, fmt.Errorf("otxray: create baggage member: %w", err)
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx, fmt.Errorf("otxray: set baggage member: %w", err)
	}

	return baggage.ContextWithBaggage(ctx, bag), nil
}

// GetBaggage returns the baggage value for key, or "".
func GetBaggage(ctx context.Context, key string) string {
	return baggage.FromContext(ctx).Member(key).Value()
}

// AnnotateFromBaggage copies the named baggage members of ctx into seg as
// annotations. With no keys every member is copied. Annotation keys are the
// member keys with characters X-Ray cannot index replaced by '_'.
// It returns the number of annotations written.
func AnnotateFromBaggage(ctx context.Context, seg *Segment, keys ...string) int {
	if seg == nil {
		return 0
	}

	bag := baggage.FromContext(ctx)
	members := bag.Members()
	if len(keys) > 0 {
		members = members[:0:0]
		for _, k := range keys {
			if m := bag.Member(k); m.Key() != "" {
				members = append(members, m)
			}
		}
	}

	n := 0
	for _, m := range members {
		if err := seg.AddAnnotation(annotationKey(m.Key()), m.Value()); err == nil {
			n++
		}
	}

	return n
}

func annotationKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
}
