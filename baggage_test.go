package otxray

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaggageHelpers(t *testing.T) {
	ctx, err := SetBaggage(context.Background(), "tenant", "acme")
	require.NoError(t, err)
	ctx, err = SetBaggage(ctx, "user.id", "u-1")
	require.NoError(t, err)

	assert.Equal(t, "acme", GetBaggage(ctx, "tenant"))
	assert.Empty(t, GetBaggage(ctx, "missing"))

	_, err = SetBaggage(ctx, "bad key", "v")
	assert.Error(t, err)
}

func TestAnnotateFromBaggage(t *testing.T) {
	ctx, err := SetBaggage(context.Background(), "tenant", "acme")
	require.NoError(t, err)
	ctx, err = SetBaggage(ctx, "user.id", "u-1")
	require.NoError(t, err)

	all := NewSegment("orders", "", "", true)
	assert.Equal(t, 2, AnnotateFromBaggage(ctx, all))
	assert.Equal(t, map[string]any{"tenant": "acme", "user_id": "u-1"}, all.Snapshot().Annotations)

	some := NewSegment("orders", "", "", true)
	assert.Equal(t, 1, AnnotateFromBaggage(ctx, some, "tenant", "missing"))
	assert.Equal(t, map[string]any{"tenant": "acme"}, some.Snapshot().Annotations)

	assert.Zero(t, AnnotateFromBaggage(ctx, nil))
}
