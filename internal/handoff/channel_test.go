package handoff

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishForcesStrictlyIncreasingTimestamp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := NewMemoryStore()
	require.NoError(t, store.SetWatermark(ctx, 500))
	ch := NewChannel(store)

	got, err := ch.Publish(ctx, testRecord(400))
	require.NoError(t, err)
	assert.Greater(t, got.UpdatedAt, 500.0, "publish time raised above the watermark")
	assert.Equal(t, StatePublished, ch.State())

	again, err := ch.Publish(ctx, testRecord(got.UpdatedAt))
	require.NoError(t, err)
	assert.Greater(t, again.UpdatedAt, got.UpdatedAt, "publish time raised above the previous record")

	later, err := ch.Publish(ctx, testRecord(900))
	require.NoError(t, err)
	assert.InDelta(t, 900.0, later.UpdatedAt, 0, "a newer timestamp is kept")
}

func TestPublishRejectsCorruptRecord(t *testing.T) {
	t.Parallel()

	rec := testRecord(1)
	rec.EventTypes = nil
	_, err := NewChannel(NewMemoryStore()).Publish(context.Background(), rec)
	require.Error(t, err)
}

func TestTryConsume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := NewMemoryStore()
	ch := NewChannel(store)

	_, ok, err := ch.TryConsume(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "idle")

	pub, err := NewChannel(store).Publish(ctx, testRecord(100))
	require.NoError(t, err)

	rec, ok, err := ch.TryConsume(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pub, rec)
	assert.Equal(t, StateConsuming, ch.State())

	_, ok, err = ch.TryConsume(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second consume of the same publication")

	_, err = ch.Publish(ctx, testRecord(300))
	require.ErrorIs(t, err, ErrInvalidTransition, "publish while consuming")

	require.NoError(t, ch.Complete(ctx, rec, true))
	assert.Equal(t, StateCleared, ch.State())

	_, found, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTryConsumeClearsCorruptRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := NewMemoryStore()
	bad := testRecord(100)
	bad.WallClock = append(bad.WallClock, 1)
	require.NoError(t, store.Save(ctx, bad))

	ch := NewChannel(store)
	_, ok, err := ch.TryConsume(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	wm, err := store.Watermark(ctx)
	require.NoError(t, err)
	assert.Zero(t, wm, "discarding does not move the watermark")
}

func TestStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := NewMemoryStore()
	ch := NewChannel(store)

	st, err := ch.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st.State)
	assert.Nil(t, st.Pending)

	require.NoError(t, store.Save(ctx, testRecord(100)))
	st, err = ch.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatePublished, st.State)
	require.NotNil(t, st.Pending)
	assert.Equal(t, 2, st.Pending.Len())

	require.NoError(t, ch.Discard(ctx))
	st, err = ch.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.Pending)
}
