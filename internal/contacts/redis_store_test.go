package contacts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askwhyharsh/nearcontacts/internal/storage"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(storage.WrapRedisClient(client), ttl), mr
}

func TestRedisStore_ReplaceAndList(t *testing.T) {
	store, _ := newTestRedisStore(t, time.Hour)
	ctx := context.Background()

	first := []Record{
		{ID: "1", FirstName: "Ada", Addresses: []Address{{FormattedAddress: "London"}}},
		{ID: "2", FirstName: "Grace"},
	}
	require.NoError(t, store.Replace(ctx, "s1", first))

	got, err := store.List(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	second := []Record{{ID: "3", LastName: "Hopper"}}
	require.NoError(t, store.Replace(ctx, "s1", second))

	got, err = store.List(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestRedisStore_UnknownSessionIsEmpty(t *testing.T) {
	store, _ := newTestRedisStore(t, time.Hour)

	got, err := store.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStore_Expires(t *testing.T) {
	store, mr := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Replace(ctx, "s1", []Record{{ID: "1"}}))
	mr.FastForward(2 * time.Minute)

	got, err := store.List(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStore_TouchExtendsLifetime(t *testing.T) {
	store, mr := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Replace(ctx, "s1", []Record{{ID: "1"}}))
	mr.FastForward(50 * time.Second)
	require.NoError(t, store.Touch(ctx, "s1"))
	mr.FastForward(50 * time.Second)

	got, err := store.List(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	assert.NoError(t, store.Touch(ctx, "never-synced"))
	assert.False(t, mr.Exists("contacts:never-synced"))
}

func TestRedisStore_Delete(t *testing.T) {
	store, mr := newTestRedisStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Replace(ctx, "s1", []Record{{ID: "1"}}))
	require.NoError(t, store.Delete(ctx, "s1"))

	assert.False(t, mr.Exists("contacts:s1"))
	got, err := store.List(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
