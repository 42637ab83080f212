package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return NewStoreFromClient(client), mr
}

func TestStore_SetGetDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "leaderboard")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "leaderboard", []byte(`[1,2]`), time.Minute))

	value, ok, err := s.Get(ctx, "leaderboard")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[1,2]`, string(value))

	require.NoError(t, s.Delete(ctx, "leaderboard"))

	_, ok, err = s.Get(ctx, "leaderboard")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SetExpires(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "topusers", []byte(`[]`), 60*time.Second))

	mr.FastForward(59 * time.Second)
	_, ok, err := s.Get(ctx, "topusers")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = s.Get(ctx, "topusers")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_AcquireIsExclusive(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	token, ok, err := s.Acquire(ctx, "lock:result:1:2", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = s.Acquire(ctx, "lock:result:1:2", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// Другой ключ не зависит от первого.
	_, ok, err = s.Acquire(ctx, "lock:result:1:3", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 30*time.Second, mr.TTL("lock:result:1:2"))
}

func TestStore_ReleaseComparesToken(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	stale, ok, err := s.Acquire(ctx, "lock:result:1:2", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// Блокировка истекла и её занял другой запрос.
	mr.FastForward(31 * time.Second)

	fresh, ok, err := s.Acquire(ctx, "lock:result:1:2", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := s.Release(ctx, "lock:result:1:2", stale)
	require.NoError(t, err)
	assert.False(t, released)
	assert.True(t, mr.Exists("lock:result:1:2"))

	released, err = s.Release(ctx, "lock:result:1:2", fresh)
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, mr.Exists("lock:result:1:2"))
}
