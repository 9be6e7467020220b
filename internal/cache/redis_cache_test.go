package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minesweeperAPI/internal/leaderboard"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, time.Minute), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	_, gen, ok, err := c.GetTop(ctx, leaderboard.Easy)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, gen)

	now := time.Now().UTC().Truncate(time.Millisecond)
	records := []*leaderboard.Record{
		{ID: 1, UserID: "u1", Username: "alice", Difficulty: leaderboard.Easy, Milliseconds: 900, CreatedAt: now},
		{ID: 2, UserID: "u2", Username: "bob", Difficulty: leaderboard.Easy, Milliseconds: 1200, CreatedAt: now},
	}
	require.NoError(t, c.SetTop(ctx, leaderboard.Easy, gen, records))

	got, _, ok, err := c.GetTop(ctx, leaderboard.Easy)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].Username)
	assert.Equal(t, 1200, got[1].Milliseconds)

	_, _, ok, _ = c.GetTop(ctx, leaderboard.Hard)
	assert.False(t, ok, "difficulties are cached independently")
}

func TestRedisCacheInvalidate(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.SetTop(ctx, leaderboard.Medium, 0, []*leaderboard.Record{}))
	require.NoError(t, c.Invalidate(ctx, leaderboard.Medium))

	_, gen, ok, err := c.GetTop(ctx, leaderboard.Medium)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), gen)
}

func TestRedisCacheSetTopAfterInvalidateIsDropped(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	_, gen, ok, err := c.GetTop(ctx, leaderboard.Easy)
	require.NoError(t, err)
	require.False(t, ok)

	// A writer commits and invalidates while the reader is loading.
	require.NoError(t, c.Invalidate(ctx, leaderboard.Easy))

	stale := []*leaderboard.Record{{ID: 1, UserID: "u1", Username: "alice", Difficulty: leaderboard.Easy, Milliseconds: 900}}
	require.NoError(t, c.SetTop(ctx, leaderboard.Easy, gen, stale))
	assert.False(t, mr.Exists(keyPrefix+"easy"))

	_, gen, ok, err = c.GetTop(ctx, leaderboard.Easy)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.SetTop(ctx, leaderboard.Easy, gen, stale))
	assert.True(t, mr.Exists(keyPrefix+"easy"))
}

func TestRedisCacheExpires(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.SetTop(ctx, leaderboard.Easy, 0, []*leaderboard.Record{}))
	assert.True(t, mr.Exists(keyPrefix+"easy"))
	mr.FastForward(2 * time.Minute)

	_, _, ok, err := c.GetTop(ctx, leaderboard.Easy)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheCorruptEntryIsMiss(t *testing.T) {
	c, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(keyPrefix+"easy", "{not json"))

	_, _, ok, err := c.GetTop(context.Background(), leaderboard.Easy)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(keyPrefix+"easy"))
}

func TestRedisCacheServerDown(t *testing.T) {
	c, mr := setupTestRedis(t)
	mr.Close()

	_, _, _, err := c.GetTop(context.Background(), leaderboard.Easy)
	assert.Error(t, err)
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Dial(context.Background(), mr.Addr())
	require.NoError(t, err)
	client.Close()
}
