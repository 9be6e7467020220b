// Package cache keeps read-mostly leaderboard views out of the database.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"minesweeperAPI/internal/leaderboard"
)

const DefaultTTL = 30 * time.Second

const (
	keyPrefix = "minesweeper:top:"
	genPrefix = "minesweeper:topgen:"
)

// TopCache stores the top list of each difficulty. A miss is reported with
// ok == false and a nil error, together with the generation the caller must
// hand back to SetTop.
type TopCache interface {
	GetTop(ctx context.Context, d leaderboard.Difficulty) (records []*leaderboard.Record, gen int64, ok bool, err error)
	// SetTop stores records only if no Invalidate happened since gen was read.
	SetTop(ctx context.Context, d leaderboard.Difficulty, gen int64, records []*leaderboard.Record) error
	Invalidate(ctx context.Context, d leaderboard.Difficulty) error
}

// setIfCurrent writes the list only while the generation still matches.
var setIfCurrent = redis.NewScript(`
local cur = redis.call("GET", KEYS[2])
if not cur then cur = "0" end
if cur ~= ARGV[1] then return 0 end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Dial connects to addr and verifies the server answers.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return client, nil
}

func key(d leaderboard.Difficulty) string    { return keyPrefix + d.String() }
func genKey(d leaderboard.Difficulty) string { return genPrefix + d.String() }

func (c *RedisCache) GetTop(ctx context.Context, d leaderboard.Difficulty) ([]*leaderboard.Record, int64, bool, error) {
	vals, err := c.client.MGet(ctx, key(d), genKey(d)).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to read cached top list: %w", err)
	}

	var gen int64
	if s, ok := vals[1].(string); ok {
		if gen, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, 0, false, fmt.Errorf("bad top list generation %q: %w", s, err)
		}
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, false, nil
	}
	var records []*leaderboard.Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		// A corrupt entry is treated as a miss and dropped.
		c.client.Del(ctx, key(d))
		return nil, gen, false, nil
	}
	return records, gen, true, nil
}

func (c *RedisCache) SetTop(ctx context.Context, d leaderboard.Difficulty, gen int64, records []*leaderboard.Record) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	err = setIfCurrent.Run(ctx, c.client,
		[]string{key(d), genKey(d)},
		strconv.FormatInt(gen, 10), string(raw), c.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to cache top list: %w", err)
	}
	return nil
}

// Invalidate drops the list and bumps the generation, so a reader that loaded
// from the database before the change cannot write its copy back.
func (c *RedisCache) Invalidate(ctx context.Context, d leaderboard.Difficulty) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(d))
		pipe.Del(ctx, key(d))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate top list: %w", err)
	}
	return nil
}

// Nop never hits. It stands in when no Redis address is configured.
type Nop struct{}

func (Nop) GetTop(context.Context, leaderboard.Difficulty) ([]*leaderboard.Record, int64, bool, error) {
	return nil, 0, false, nil
}

func (Nop) SetTop(context.Context, leaderboard.Difficulty, int64, []*leaderboard.Record) error {
	return nil
}

func (Nop) Invalidate(context.Context, leaderboard.Difficulty) error { return nil }
