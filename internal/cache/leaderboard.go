package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"rewards.ledger/internal/store"
)

const (
	leaderboardPrefix   = "rewards:leaderboard:"
	leaderboardIndexKey = leaderboardPrefix + "keys"
)

// Leaderboard caches ranked leaderboard pages in Redis. Every cached limit is
// tracked in one set so Invalidate can drop them together.
type Leaderboard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboard(client *redis.Client, ttl time.Duration) *Leaderboard {
	return &Leaderboard{client: client, ttl: ttl}
}

func leaderboardKey(limit int) string {
	return leaderboardPrefix + strconv.Itoa(limit)
}

// Get reports ok=false on a cache miss.
func (l *Leaderboard) Get(ctx context.Context, limit int) ([]store.LeaderboardEntry, bool, error) {
	data, err := l.client.Get(ctx, leaderboardKey(limit)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "redis get leaderboard")
	}

	var entries []store.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false, errors.Wrap(err, "decode cached leaderboard")
	}
	return entries, true, nil
}

func (l *Leaderboard) Set(ctx context.Context, limit int, entries []store.LeaderboardEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "encode leaderboard")
	}

	key := leaderboardKey(limit)
	pipe := l.client.TxPipeline()
	pipe.Set(ctx, key, data, l.ttl)
	pipe.SAdd(ctx, leaderboardIndexKey, key)
	pipe.Expire(ctx, leaderboardIndexKey, l.ttl)
	_, err = pipe.Exec(ctx)
	return errors.Wrap(err, "redis set leaderboard")
}

func (l *Leaderboard) Invalidate(ctx context.Context) error {
	keys, err := l.client.SMembers(ctx, leaderboardIndexKey).Result()
	if err != nil {
		return errors.Wrap(err, "redis list leaderboard keys")
	}
	keys = append(keys, leaderboardIndexKey)
	return errors.Wrap(l.client.Del(ctx, keys...).Err(), "redis invalidate leaderboard")
}
