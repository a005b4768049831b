package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"placement-prep-service/internal/domain"
)

const leaderboardKey = "leaderboard:standings"

// LeaderboardCache keeps the most recent standings in Redis so a freshly
// started instance (or a sibling behind the same balancer) can serve the
// leaderboard without a full recompute. The authoritative computation
// always happens in the service; this is a best-effort snapshot.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl}
}

func (c *LeaderboardCache) Put(ctx context.Context, entries []domain.RankedEntry) error {
	encoded, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, leaderboardKey, encoded, c.ttl).Err()
}

// Get returns the cached standings and whether a snapshot was present.
func (c *LeaderboardCache) Get(ctx context.Context) ([]domain.RankedEntry, bool, error) {
	payload, err := c.client.Get(ctx, leaderboardKey).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var entries []domain.RankedEntry
	if err := json.Unmarshal([]byte(payload), &entries); err != nil {
		return nil, false, err
	}
	return entries, true, nil
}
