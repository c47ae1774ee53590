package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/velora-app/velora/internal/config"
)

// OnlineTTL is how long a user counts as online after their last ping.
// The websocket read deadline uses the same horizon, so a silent peer
// falls offline and gets reaped together.
const OnlineTTL = 90 * time.Second

const likeCountTTL = time.Hour

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes a Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

// --- like-count cache (input to fame rating, "liked you" badge) ---

func (c *RedisCache) keyForLikeCount(profileID uint64) string {
	return fmt.Sprintf("likes:count:%d", profileID)
}

// GetLikeCount returns the cached like count, or found=false on a miss.
func (c *RedisCache) GetLikeCount(ctx context.Context, profileID uint64) (int64, bool, error) {
	key := c.keyForLikeCount(profileID)
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	// refresh TTL on access
	_ = c.Client.Expire(ctx, key, likeCountTTL).Err()
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// SetLikeCount stores the count with a TTL refresh.
func (c *RedisCache) SetLikeCount(ctx context.Context, profileID uint64, count int64) error {
	return c.Client.Set(ctx, c.keyForLikeCount(profileID), count, likeCountTTL).Err()
}

// BumpLikeCount adjusts a cached count by delta. A miss is left as a miss so
// the next read repopulates from the database.
func (c *RedisCache) BumpLikeCount(ctx context.Context, profileID uint64, delta int64) {
	key := c.keyForLikeCount(profileID)
	exists, err := c.Client.Exists(ctx, key).Result()
	if err != nil || exists == 0 {
		return
	}
	_ = c.Client.IncrBy(ctx, key, delta).Err()
	_ = c.Client.Expire(ctx, key, likeCountTTL).Err()
}

// InvalidateLikeCount drops the cached count entirely.
func (c *RedisCache) InvalidateLikeCount(ctx context.Context, profileID uint64) {
	_ = c.Client.Del(ctx, c.keyForLikeCount(profileID)).Err()
}

// --- online presence ---

func (c *RedisCache) keyForOnline(userID uint64) string {
	return fmt.Sprintf("online:%d", userID)
}

// MarkOnline records presence with the standard TTL; call again on each ping.
func (c *RedisCache) MarkOnline(ctx context.Context, userID uint64) error {
	return c.Client.Set(ctx, c.keyForOnline(userID), "1", OnlineTTL).Err()
}

// MarkOffline drops the presence key immediately.
func (c *RedisCache) MarkOffline(ctx context.Context, userID uint64) error {
	return c.Client.Del(ctx, c.keyForOnline(userID)).Err()
}

// IsOnline reports whether the presence key is still live.
func (c *RedisCache) IsOnline(ctx context.Context, userID uint64) (bool, error) {
	n, err := c.Client.Exists(ctx, c.keyForOnline(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
