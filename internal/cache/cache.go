package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadscope/leadscope/config"
	"github.com/leadscope/leadscope/internal/linkedin"
)

const profileKeyPrefix = "profile:"

// ErrMiss reports a cache miss.
var ErrMiss = errors.New("cache miss")

// Conn opens and pings a Redis client from config.
func Conn(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		DialTimeout: cfg.Timeout,
		Password:    cfg.Pass,
		DB:          cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Host, cfg.Port, err)
	}
	return client, nil
}

// ProfileCache caches scraped LinkedIn profiles by profile URL so repeated
// extracts do not re-spend RapidAPI quota.
type ProfileCache struct {
	Rdb *redis.Client
	TTL time.Duration
}

func NewProfileCache(rdb *redis.Client, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ProfileCache{Rdb: rdb, TTL: ttl}
}

func (p *ProfileCache) Get(ctx context.Context, profileURL string) (linkedin.Profile, error) {
	if p == nil || p.Rdb == nil {
		return linkedin.Profile{}, ErrMiss
	}
	val, err := p.Rdb.Get(ctx, profileKeyPrefix+profileURL).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return linkedin.Profile{}, ErrMiss
		}
		return linkedin.Profile{}, err
	}
	var prof linkedin.Profile
	if err := json.Unmarshal([]byte(val), &prof); err != nil {
		return linkedin.Profile{}, err
	}
	return prof, nil
}

func (p *ProfileCache) Set(ctx context.Context, prof linkedin.Profile) error {
	if p == nil || p.Rdb == nil || prof.ProfileURL == "" {
		return nil
	}
	data, err := json.Marshal(prof)
	if err != nil {
		return err
	}
	return p.Rdb.Set(ctx, profileKeyPrefix+prof.ProfileURL, data, p.TTL).Err()
}

// AcquireLock takes a best-effort distributed lock via SETNX. Returns false
// when another process holds it.
func AcquireLock(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (bool, error) {
	if rdb == nil {
		return true, nil
	}
	return rdb.SetNX(ctx, key, "1", ttl).Result()
}

// ReleaseLock drops a lock taken with AcquireLock.
func ReleaseLock(ctx context.Context, rdb *redis.Client, key string) {
	if rdb == nil {
		return
	}
	_ = rdb.Del(ctx, key).Err()
}
