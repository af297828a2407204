package storage

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache remembers crawled entry URLs and robots.txt bodies between runs.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(ctx context.Context, address string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: address,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, err
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
	}, nil
}

func (rc *RedisCache) SetCrawledURL(ctx context.Context, url string) error {
	return rc.client.Set(ctx, "crawled:"+url, "1", rc.ttl).Err()
}

func (rc *RedisCache) HasCrawledURL(ctx context.Context, url string) (bool, error) {
	exists, err := rc.client.Exists(ctx, "crawled:"+url).Result()
	return exists == 1, err
}

func (rc *RedisCache) SetRobotsTXT(ctx context.Context, domain string, content string) error {
	return rc.client.Set(ctx, "robots:"+domain, content, rc.ttl).Err()
}

// GetRobotsTXT reports found=false when nothing is cached for domain.
func (rc *RedisCache) GetRobotsTXT(ctx context.Context, domain string) (content string, found bool, err error) {
	content, err = rc.client.Get(ctx, "robots:"+domain).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return content, true, nil
}

func (rc *RedisCache) Close() error {
	return rc.client.Close()
}
