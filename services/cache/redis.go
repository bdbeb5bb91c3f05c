package cachesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/mafunzo/mafunzo/core"
)

type redisCache struct {
	client *redis.Client
}

var _ core.Cache = (*redisCache)(nil)

func NewRedisCache(conf *core.Config) *redisCache {
	return &redisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		}),
	}
}

// NewRedisCacheFromClient is used by tests to plug a miniredis-backed client.
func NewRedisCacheFromClient(client *redis.Client) *redisCache {
	return &redisCache{client: client}
}

func (c redisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "getting cached value")
	}
	if err = json.Unmarshal(data, dest); err != nil {
		return false, errors.Wrap(err, "unmarshalling cached value")
	}
	return true, nil
}

func (c redisCache) Set(ctx context.Context, key string, val interface{}, ttl time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return errors.Wrap(err, "marshalling value")
	}
	if err = c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return errors.Wrap(err, "caching value")
	}
	return nil
}

func (c redisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "deleting cached value")
	}
	return nil
}
