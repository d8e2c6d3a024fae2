package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"datacore/pkg/domain"
)

const redisKeyPrefix = "reviewtoken:"

// RedisStore persists review tokens in Redis so that multiple service
// instances resolve the same tokens. A zero TTL keeps tokens until they
// are revoked explicitly.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Put(ctx context.Context, token domain.ReviewToken) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode review token: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+token.Token, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store review token: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (domain.ReviewToken, bool, error) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ReviewToken{}, false, nil
	}
	if err != nil {
		return domain.ReviewToken{}, false, fmt.Errorf("load review token: %w", err)
	}
	var tok domain.ReviewToken
	if err := json.Unmarshal(payload, &tok); err != nil {
		return domain.ReviewToken{}, false, fmt.Errorf("decode review token: %w", err)
	}
	return tok, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("delete review token: %w", err)
	}
	return nil
}
