// Package minerhandler implements the miner-side RPC handlers: storing
// inbound feedback requests in a short-TTL cache and answering result
// polls, with a real and a simulated variant.
package minerhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/dojonet/subnet/internal/domain"
)

// DefaultFeedbackTTL is the default feedback-cache entry lifetime.
const DefaultFeedbackTTL = 10 * time.Hour

// requestCache is the minimal surface Handler needs from the TTL cache,
// satisfied by *redis.Client. A production miner runs against Redis; tests
// run against an in-memory fake.
type requestCache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Del(ctx context.Context, key string) error
}

type redisCache struct{ client *redis.Client }

// NewRedisCache wraps an already-configured *redis.Client.
func NewRedisCache(client *redis.Client) requestCache {
	return &redisCache{client: client}
}

func (r *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r *redisCache) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func feedbackKey(requestID string) string {
	return fmt.Sprintf("feedback:%s", requestID)
}

func encodeSynapse(t domain.TaskSynapse) ([]byte, error) {
	return json.Marshal(t)
}

func decodeSynapse(b []byte) (domain.TaskSynapse, error) {
	var t domain.TaskSynapse
	err := json.Unmarshal(b, &t)
	return t, err
}
