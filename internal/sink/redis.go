package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/devblac/block-fetcher/internal/chain"
)

type listPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

type redisSender struct {
	client listPusher
	closer func() error
	key    string
}

// NewRedisSender pushes each block as JSON onto a redis list.
func NewRedisSender(ctx context.Context, addr, key string, db int) (Sender, error) {
	if addr == "" || key == "" {
		return nil, fmt.Errorf("redis addr and key required")
	}
	rdc := redis.NewClient(&redis.Options{
		Addr:        addr,
		DB:          db,
		ReadTimeout: time.Second * 20,
	})
	if err := rdc.Ping(ctx).Err(); err != nil {
		_ = rdc.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisSender{client: rdc, closer: rdc.Close, key: key}, nil
}

func (s *redisSender) Send(ctx context.Context, data *chain.BlockData) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	if err := s.client.RPush(ctx, s.key, body).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", s.key, err)
	}
	return nil
}

func (s *redisSender) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
