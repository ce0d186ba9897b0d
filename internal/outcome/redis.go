package outcome

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes each event on the pub/sub channel <prefix>:<room code>.
type RedisSink struct {
	client *redis.Client
	prefix string
}

func NewRedisSink(addr, password string, db int, prefix string) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisSink{client: rdb, prefix: prefix}, nil
}

func Channel(prefix, code string) string {
	return prefix + ":" + code
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Send(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.client.Publish(ctx, Channel(s.prefix, ev.Code), data).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
