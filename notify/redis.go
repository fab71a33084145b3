package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/warp/obligation-engine/generic"
)

// Publisher is the slice of *goredis.Client the notifier uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
}

// RedisNotifier publishes each summary as JSON on Channel.
type RedisNotifier struct {
	rdb     Publisher
	channel string
}

func NewRedisNotifier(rdb Publisher, channel string) *RedisNotifier {
	if channel == "" {
		channel = "obligations.summary"
	}
	return &RedisNotifier{rdb: rdb, channel: channel}
}

// NewRedisClient dials addr and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// SummaryMessage is the wire form of a run summary.
type SummaryMessage struct {
	*generic.GenerationResult
	Errors []string `json:"errors,omitempty"`
}

func (n *RedisNotifier) PublishSummary(ctx context.Context, result *generic.GenerationResult) error {
	if n == nil || n.rdb == nil {
		return fmt.Errorf("redis notifier not initialized")
	}
	raw, err := json.Marshal(SummaryMessage{GenerationResult: result, Errors: result.ErrorMessages()})
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := n.rdb.Publish(ctx, n.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish summary to %s: %w", n.channel, err)
	}
	return nil
}
