package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bus fans events out beyond the local process. Implementations are
// best-effort; callers log and continue on failure.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NoopBus is the single-process default.
type NoopBus struct{}

func (NoopBus) Publish(context.Context, Event) error { return nil }
func (NoopBus) Close() error                         { return nil }

// RedisBus publishes each event to a per-run pub/sub channel.
type RedisBus struct {
	client *redis.Client
}

// Channel names the pub/sub channel for a run.
func Channel(runID int64) string { return fmt.Sprintf("runs:%d:events", runID) }

// NewRedisBus connects and verifies the redis endpoint.
func NewRedisBus(ctx context.Context, url string, timeout time.Duration) (*RedisBus, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisBus{client: client}, nil
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, Channel(ev.RunID), payload).Err()
}

func (b *RedisBus) Close() error { return b.client.Close() }

// NewBus selects the bus from configuration: no URL means no-op, and a
// redis endpoint that cannot be reached degrades to no-op instead of
// blocking event store construction.
func NewBus(ctx context.Context, url string, timeout time.Duration, logger *log.Logger) Bus {
	if url == "" {
		return NoopBus{}
	}
	bus, err := NewRedisBus(ctx, url, timeout)
	if err != nil {
		if logger != nil {
			logger.Printf("redis bus unavailable, using noop: %v", err)
		}
		return NoopBus{}
	}
	return bus
}
