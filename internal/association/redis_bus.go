package association

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBusConfig describes the Redis connection used for event transport.
type RedisBusConfig struct {
	Address   string
	Password  string
	DB        int
	List      string
	BlockWait time.Duration
}

// RedisBus carries association events over a Redis list so external
// indexers can drain them independently of this process.
type RedisBus struct {
	client *redis.Client
	list   string
	wait   time.Duration
}

// NewRedisBus connects to Redis and prepares the event list.
func NewRedisBus(cfg RedisBusConfig) (*RedisBus, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	list := cfg.List
	if list == "" {
		list = "agentbind:events"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisBus{client: client, list: list, wait: wait}, nil
}

// Publish implements Sink.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	payload, err := event.Encode()
	if err != nil {
		return err
	}
	if err := b.client.LPush(ctx, b.list, payload).Err(); err != nil {
		return fmt.Errorf("publish event to redis: %w", err)
	}
	return nil
}

// Consume implements Source using BRPOP workers.
func (b *RedisBus) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				default:
				}
				values, err := b.client.BRPop(ctx, b.wait, b.list).Result()
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
						errCh <- err
						return
					}
					if err == redis.Nil {
						continue
					}
					errCh <- fmt.Errorf("pop event from redis: %w", err)
					return
				}
				if len(values) != 2 {
					continue
				}
				event, err := DecodeEvent([]byte(values[1]))
				if err != nil {
					continue
				}
				_ = handler(ctx, event)
			}
		}()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Close releases the Redis connection.
func (b *RedisBus) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}
