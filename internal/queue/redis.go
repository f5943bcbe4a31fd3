package queue

import (
	"context"
	"fmt"
	"time"

	"aerotool/internal/logger"

	"github.com/garyburd/redigo/redis"
)

const (
	redisPollSeconds = 1
	redisRetryDelay  = time.Second
)

// RedisBroker is a reliable list queue. Producers LPUSH onto the queue
// key; the consumer atomically moves the oldest entry onto a processing
// list with BRPOPLPUSH and removes it from there once settled. Entries
// left on the processing list by a crashed consumer are moved back on the
// next Consume, which is where at-least-once redelivery comes from.
type RedisBroker struct {
	pool          *redis.Pool
	key           string
	processingKey string
	logger        *logger.Logger
}

func NewRedisBroker(rawURL, name string, log *logger.Logger) *RedisBroker {
	return &RedisBroker{
		pool: &redis.Pool{
			MaxIdle:     3,
			IdleTimeout: 240 * time.Second,
			Dial: func() (redis.Conn, error) {
				return redis.DialURL(rawURL)
			},
		},
		key:           name,
		processingKey: name + ":processing",
		logger:        log,
	}
}

func (b *RedisBroker) Publish(_ context.Context, body []byte) error {
	conn := b.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("LPUSH", b.key, body); err != nil {
		return fmt.Errorf("failed to push message: %w", err)
	}
	return nil
}

func (b *RedisBroker) Consume(ctx context.Context, handle Handler) error {
	recovered, err := b.recoverInFlight()
	if err != nil {
		return err
	}
	if recovered > 0 {
		b.logger.Warning("Moved %d unacknowledged message(s) back to %s", recovered, b.key)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		body, err := b.pop()
		if err == redis.ErrNil {
			continue
		}
		if err != nil {
			b.logger.Error("Error reading from %s: %v", b.key, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(redisRetryDelay):
			}
			continue
		}

		if err := b.settle(body, handle(ctx, body)); err != nil {
			return err
		}
	}
}

func (b *RedisBroker) Close() error {
	return b.pool.Close()
}

func (b *RedisBroker) pop() ([]byte, error) {
	conn := b.pool.Get()
	defer conn.Close()
	return redis.Bytes(conn.Do("BRPOPLPUSH", b.key, b.processingKey, redisPollSeconds))
}

func (b *RedisBroker) settle(body []byte, outcome Outcome) error {
	conn := b.pool.Get()
	defer conn.Close()

	switch outcome {
	case Requeue:
		// back onto the consuming end so it is the next one delivered
		conn.Send("MULTI")
		conn.Send("LREM", b.processingKey, 1, body)
		conn.Send("RPUSH", b.key, body)
		if _, err := conn.Do("EXEC"); err != nil {
			return fmt.Errorf("failed to requeue message: %w", err)
		}
	default:
		if _, err := conn.Do("LREM", b.processingKey, 1, body); err != nil {
			return fmt.Errorf("failed to %s message: %w", outcome, err)
		}
	}
	return nil
}

func (b *RedisBroker) recoverInFlight() (int, error) {
	conn := b.pool.Get()
	defer conn.Close()

	moved := 0
	for {
		_, err := redis.Bytes(conn.Do("RPOPLPUSH", b.processingKey, b.key))
		if err == redis.ErrNil {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("failed to recover in-flight messages: %w", err)
		}
		moved++
	}
}
