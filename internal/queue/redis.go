// Package queue consumes listing job envelopes from a shared Redis list
// queue with crash-safe visibility: dequeueing atomically moves the envelope
// into an in-flight list, where it stays until the job reaches a terminal
// outcome. Envelopes found in-flight at startup prove a prior process died
// mid-job and are requeued.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/crosslister/listing-worker/internal/config"
	"github.com/crosslister/listing-worker/internal/jobs"
)

// RedisQueue implements the pending/in-flight list pair on Redis. Producers
// LPUSH envelopes onto the pending list; the worker BLMOVEs them from the
// tail into the in-flight list in a single atomic operation, which is what
// makes multiple worker processes safe against duplicate processing.
type RedisQueue struct {
	client        redis.Cmdable
	log           *slog.Logger
	queueKey      string
	processingKey string
	pollInterval  time.Duration
}

func NewRedisQueue(client redis.Cmdable, log *slog.Logger, cfg config.RedisConfig) *RedisQueue {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &RedisQueue{
		client:        client,
		log:           log,
		queueKey:      cfg.QueueKey,
		processingKey: cfg.ProcessingKey,
		pollInterval:  pollInterval,
	}
}

// Dequeue blocks up to the poll interval for the next envelope, atomically
// moving it into the in-flight list. ok is false when the poll timed out
// with nothing available.
func (q *RedisQueue) Dequeue(ctx context.Context) (raw string, ok bool, err error) {
	raw, err = q.client.BLMove(ctx, q.queueKey, q.processingKey, "RIGHT", "LEFT", q.pollInterval).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("blmove: %w", err)
	}
	return raw, true, nil
}

// Ack removes a terminally processed (or dropped) envelope from the
// in-flight list.
func (q *RedisQueue) Ack(ctx context.Context, raw string) error {
	if err := q.client.LRem(ctx, q.processingKey, 1, raw).Err(); err != nil {
		return fmt.Errorf("lrem in-flight: %w", err)
	}
	return nil
}

// RecoverOrphans requeues every envelope left in the in-flight list by a
// crashed worker. Recovered envelopes are pushed to the consuming end of the
// pending list so they run before new work.
func (q *RedisQueue) RecoverOrphans(ctx context.Context) (int, error) {
	stuck, err := q.client.LRange(ctx, q.processingKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("lrange in-flight: %w", err)
	}
	if len(stuck) == 0 {
		return 0, nil
	}
	for _, raw := range stuck {
		if err := q.client.RPush(ctx, q.queueKey, raw).Err(); err != nil {
			return 0, fmt.Errorf("requeue orphan: %w", err)
		}
	}
	if err := q.client.Del(ctx, q.processingKey).Err(); err != nil {
		return 0, fmt.Errorf("clear in-flight: %w", err)
	}
	return len(stuck), nil
}

// Enqueue wraps a job request in an envelope and pushes it onto the pending
// queue. The worker itself never enqueues; this exists for tooling and
// tests.
func (q *RedisQueue) Enqueue(ctx context.Context, req jobs.JobRequest) (string, error) {
	env := jobs.Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal job request: %w", err)
	}
	env.Data = data
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	if err := q.client.LPush(ctx, q.queueKey, raw).Err(); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	return env.ID, nil
}
