package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zerodha/logf"
)

// RedisConsumer drains the notification list
type RedisConsumer struct {
	rdb *redis.Client
	log logf.Logger

	// BlockTimeout bounds each wait for a job so cancellation is noticed.
	BlockTimeout time.Duration
	MaxAttempts  int
}

// NewRedisConsumer creates a consumer after checking the connection.
func NewRedisConsumer(rdb *redis.Client, log logf.Logger) (*RedisConsumer, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return &RedisConsumer{
		rdb:          rdb,
		log:          log,
		BlockTimeout: time.Second,
		MaxAttempts:  DefaultMaxAttempts,
	}, nil
}

// Consume hands jobs to handler until ctx is cancelled.
func (c *RedisConsumer) Consume(ctx context.Context, handler JobHandler) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res, err := c.rdb.BLPop(ctx, c.BlockTimeout, JobsKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("Failed to pop notification job", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.BlockTimeout):
			}
			continue
		}

		// BLPop returns [key, value]
		c.process(ctx, handler, res[1])
	}
}

func (c *RedisConsumer) process(ctx context.Context, handler JobHandler, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		c.log.Error("Dropping malformed notification job", "error", err)
		c.deadLetter(ctx, raw)
		return
	}

	err := handler.HandleNotificationJob(ctx, &job)
	if err == nil {
		return
	}

	job.Attempts++
	if job.Attempts >= c.MaxAttempts {
		c.log.Error("Notification job failed, giving up", "error", err, "job_id", job.ID, "type", job.Type, "attempts", job.Attempts)
		data, _ := json.Marshal(job)
		c.deadLetter(ctx, string(data))
		return
	}

	c.log.Warn("Notification job failed, requeueing", "error", err, "job_id", job.ID, "attempts", job.Attempts)
	data, _ := json.Marshal(job)
	if err := c.rdb.RPush(ctx, JobsKey, data).Err(); err != nil {
		c.log.Error("Failed to requeue notification job", "error", err, "job_id", job.ID)
	}
}

func (c *RedisConsumer) deadLetter(ctx context.Context, raw string) {
	if err := c.rdb.RPush(ctx, DeadKey, raw).Err(); err != nil {
		c.log.Error("Failed to dead-letter notification job", "error", err)
	}
}

// Close releases the consumer. The redis client is owned by the caller.
func (c *RedisConsumer) Close() error {
	return nil
}
