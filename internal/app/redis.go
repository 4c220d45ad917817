package app

import (
	"context"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"cafetrack/internal/config"
)

// NewRedisClient connects to Redis and verifies the connection. When New
// Relic is configured, every command issued through the client is reported
// as a datastore segment on the surrounding transaction.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, nrApp *newrelic.Application) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if nrApp != nil {
		client.AddHook(redisSegmentHook{})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// redisSegmentHook records each Redis command against the New Relic
// transaction carried in the command's context, if any.
type redisSegmentHook struct{}

func (redisSegmentHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (redisSegmentHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		defer startRedisSegment(ctx, cmd.Name()).End()
		return next(ctx, cmd)
	}
}

func (redisSegmentHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		defer startRedisSegment(ctx, "pipeline").End()
		return next(ctx, cmds)
	}
}

// startRedisSegment opens a datastore segment for one command. Ending a
// zero-value segment is a no-op, so contexts without a transaction cost
// nothing.
func startRedisSegment(ctx context.Context, operation string) *newrelic.DatastoreSegment {
	segment := &newrelic.DatastoreSegment{
		Product:   newrelic.DatastoreRedis,
		Operation: operation,
	}
	if txn := newrelic.FromContext(ctx); txn != nil {
		segment.StartTime = txn.StartSegmentNow()
	}
	return segment
}
