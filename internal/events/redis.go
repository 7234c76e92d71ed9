// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/tracing"
)

const defaultQueueKey = "tenancy:jobs"

// RedisEnqueuer pushes jobs onto a Redis list consumed by the workers.
// Workers BRPOP, so LPUSH keeps FIFO order.
type RedisEnqueuer struct {
	client redis.UniversalClient
	queue  string
	tracer tracing.TracingInterface
	logger logging.LoggerInterface
}

func NewRedisEnqueuer(client redis.UniversalClient, queue string, tracer tracing.TracingInterface, logger logging.LoggerInterface) *RedisEnqueuer {
	if queue == "" {
		queue = defaultQueueKey
	}
	return &RedisEnqueuer{client: client, queue: queue, tracer: tracer, logger: logger}
}

func (r *RedisEnqueuer) Enqueue(ctx context.Context, job *Job) error {
	ctx, span := r.tracer.Start(ctx, "events.RedisEnqueuer.Enqueue")
	defer span.End()

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %q: %w", job.Name, err)
	}

	if err := r.client.LPush(ctx, r.queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %q: %w", job.Name, err)
	}

	return nil
}
