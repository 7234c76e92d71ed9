// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package events

import (
	"context"
	"time"

	"github.com/meridianhq/tenancy-service/internal/types"
)

// DefaultMaxAttempts bounds how often a worker may retry a job before
// it has to be re-driven through RetryFailedEvents.
const DefaultMaxAttempts = 3

// Job is the unit of background work derived from a lifecycle event.
// It carries enough for a worker to act without loading the event back.
type Job struct {
	Name        string         `json:"name"`
	EventID     string         `json:"event_id"`
	TenantID    string         `json:"tenant_id"`
	EnqueuedAt  time.Time      `json:"enqueued_at"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"max_attempts"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// EnqueuerInterface hands jobs to the background queue.
type EnqueuerInterface interface {
	Enqueue(ctx context.Context, job *Job) error
}

type TrackerInterface interface {
	Track(ctx context.Context, e *types.EventLog) (*types.EventLog, error)
	Complete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id, status string) error
	Fail(ctx context.Context, id, reason string) error
	AddMetadata(ctx context.Context, id, key string, value any) error
	ByTenant(ctx context.Context, tenantID types.TenantID, eventType, status string) ([]*types.EventLog, error)
	Failed(ctx context.Context) ([]*types.EventLog, error)
	TenantStatus(ctx context.Context, tenantID types.TenantID) (*TenantStatusSummary, error)
}

type DispatcherInterface interface {
	Dispatch(ctx context.Context, e *types.EventLog) error
	RetryFailedEvents(ctx context.Context) (int, error)
}
