// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package events records tenant lifecycle events in the central store
// and turns them into background jobs.
package events

import (
	"context"
	"fmt"

	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/storage"
	"github.com/meridianhq/tenancy-service/internal/tracing"
	"github.com/meridianhq/tenancy-service/internal/types"
)

// Derived tenant states, folded from the event stream.
const (
	TenantStateProvisioning = "provisioning"
	TenantStateReady        = "ready"
	TenantStateFailed       = "failed"
	TenantStateDeleted      = "deleted"
	TenantStateUnknown      = "unknown"
)

type Tracker struct {
	storage storage.EventLogStorageInterface
	tracer  tracing.TracingInterface
	logger  logging.LoggerInterface
}

func NewTracker(storage storage.EventLogStorageInterface, tracer tracing.TracingInterface, logger logging.LoggerInterface) *Tracker {
	return &Tracker{storage: storage, tracer: tracer, logger: logger}
}

// Track records a new event. Status defaults to in-progress; terminal
// events can pass their final status directly.
func (t *Tracker) Track(ctx context.Context, e *types.EventLog) (*types.EventLog, error) {
	ctx, span := t.tracer.Start(ctx, "events.Track")
	defer span.End()

	if e.Status == "" {
		e.Status = types.EventStatusInProgress
	}

	created, err := t.storage.CreateEventLog(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("failed to record event %q: %w", e.EventType, err)
	}

	t.logger.Debugf("recorded event %s (%s) for tenant %s", created.EventType, created.ID, created.TenantID)
	return created, nil
}

func (t *Tracker) Complete(ctx context.Context, id string) error {
	ctx, span := t.tracer.Start(ctx, "events.Complete")
	defer span.End()

	return t.storage.UpdateEventLogStatus(ctx, id, types.EventStatusCompleted)
}

func (t *Tracker) UpdateStatus(ctx context.Context, id, status string) error {
	ctx, span := t.tracer.Start(ctx, "events.UpdateStatus")
	defer span.End()

	return t.storage.UpdateEventLogStatus(ctx, id, status)
}

func (t *Tracker) Fail(ctx context.Context, id, reason string) error {
	ctx, span := t.tracer.Start(ctx, "events.Fail")
	defer span.End()

	return t.storage.MarkEventLogFailed(ctx, id, reason)
}

func (t *Tracker) AddMetadata(ctx context.Context, id, key string, value any) error {
	ctx, span := t.tracer.Start(ctx, "events.AddMetadata")
	defer span.End()

	return t.storage.AddEventLogMetadata(ctx, id, key, value)
}

func (t *Tracker) ByTenant(ctx context.Context, tenantID types.TenantID, eventType, status string) ([]*types.EventLog, error) {
	ctx, span := t.tracer.Start(ctx, "events.ByTenant")
	defer span.End()

	return t.storage.ListEventLogsByTenant(ctx, tenantID, eventType, status)
}

func (t *Tracker) Failed(ctx context.Context) ([]*types.EventLog, error) {
	ctx, span := t.tracer.Start(ctx, "events.Failed")
	defer span.End()

	return t.storage.ListFailedEventLogs(ctx)
}

// TenantStatusSummary is the derived view of one tenant's event
// history: the folded state plus the flags and per-type counts the
// admin surfaces expose.
type TenantStatusSummary struct {
	State       string         `json:"state"`
	IsCreated   bool           `json:"is_created"`
	IsMigrated  bool           `json:"is_migrated"`
	HasFailures bool           `json:"has_failures"`
	Counts      map[string]int `json:"counts"`
}

// TenantStatus folds the tenant's event stream, newest first, into a
// summary. For the state the first decisive event wins: anything in
// progress means provisioning work is underway, a failure means the
// tenant needs attention, and a completed deletion is terminal. The
// flags and counts cover the whole history.
func (t *Tracker) TenantStatus(ctx context.Context, tenantID types.TenantID) (*TenantStatusSummary, error) {
	ctx, span := t.tracer.Start(ctx, "events.TenantStatus")
	defer span.End()

	logs, err := t.storage.ListEventLogsByTenant(ctx, tenantID, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to load events for tenant %s: %w", tenantID, err)
	}

	summary := &TenantStatusSummary{
		State:  TenantStateUnknown,
		Counts: make(map[string]int, len(logs)),
	}

	decided := false
	for _, e := range logs {
		summary.Counts[e.EventType]++

		if e.Status == types.EventStatusFailed {
			summary.HasFailures = true
		}
		if e.Status == types.EventStatusCompleted {
			switch e.EventType {
			case types.EventTenantCreated:
				summary.IsCreated = true
			case types.EventMigrationCompleted:
				summary.IsMigrated = true
			}
		}

		if decided {
			continue
		}
		switch {
		case e.Status == types.EventStatusInProgress:
			summary.State = TenantStateProvisioning
			decided = true
		case e.Status == types.EventStatusFailed:
			summary.State = TenantStateFailed
			decided = true
		case e.EventType == types.EventTenantDeleted && e.Status == types.EventStatusCompleted:
			summary.State = TenantStateDeleted
			decided = true
		case (e.EventType == types.EventTenantCreated || e.EventType == types.EventMigrationCompleted) &&
			e.Status == types.EventStatusCompleted:
			summary.State = TenantStateReady
			decided = true
		}
	}

	return summary, nil
}
