// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/tracing"
	"github.com/meridianhq/tenancy-service/internal/types"
)

// Job names understood by the background workers.
const (
	JobCreateDatabase   = "create_database"
	JobMigrateDatabase  = "migrate_database"
	JobSeedDatabase     = "seed_database"
	JobDeleteDatabase   = "delete_database"
	JobInvalidateCache  = "invalidate_resolver_cache"
	JobSetupTenant      = "setup_tenant"
	JobCleanupDatabase  = "cleanup_database"
	JobPostMigration    = "post_migration"
	JobSendNotification = "send_notification"
)

// MappingKey selects the job list for an event type in a given status.
// The same event type fans out differently depending on how it ended:
// a completed creation gets setup and notification work, a failed one
// gets cleanup and notification work.
type MappingKey struct {
	EventType string
	Status    string
}

// DefaultJobMappings maps event type/status combinations to the jobs
// they trigger, in the order they must be enqueued. The failed entries
// are what RetryFailedEvents re-drives.
func DefaultJobMappings() map[MappingKey][]string {
	return map[MappingKey][]string{
		{types.EventTenantCreated, types.EventStatusInProgress}: {JobCreateDatabase, JobMigrateDatabase, JobSeedDatabase},
		{types.EventTenantCreated, types.EventStatusCompleted}:  {JobSetupTenant, JobSendNotification},
		{types.EventTenantCreated, types.EventStatusFailed}:     {JobCreateDatabase, JobMigrateDatabase, JobSeedDatabase},

		{types.EventTenantCreationFailed, types.EventStatusFailed}: {JobCleanupDatabase, JobSendNotification},

		{types.EventTenantDeleted, types.EventStatusInProgress}: {JobDeleteDatabase, JobInvalidateCache},
		{types.EventTenantDeleted, types.EventStatusFailed}:     {JobDeleteDatabase, JobInvalidateCache},

		{types.EventMigrationStarted, types.EventStatusInProgress}:  {JobMigrateDatabase},
		{types.EventMigrationStarted, types.EventStatusFailed}:      {JobMigrateDatabase},
		{types.EventMigrationCompleted, types.EventStatusCompleted}: {JobPostMigration, JobSendNotification},
		{types.EventMigrationFailed, types.EventStatusFailed}:       {JobMigrateDatabase, JobSendNotification},

		{types.EventDomainCreated, types.EventStatusCompleted}:     {JobInvalidateCache},
		{types.EventDomainCreated, types.EventStatusFailed}:        {JobInvalidateCache},
		{types.EventDomainActivated, types.EventStatusCompleted}:   {JobInvalidateCache},
		{types.EventDomainActivated, types.EventStatusFailed}:      {JobInvalidateCache},
		{types.EventDomainDeactivated, types.EventStatusCompleted}: {JobInvalidateCache},
		{types.EventDomainDeactivated, types.EventStatusFailed}:    {JobInvalidateCache},
	}
}

type Dispatcher struct {
	tracker  TrackerInterface
	enqueuer EnqueuerInterface
	mappings map[MappingKey][]string

	tracer tracing.TracingInterface
	logger logging.LoggerInterface
}

// NewDispatcher wires the tracker to the queue. A nil mappings argument
// selects the default event-to-job table.
func NewDispatcher(
	tracker TrackerInterface,
	enqueuer EnqueuerInterface,
	mappings map[MappingKey][]string,
	tracer tracing.TracingInterface,
	logger logging.LoggerInterface,
) *Dispatcher {
	if mappings == nil {
		mappings = DefaultJobMappings()
	}
	return &Dispatcher{
		tracker:  tracker,
		enqueuer: enqueuer,
		mappings: mappings,
		tracer:   tracer,
		logger:   logger,
	}
}

func (d *Dispatcher) jobsFor(e *types.EventLog) []string {
	return d.mappings[MappingKey{EventType: e.EventType, Status: e.Status}]
}

// Dispatch enqueues the jobs mapped to the event's type and status, in
// mapping order. An enqueue failure marks the event failed;
// already-enqueued jobs are not recalled.
func (d *Dispatcher) Dispatch(ctx context.Context, e *types.EventLog) error {
	ctx, span := d.tracer.Start(ctx, "events.Dispatch")
	defer span.End()

	jobs := d.jobsFor(e)
	if len(jobs) == 0 {
		d.logger.Debugf("no jobs mapped for event %s/%s, nothing to dispatch", e.EventType, e.Status)
		return nil
	}

	return d.enqueueJobs(ctx, e, jobs)
}

func (d *Dispatcher) enqueueJobs(ctx context.Context, e *types.EventLog, jobs []string) error {
	for _, name := range jobs {
		job := &Job{
			Name:        name,
			EventID:     e.ID,
			TenantID:    e.TenantID.String(),
			EnqueuedAt:  time.Now().UTC(),
			Attempt:     1,
			MaxAttempts: DefaultMaxAttempts,
			Payload:     e.Metadata,
		}
		if err := d.enqueuer.Enqueue(ctx, job); err != nil {
			if failErr := d.tracker.Fail(ctx, e.ID, fmt.Sprintf("enqueue %s: %v", name, err)); failErr != nil {
				d.logger.Errorf("failed to mark event %s as failed: %v", e.ID, failErr)
			}
			return fmt.Errorf("failed to enqueue job %q for event %s: %w", name, e.ID, err)
		}
		d.logger.Debugf("enqueued job %q for event %s", name, e.ID)
	}

	return nil
}

// RetryFailedEvents re-dispatches every failed event with mapped jobs,
// oldest first, and returns how many were re-driven. An event whose
// type/status combination maps to no jobs is left failed untouched;
// resetting it would strand it in progress with nothing in flight. One
// event failing again does not stop the rest.
func (d *Dispatcher) RetryFailedEvents(ctx context.Context) (int, error) {
	ctx, span := d.tracer.Start(ctx, "events.RetryFailedEvents")
	defer span.End()

	failed, err := d.tracker.Failed(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list failed events: %w", err)
	}

	retried := 0
	for _, e := range failed {
		jobs := d.jobsFor(e)
		if len(jobs) == 0 {
			d.logger.Debugf("no jobs mapped for failed event %s (%s), leaving it failed", e.ID, e.EventType)
			continue
		}
		// Back to in-progress while the jobs run again.
		if err := d.tracker.UpdateStatus(ctx, e.ID, types.EventStatusInProgress); err != nil {
			d.logger.Errorf("failed to reset event %s before retry: %v", e.ID, err)
			continue
		}
		if err := d.enqueueJobs(ctx, e, jobs); err != nil {
			d.logger.Errorf("retry of event %s failed: %v", e.ID, err)
			continue
		}
		retried++
	}

	d.logger.Infof("retried %d of %d failed events", retried, len(failed))
	return retried, nil
}
