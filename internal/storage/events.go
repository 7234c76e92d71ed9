// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridianhq/tenancy-service/internal/types"
)

const eventLogColumns = "id, tenant_id, event_type, status, metadata, domain, failure_reason, occurred_at, created_at, updated_at"

func (s *Storage) CreateEventLog(ctx context.Context, e *types.EventLog) (*types.EventLog, error) {
	ctx, span := s.tracer.Start(ctx, "storage.CreateEventLog")
	defer span.End()

	id := e.ID
	if id == "" {
		eventID, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate event ID: %w", err)
		}
		id = eventID.String()
	}

	metadata, err := marshalMetadata(e.Metadata)
	if err != nil {
		return nil, err
	}

	occurredAt := e.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	row := s.db.Statement(ctx).
		Insert("tenant_event_logs").
		Columns("id", "tenant_id", "event_type", "status", "metadata", "domain", "failure_reason", "occurred_at").
		Values(id, e.TenantID.String(), e.EventType, e.Status, metadata, e.Domain, e.FailureReason, occurredAt).
		Suffix("RETURNING " + eventLogColumns).
		QueryRowContext(ctx)

	created, err := scanEventLog(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event log: %w", err)
	}

	return created, nil
}

func (s *Storage) GetEventLogByID(ctx context.Context, id string) (*types.EventLog, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetEventLogByID")
	defer span.End()

	row := s.db.Statement(ctx).
		Select(eventLogColumns).
		From("tenant_event_logs").
		Where(sq.Eq{"id": id}).
		QueryRowContext(ctx)

	e, err := scanEventLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event log: %w", err)
	}

	return e, nil
}

func (s *Storage) UpdateEventLogStatus(ctx context.Context, id, status string) error {
	ctx, span := s.tracer.Start(ctx, "storage.UpdateEventLogStatus")
	defer span.End()

	res, err := s.db.Statement(ctx).
		Update("tenant_event_logs").
		Set("status", status).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to update event status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *Storage) MarkEventLogFailed(ctx context.Context, id, reason string) error {
	ctx, span := s.tracer.Start(ctx, "storage.MarkEventLogFailed")
	defer span.End()

	// failure_reason column caps at 100 chars.
	if len(reason) > 100 {
		reason = reason[:100]
	}

	res, err := s.db.Statement(ctx).
		Update("tenant_event_logs").
		Set("status", types.EventStatusFailed).
		Set("failure_reason", reason).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark event as failed: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *Storage) AddEventLogMetadata(ctx context.Context, id, key string, value any) error {
	ctx, span := s.tracer.Start(ctx, "storage.AddEventLogMetadata")
	defer span.End()

	e, err := s.GetEventLogByID(ctx, id)
	if err != nil {
		return err
	}

	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value

	metadata, err := marshalMetadata(e.Metadata)
	if err != nil {
		return err
	}

	if _, err := s.db.Statement(ctx).
		Update("tenant_event_logs").
		Set("metadata", metadata).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to update event metadata: %w", err)
	}

	return nil
}

// ListEventLogsByTenant returns a tenant's events, newest first.
// eventType and status are optional filters.
func (s *Storage) ListEventLogsByTenant(ctx context.Context, id types.TenantID, eventType, status string) ([]*types.EventLog, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListEventLogsByTenant")
	defer span.End()

	query := s.db.Statement(ctx).
		Select(eventLogColumns).
		From("tenant_event_logs").
		Where(sq.Eq{"tenant_id": id.String()}).
		OrderBy("occurred_at DESC")

	if eventType != "" {
		query = query.Where(sq.Eq{"event_type": eventType})
	}
	if status != "" {
		query = query.Where(sq.Eq{"status": status})
	}

	return s.queryEventLogs(ctx, query)
}

// ListFailedEventLogs returns every currently failed event, oldest
// first, the order the retry path re-drives them in.
func (s *Storage) ListFailedEventLogs(ctx context.Context) ([]*types.EventLog, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListFailedEventLogs")
	defer span.End()

	query := s.db.Statement(ctx).
		Select(eventLogColumns).
		From("tenant_event_logs").
		Where(sq.Eq{"status": types.EventStatusFailed}).
		OrderBy("occurred_at ASC")

	return s.queryEventLogs(ctx, query)
}

func (s *Storage) queryEventLogs(ctx context.Context, query sq.SelectBuilder) ([]*types.EventLog, error) {
	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query event logs: %w", err)
	}
	defer rows.Close()

	var events []*types.EventLog
	for rows.Next() {
		e, err := scanEventLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event log: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return events, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event metadata: %w", err)
	}
	return data, nil
}

func scanEventLog(row rowScanner) (*types.EventLog, error) {
	var e types.EventLog
	var tenantID string
	var metadata []byte
	var domain, failureReason sql.NullString

	if err := row.Scan(&e.ID, &tenantID, &e.EventType, &e.Status, &metadata, &domain, &failureReason, &e.OccurredAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}

	id, err := types.ParseTenantID(tenantID)
	if err != nil {
		return nil, err
	}
	e.TenantID = id

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
		}
	}
	if domain.Valid {
		e.Domain = &domain.String
	}
	if failureReason.Valid {
		e.FailureReason = &failureReason.String
	}

	return &e, nil
}
