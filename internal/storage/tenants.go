// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/meridianhq/tenancy-service/internal/types"
)

func (s *Storage) CreateTenant(ctx context.Context, t *types.Tenant) (*types.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "storage.CreateTenant")
	defer span.End()

	id := t.ID
	if id.IsZero() {
		var err error
		id, err = types.NewTenantID()
		if err != nil {
			return nil, err
		}
	}

	row := s.db.Statement(ctx).
		Insert("tenants").
		Columns("id", "name", "domain").
		Values(id.String(), t.Name, t.Domain).
		Suffix("RETURNING id, name, domain, deactivated_at, created_at, updated_at").
		QueryRowContext(ctx)

	newTenant, err := scanTenant(row)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("tenant %q: %w", t.Name, ErrDuplicateKey)
		}
		return nil, fmt.Errorf("failed to insert tenant: %w", err)
	}

	return newTenant, nil
}

func (s *Storage) GetTenantByID(ctx context.Context, id types.TenantID) (*types.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetTenantByID")
	defer span.End()

	row := s.db.Statement(ctx).
		Select("id", "name", "domain", "deactivated_at", "created_at", "updated_at").
		From("tenants").
		Where(sq.Eq{"id": id.String()}).
		QueryRowContext(ctx)

	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return t, nil
}

func (s *Storage) ListTenants(ctx context.Context) ([]*types.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListTenants")
	defer span.End()

	rows, err := s.db.Statement(ctx).
		Select("id", "name", "domain", "deactivated_at", "created_at", "updated_at").
		From("tenants").
		OrderBy("created_at ASC").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*types.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenant rows: %w", err)
	}

	return tenants, nil
}

// UpdateTenant updates fields specified in paths, following PATCH
// semantics: only what's in paths is touched.
func (s *Storage) UpdateTenant(ctx context.Context, t *types.Tenant, paths []string) error {
	ctx, span := s.tracer.Start(ctx, "storage.UpdateTenant")
	defer span.End()

	if len(paths) == 0 {
		return nil
	}

	updateMap := make(map[string]interface{})
	for _, p := range paths {
		switch p {
		case "name":
			updateMap["name"] = t.Name
		case "domain":
			updateMap["domain"] = t.Domain
		}
	}

	if len(updateMap) == 0 {
		return nil
	}
	updateMap["updated_at"] = time.Now().UTC()

	_, err := s.db.Statement(ctx).
		Update("tenants").
		SetMap(updateMap).
		Where(sq.Eq{"id": t.ID.String()}).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}

	return nil
}

func (s *Storage) DeactivateTenant(ctx context.Context, id types.TenantID) error {
	ctx, span := s.tracer.Start(ctx, "storage.DeactivateTenant")
	defer span.End()

	now := time.Now().UTC()
	res, err := s.db.Statement(ctx).
		Update("tenants").
		Set("deactivated_at", now).
		Set("updated_at", now).
		Where(sq.Eq{"id": id.String(), "deactivated_at": nil}).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to deactivate tenant: %w", err)
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

// DeleteTenant removes the registry row and its domain aliases. Event
// logs are deliberately kept: the audit trail outlives the tenant.
func (s *Storage) DeleteTenant(ctx context.Context, id types.TenantID) error {
	ctx, span := s.tracer.Start(ctx, "storage.DeleteTenant")
	defer span.End()

	return s.db.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.db.Statement(txCtx).
			Delete("tenant_domains").
			Where(sq.Eq{"tenant_id": id.String()}).
			ExecContext(txCtx); err != nil {
			return fmt.Errorf("failed to delete tenant domains: %w", err)
		}

		if _, err := s.db.Statement(txCtx).
			Delete("tenants").
			Where(sq.Eq{"id": id.String()}).
			ExecContext(txCtx); err != nil {
			return fmt.Errorf("failed to delete tenant: %w", err)
		}

		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*types.Tenant, error) {
	var t types.Tenant
	var id string
	var deactivatedAt sql.NullTime

	if err := row.Scan(&id, &t.Name, &t.Domain, &deactivatedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}

	tenantID, err := types.ParseTenantID(id)
	if err != nil {
		return nil, err
	}
	t.ID = tenantID

	if deactivatedAt.Valid {
		t.DeactivatedAt = &deactivatedAt.Time
	}

	return &t, nil
}
