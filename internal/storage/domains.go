// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridianhq/tenancy-service/internal/types"
)

const domainColumns = "id, domain, tenant_id, is_primary, is_active, created_at, updated_at, deactivated_at"

func (s *Storage) CreateDomain(ctx context.Context, d *types.Domain) (*types.Domain, error) {
	ctx, span := s.tracer.Start(ctx, "storage.CreateDomain")
	defer span.End()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate domain ID: %w", err)
	}

	row := s.db.Statement(ctx).
		Insert("tenant_domains").
		Columns("id", "domain", "tenant_id", "is_primary", "is_active").
		Values(id.String(), strings.ToLower(d.Domain), d.TenantID.String(), d.IsPrimary, d.IsActive).
		Suffix("RETURNING " + domainColumns).
		QueryRowContext(ctx)

	created, err := scanDomain(row)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("domain %q: %w", d.Domain, ErrDuplicateKey)
		}
		if IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("tenant %s: %w", d.TenantID, ErrForeignKeyViolation)
		}
		return nil, fmt.Errorf("failed to insert domain: %w", err)
	}

	return created, nil
}

// GetActiveDomain looks up an active domain alias by exact
// case-insensitive match.
func (s *Storage) GetActiveDomain(ctx context.Context, domain string) (*types.Domain, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetActiveDomain")
	defer span.End()

	row := s.db.Statement(ctx).
		Select(domainColumns).
		From("tenant_domains").
		Where(sq.Eq{"domain": strings.ToLower(domain), "is_active": true}).
		QueryRowContext(ctx)

	d, err := scanDomain(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get domain: %w", err)
	}

	return d, nil
}

func (s *Storage) ListDomainsByTenant(ctx context.Context, id types.TenantID) ([]*types.Domain, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListDomainsByTenant")
	defer span.End()

	rows, err := s.db.Statement(ctx).
		Select(domainColumns).
		From("tenant_domains").
		Where(sq.Eq{"tenant_id": id.String()}).
		OrderBy("created_at ASC").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	defer rows.Close()

	var domains []*types.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		domains = append(domains, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return domains, nil
}

// SetPrimaryDomain marks one domain as the tenant's primary. The unset
// of the previous primary and the set of the new one happen in a single
// transaction so there is never more than one primary among the
// tenant's active domains.
func (s *Storage) SetPrimaryDomain(ctx context.Context, tenantID types.TenantID, domainID string) error {
	ctx, span := s.tracer.Start(ctx, "storage.SetPrimaryDomain")
	defer span.End()

	return s.db.WithTx(ctx, func(txCtx context.Context) error {
		now := time.Now().UTC()

		if _, err := s.db.Statement(txCtx).
			Update("tenant_domains").
			Set("is_primary", false).
			Set("updated_at", now).
			Where(sq.Eq{"tenant_id": tenantID.String(), "is_primary": true}).
			ExecContext(txCtx); err != nil {
			return fmt.Errorf("failed to unset previous primary domain: %w", err)
		}

		res, err := s.db.Statement(txCtx).
			Update("tenant_domains").
			Set("is_primary", true).
			Set("updated_at", now).
			Where(sq.Eq{"id": domainID, "tenant_id": tenantID.String(), "is_active": true}).
			ExecContext(txCtx)
		if err != nil {
			return fmt.Errorf("failed to set primary domain: %w", err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rows == 0 {
			return ErrNotFound
		}

		return nil
	})
}

func (s *Storage) SetDomainActive(ctx context.Context, domainID string, active bool) error {
	ctx, span := s.tracer.Start(ctx, "storage.SetDomainActive")
	defer span.End()

	now := time.Now().UTC()
	query := s.db.Statement(ctx).
		Update("tenant_domains").
		Set("is_active", active).
		Set("updated_at", now).
		Where(sq.Eq{"id": domainID})

	if active {
		query = query.Set("deactivated_at", nil)
	} else {
		// A deactivated domain cannot stay primary.
		query = query.Set("deactivated_at", now).Set("is_primary", false)
	}

	res, err := query.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to update domain: %w", err)
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

func scanDomain(row rowScanner) (*types.Domain, error) {
	var d types.Domain
	var tenantID string
	var deactivatedAt sql.NullTime

	if err := row.Scan(&d.ID, &d.Domain, &tenantID, &d.IsPrimary, &d.IsActive, &d.CreatedAt, &d.UpdatedAt, &deactivatedAt); err != nil {
		return nil, err
	}

	id, err := types.ParseTenantID(tenantID)
	if err != nil {
		return nil, err
	}
	d.TenantID = id

	if deactivatedAt.Valid {
		d.DeactivatedAt = &deactivatedAt.Time
	}

	return &d, nil
}
