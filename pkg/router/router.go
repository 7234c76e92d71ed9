// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package router is the single data-access entry point for application
// code. It owns the central manager and the tenant-side switcher and
// forwards every operation to exactly one of them based on the entity
// routing table and the tenant in context.
package router

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/meridianhq/tenancy-service/internal/db"
	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/monitoring"
	"github.com/meridianhq/tenancy-service/internal/tracing"
	"github.com/meridianhq/tenancy-service/internal/types"
	"github.com/meridianhq/tenancy-service/pkg/routing"
	"github.com/meridianhq/tenancy-service/pkg/tenantctx"
)

var (
	// ErrNoTenantContext is returned when a tenant-scoped operation is
	// attempted without an active tenant. This is a configuration or
	// programming error, not a retryable condition.
	ErrNoTenantContext = errors.New("no tenant context for tenant-scoped type")
)

// ProvisionerInterface creates a tenant database on demand. Used for
// the auto-create-and-retry-once path when a switch hits a missing
// database.
type ProvisionerInterface interface {
	Create(ctx context.Context, id types.TenantID) error
}

type Config struct {
	AutoCreate bool
}

type Router struct {
	central db.DBClientInterface
	tenant  db.SwitcherInterface
	table   *routing.Table

	provisioner ProvisionerInterface
	autoCreate  bool

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewRouter(
	central db.DBClientInterface,
	tenant db.SwitcherInterface,
	table *routing.Table,
	provisioner ProvisionerInterface,
	cfg Config,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Router {
	return &Router{
		central:     central,
		tenant:      tenant,
		table:       table,
		provisioner: provisioner,
		autoCreate:  cfg.AutoCreate,
		tracer:      tracer,
		monitor:     monitor,
		logger:      logger,
	}
}

// Manager returns the persistence manager a type routes to, switching
// the tenant connection first when needed.
func (r *Router) Manager(ctx context.Context, typeName string) (db.DBClientInterface, error) {
	if r.table.Classify(typeName) == routing.ScopeCentral {
		return r.central, nil
	}

	id, ok := tenantctx.IDFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoTenantContext, typeName)
	}

	if err := r.ensureTenant(ctx, id); err != nil {
		return nil, err
	}

	return r.tenant, nil
}

// Statement returns a statement builder bound to the store the type
// routes to.
func (r *Router) Statement(ctx context.Context, typeName string) (sq.StatementBuilderType, error) {
	manager, err := r.Manager(ctx, typeName)
	if err != nil {
		return sq.StatementBuilderType{}, err
	}
	return manager.Statement(ctx), nil
}

// ensureTenant makes the tenant connection target the given tenant,
// creating the database and retrying exactly once when auto-create is
// enabled and the database is missing.
func (r *Router) ensureTenant(ctx context.Context, id types.TenantID) error {
	err := r.tenant.SwitchToTenant(ctx, id)
	if err == nil {
		return nil
	}

	if !errors.Is(err, db.ErrDatabaseMissing) || !r.autoCreate || r.provisioner == nil {
		return err
	}

	r.logger.Infof("tenant %s database missing, auto-creating", id)
	if createErr := r.provisioner.Create(ctx, id); createErr != nil {
		return fmt.Errorf("auto-create for tenant %s failed: %w", id, createErr)
	}

	return r.tenant.SwitchToTenant(ctx, id)
}

// Tx is a best-effort transaction across the central and tenant
// stores. Both sides are committed in sequence; if the central commit
// succeeds and the tenant commit fails (or vice versa) the error is
// surfaced, but the already-committed side is not undone. This is
// deliberate: there is no true distributed transaction here.
type Tx struct {
	router *Router

	centralTx   db.TxInterface
	centralStmt sq.StatementBuilderType

	tenantTx   db.TxInterface
	tenantStmt sq.StatementBuilderType

	done bool
}

// Begin opens a transaction on the central store and, when a tenant is
// active in the context, on the tenant store as well.
func (r *Router) Begin(ctx context.Context) (*Tx, error) {
	ctx, span := r.tracer.Start(ctx, "router.Begin")
	defer span.End()

	centralTx, centralStmt, err := r.central.TxStatement(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin central transaction: %w", err)
	}

	tx := &Tx{
		router:      r,
		centralTx:   centralTx,
		centralStmt: centralStmt,
	}

	if id, ok := tenantctx.IDFromContext(ctx); ok {
		if err := r.ensureTenant(ctx, id); err != nil {
			_ = centralTx.Rollback()
			return nil, err
		}

		tenantTx, tenantStmt, err := r.tenant.TxStatement(ctx)
		if err != nil {
			_ = centralTx.Rollback()
			return nil, fmt.Errorf("failed to begin tenant transaction: %w", err)
		}
		tx.tenantTx = tenantTx
		tx.tenantStmt = tenantStmt
	}

	return tx, nil
}

// Statement returns a builder bound to the transaction of the store the
// type routes to.
func (t *Tx) Statement(typeName string) (sq.StatementBuilderType, error) {
	if t.router.table.Classify(typeName) == routing.ScopeCentral {
		return t.centralStmt, nil
	}
	if t.tenantTx == nil {
		return sq.StatementBuilderType{}, fmt.Errorf("%w %q", ErrNoTenantContext, typeName)
	}
	return t.tenantStmt, nil
}

// Commit commits central first, then tenant. Any failure is returned to
// the caller; a partial commit is possible and reported.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.router.resetToCentral(ctx)

	var errs []error
	if err := t.centralTx.Commit(); err != nil {
		errs = append(errs, fmt.Errorf("central commit failed: %w", err))
	}
	if t.tenantTx != nil {
		if err := t.tenantTx.Commit(); err != nil {
			errs = append(errs, fmt.Errorf("tenant commit failed: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Rollback rolls back both sides.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.router.resetToCentral(ctx)

	var errs []error
	if err := t.centralTx.Rollback(); err != nil {
		errs = append(errs, fmt.Errorf("central rollback failed: %w", err))
	}
	if t.tenantTx != nil {
		if err := t.tenantTx.Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("tenant rollback failed: %w", err))
		}
	}

	return errors.Join(errs...)
}

// WithTransaction runs fn inside a dual transaction, committing on nil
// and rolling back on error. The tenant connection is always reset to
// central afterwards so pool reuse cannot leak a stale tenant target.
func (r *Router) WithTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	ctx, span := r.tracer.Start(ctx, "router.WithTransaction")
	defer span.End()

	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			r.logger.Errorf("rollback after error failed: %v", rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}

func (r *Router) resetToCentral(ctx context.Context) {
	if err := r.tenant.SwitchToCentral(ctx); err != nil {
		r.logger.Errorf("failed to reset connection to central: %v", err)
	}
}
