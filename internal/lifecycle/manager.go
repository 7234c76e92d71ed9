// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package lifecycle provisions, migrates and tears down per-tenant
// databases against the central database server.
package lifecycle

import (
	"context"
	"fmt"
	"regexp"

	"github.com/meridianhq/tenancy-service/internal/db"
	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/monitoring"
	"github.com/meridianhq/tenancy-service/internal/tracing"
	"github.com/meridianhq/tenancy-service/internal/types"
)

// Database names are built from config plus the tenant ID; anything
// outside this set would need quoting games we refuse to play.
var validDatabaseName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Postgres truncates identifiers beyond this silently, which would make
// two tenants collide on one database.
const maxDatabaseNameLen = 63

type Config struct {
	AutoMigrate bool
	AutoSeed    bool
}

type Manager struct {
	engine   EngineInterface
	migrator MigratorInterface
	seeder   SeederInterface
	namer    NamerInterface

	autoMigrate bool
	autoSeed    bool

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewManager(
	engine EngineInterface,
	migrator MigratorInterface,
	seeder SeederInterface,
	namer NamerInterface,
	cfg Config,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Manager {
	return &Manager{
		engine:      engine,
		migrator:    migrator,
		seeder:      seeder,
		namer:       namer,
		autoMigrate: cfg.AutoMigrate,
		autoSeed:    cfg.AutoSeed,
		tracer:      tracer,
		monitor:     monitor,
		logger:      logger,
	}
}

// Create provisions the tenant's database. Creating a database that
// already exists is a no-op, so concurrent and repeated calls are safe.
// If migration or seeding of a freshly created database fails, the
// database is dropped again before the error is returned, so a failed
// provisioning never leaves a half-initialized database behind.
func (m *Manager) Create(ctx context.Context, id types.TenantID) error {
	ctx, span := m.tracer.Start(ctx, "lifecycle.Create")
	defer span.End()

	name, err := m.databaseName(id)
	if err != nil {
		return err
	}

	exists, err := m.engine.DatabaseExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check database %q: %w", name, err)
	}
	if exists {
		m.logger.Debugf("database %q already exists, skipping create", name)
		return nil
	}

	if err := m.engine.CreateDatabase(ctx, name); err != nil {
		return fmt.Errorf("failed to create database %q: %w", name, err)
	}
	m.logger.Infof("created database %q for tenant %s", name, id)

	if m.autoMigrate {
		if err := m.migrator.Up(ctx, name); err != nil {
			m.dropFreshDatabase(ctx, name)
			return fmt.Errorf("failed to migrate database %q: %w", name, err)
		}
	}

	if m.autoSeed && m.seeder != nil {
		if err := m.seeder.Seed(ctx, name); err != nil {
			m.dropFreshDatabase(ctx, name)
			return fmt.Errorf("failed to seed database %q: %w", name, err)
		}
	}

	return nil
}

// dropFreshDatabase undoes a create after a later provisioning step
// failed. Attempted once; a failed drop is logged, not retried.
func (m *Manager) dropFreshDatabase(ctx context.Context, name string) {
	m.logger.Infof("rolling back freshly created database %q", name)
	if err := m.engine.DropDatabase(ctx, name); err != nil {
		m.logger.Errorf("rollback of database %q failed, manual cleanup needed: %v", name, err)
	}
}

// Migrate applies pending migrations to an existing tenant database.
// A failed batch gets exactly one rollback step so the database is not
// left mid-batch; the rollback outcome is logged separately from the
// migration error, which is what the caller sees.
func (m *Manager) Migrate(ctx context.Context, id types.TenantID) error {
	ctx, span := m.tracer.Start(ctx, "lifecycle.Migrate")
	defer span.End()

	name, err := m.existingDatabaseName(ctx, id)
	if err != nil {
		return err
	}

	if err := m.migrator.Up(ctx, name); err != nil {
		m.rollbackLastMigration(ctx, name)
		return fmt.Errorf("failed to migrate database %q: %w", name, err)
	}

	m.logger.Infof("migrated database %q", name)
	return nil
}

// rollbackLastMigration reverts the most recent migration step after a
// failed batch. Attempted once; failure is logged, not retried.
func (m *Manager) rollbackLastMigration(ctx context.Context, name string) {
	if err := m.migrator.Down(ctx, name); err != nil {
		m.logger.Errorf("rollback step on %q failed after migration error: %v", name, err)
		return
	}
	m.logger.Infof("rolled back last migration on %q after failed batch", name)
}

// Rollback reverts the most recent migration on the tenant database.
func (m *Manager) Rollback(ctx context.Context, id types.TenantID) error {
	ctx, span := m.tracer.Start(ctx, "lifecycle.Rollback")
	defer span.End()

	name, err := m.existingDatabaseName(ctx, id)
	if err != nil {
		return err
	}

	if err := m.migrator.Down(ctx, name); err != nil {
		return fmt.Errorf("failed to roll back database %q: %w", name, err)
	}

	return nil
}

// Seed loads baseline data into the tenant database.
func (m *Manager) Seed(ctx context.Context, id types.TenantID) error {
	ctx, span := m.tracer.Start(ctx, "lifecycle.Seed")
	defer span.End()

	if m.seeder == nil {
		return fmt.Errorf("no seeder configured")
	}

	name, err := m.existingDatabaseName(ctx, id)
	if err != nil {
		return err
	}

	if err := m.seeder.Seed(ctx, name); err != nil {
		return fmt.Errorf("failed to seed database %q: %w", name, err)
	}

	return nil
}

// Delete drops the tenant database. Open connections to it are
// terminated first, otherwise the drop blocks behind them. Deleting a
// database that does not exist is a no-op.
func (m *Manager) Delete(ctx context.Context, id types.TenantID) error {
	ctx, span := m.tracer.Start(ctx, "lifecycle.Delete")
	defer span.End()

	name, err := m.databaseName(id)
	if err != nil {
		return err
	}

	exists, err := m.engine.DatabaseExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check database %q: %w", name, err)
	}
	if !exists {
		m.logger.Debugf("database %q does not exist, nothing to delete", name)
		return nil
	}

	if err := m.engine.TerminateConnections(ctx, name); err != nil {
		return fmt.Errorf("failed to terminate connections to %q: %w", name, err)
	}

	if err := m.engine.DropDatabase(ctx, name); err != nil {
		return fmt.Errorf("failed to drop database %q: %w", name, err)
	}

	m.logger.Infof("dropped database %q for tenant %s", name, id)
	return nil
}

// Status reports whether the tenant database exists and how far its
// migrations have been applied.
func (m *Manager) Status(ctx context.Context, id types.TenantID) (*DatabaseStatus, error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.Status")
	defer span.End()

	name, err := m.databaseName(id)
	if err != nil {
		return nil, err
	}

	status := &DatabaseStatus{Database: name}

	exists, err := m.engine.DatabaseExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database %q: %w", name, err)
	}
	status.Exists = exists
	if !exists {
		return status, nil
	}

	migrations, err := m.migrator.Status(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get migration status for %q: %w", name, err)
	}
	status.Migrations = migrations

	pending, err := m.migrator.Pending(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending migrations for %q: %w", name, err)
	}
	status.Pending = pending

	return status, nil
}

func (m *Manager) databaseName(id types.TenantID) (string, error) {
	name := m.namer.DatabaseName(id)
	if !validDatabaseName.MatchString(name) || len(name) > maxDatabaseNameLen {
		return "", fmt.Errorf("invalid database name %q for tenant %s", name, id)
	}
	return name, nil
}

func (m *Manager) existingDatabaseName(ctx context.Context, id types.TenantID) (string, error) {
	name, err := m.databaseName(id)
	if err != nil {
		return "", err
	}

	exists, err := m.engine.DatabaseExists(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to check database %q: %w", name, err)
	}
	if !exists {
		return "", fmt.Errorf("database %q: %w", name, db.ErrDatabaseMissing)
	}

	return name, nil
}
