// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/tenancy-service/internal/db"
	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/monitoring"
	"github.com/meridianhq/tenancy-service/internal/tracing"
	"github.com/meridianhq/tenancy-service/internal/types"
)

type fakeEngine struct {
	existing   map[string]bool
	calls      []string
	createErr  error
	dropErr    error
	existsErr  error
	terminated []string
}

func newFakeEngine(existing ...string) *fakeEngine {
	e := &fakeEngine{existing: make(map[string]bool)}
	for _, name := range existing {
		e.existing[name] = true
	}
	return e
}

func (f *fakeEngine) DatabaseExists(ctx context.Context, name string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.existing[name], nil
}

func (f *fakeEngine) CreateDatabase(ctx context.Context, name string) error {
	f.calls = append(f.calls, "create:"+name)
	if f.createErr != nil {
		return f.createErr
	}
	f.existing[name] = true
	return nil
}

func (f *fakeEngine) DropDatabase(ctx context.Context, name string) error {
	f.calls = append(f.calls, "drop:"+name)
	if f.dropErr != nil {
		return f.dropErr
	}
	delete(f.existing, name)
	return nil
}

func (f *fakeEngine) TerminateConnections(ctx context.Context, name string) error {
	f.terminated = append(f.terminated, name)
	return nil
}

type fakeMigrator struct {
	ups     []string
	downs   []string
	upErr   error
	downErr error
	pending bool
}

func (f *fakeMigrator) Up(ctx context.Context, database string) error {
	f.ups = append(f.ups, database)
	return f.upErr
}

func (f *fakeMigrator) Down(ctx context.Context, database string) error {
	f.downs = append(f.downs, database)
	return f.downErr
}

func (f *fakeMigrator) Status(ctx context.Context, database string) ([]MigrationStatus, error) {
	return []MigrationStatus{{Version: 1, Source: "00001_init.sql", Applied: true}}, nil
}

func (f *fakeMigrator) Pending(ctx context.Context, database string) (bool, error) {
	return f.pending, nil
}

type fakeSeeder struct {
	seeded []string
	err    error
}

func (f *fakeSeeder) Seed(ctx context.Context, database string) error {
	f.seeded = append(f.seeded, database)
	return f.err
}

type staticNamer struct{ name string }

func (n staticNamer) DatabaseName(types.TenantID) string { return n.name }

func newTestManager(engine *fakeEngine, migrator *fakeMigrator, seeder *fakeSeeder, namer NamerInterface, cfg Config) *Manager {
	return NewManager(engine, migrator, seeder, namer, cfg,
		tracing.NewNoopTracer(), monitoring.NewNoopMonitor(), logging.NewNoopLogger())
}

func testTenantID(t *testing.T) types.TenantID {
	t.Helper()
	id, err := types.ParseTenantID("22222222-2222-2222-2222-222222222222")
	require.NoError(t, err)
	return id
}

func TestCreateProvisionsAndMigrates(t *testing.T) {
	engine := newFakeEngine()
	migrator := &fakeMigrator{}
	seeder := &fakeSeeder{}
	m := newTestManager(engine, migrator, seeder, staticNamer{"tenant_acme"}, Config{AutoMigrate: true, AutoSeed: true})

	err := m.Create(context.Background(), testTenantID(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"create:tenant_acme"}, engine.calls)
	assert.Equal(t, []string{"tenant_acme"}, migrator.ups)
	assert.Equal(t, []string{"tenant_acme"}, seeder.seeded)
}

func TestCreateIsIdempotent(t *testing.T) {
	engine := newFakeEngine("tenant_acme")
	migrator := &fakeMigrator{}
	m := newTestManager(engine, migrator, nil, staticNamer{"tenant_acme"}, Config{AutoMigrate: true})

	err := m.Create(context.Background(), testTenantID(t))
	require.NoError(t, err)

	// Nothing created, nothing migrated.
	assert.Empty(t, engine.calls)
	assert.Empty(t, migrator.ups)
}

func TestCreateDropsFreshDatabaseOnMigrationFailure(t *testing.T) {
	engine := newFakeEngine()
	migrator := &fakeMigrator{upErr: errors.New("bad migration")}
	m := newTestManager(engine, migrator, nil, staticNamer{"tenant_acme"}, Config{AutoMigrate: true})

	err := m.Create(context.Background(), testTenantID(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad migration")

	assert.Equal(t, []string{"create:tenant_acme", "drop:tenant_acme"}, engine.calls)
	assert.False(t, engine.existing["tenant_acme"])
}

func TestCreateDropsFreshDatabaseOnSeedFailure(t *testing.T) {
	engine := newFakeEngine()
	migrator := &fakeMigrator{}
	seeder := &fakeSeeder{err: errors.New("seed exploded")}
	m := newTestManager(engine, migrator, seeder, staticNamer{"tenant_acme"}, Config{AutoMigrate: true, AutoSeed: true})

	err := m.Create(context.Background(), testTenantID(t))
	require.Error(t, err)

	assert.Equal(t, []string{"create:tenant_acme", "drop:tenant_acme"}, engine.calls)
}

func TestCreateSurfacesOriginalErrorWhenDropFails(t *testing.T) {
	engine := newFakeEngine()
	engine.dropErr = errors.New("drop refused")
	migrator := &fakeMigrator{upErr: errors.New("bad migration")}
	m := newTestManager(engine, migrator, nil, staticNamer{"tenant_acme"}, Config{AutoMigrate: true})

	err := m.Create(context.Background(), testTenantID(t))
	require.Error(t, err)
	// The migration error wins; the failed drop is only logged.
	assert.Contains(t, err.Error(), "bad migration")
}

func TestCreateSkipsMigrationWhenDisabled(t *testing.T) {
	engine := newFakeEngine()
	migrator := &fakeMigrator{}
	m := newTestManager(engine, migrator, nil, staticNamer{"tenant_acme"}, Config{})

	err := m.Create(context.Background(), testTenantID(t))
	require.NoError(t, err)
	assert.Empty(t, migrator.ups)
}

func TestCreateRejectsInvalidDatabaseName(t *testing.T) {
	engine := newFakeEngine()
	migrator := &fakeMigrator{}
	m := newTestManager(engine, migrator, nil, staticNamer{`tenant"; DROP DATABASE central; --`}, Config{})

	err := m.Create(context.Background(), testTenantID(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid database name")
	assert.Empty(t, engine.calls)
}

func TestMigrateRequiresExistingDatabase(t *testing.T) {
	engine := newFakeEngine()
	migrator := &fakeMigrator{}
	m := newTestManager(engine, migrator, nil, staticNamer{"tenant_acme"}, Config{})

	err := m.Migrate(context.Background(), testTenantID(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, db.ErrDatabaseMissing)
	assert.Empty(t, migrator.ups)
}

func TestMigrateAppliesMigrations(t *testing.T) {
	engine := newFakeEngine("tenant_acme")
	migrator := &fakeMigrator{}
	m := newTestManager(engine, migrator, nil, staticNamer{"tenant_acme"}, Config{})

	err := m.Migrate(context.Background(), testTenantID(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant_acme"}, migrator.ups)
}

func TestMigrateFailureRollsBackOneStep(t *testing.T) {
	engine := newFakeEngine("tenant_acme")
	migrator := &fakeMigrator{upErr: errors.New("bad migration")}
	m := newTestManager(engine, migrator, nil, staticNamer{"tenant_acme"}, Config{})

	err := m.Migrate(context.Background(), testTenantID(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad migration")

	// Exactly one rollback step, no drop: the database predates this call.
	assert.Equal(t, []string{"tenant_acme"}, migrator.downs)
	assert.Empty(t, engine.calls)
}

func TestMigrateSurfacesOriginalErrorWhenRollbackFails(t *testing.T) {
	engine := newFakeEngine("tenant_acme")
	migrator := &fakeMigrator{upErr: errors.New("bad migration"), downErr: errors.New("rollback refused")}
	m := newTestManager(engine, migrator, nil, staticNamer{"tenant_acme"}, Config{})

	err := m.Migrate(context.Background(), testTenantID(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad migration")
	assert.Equal(t, []string{"tenant_acme"}, migrator.downs)
}

func TestRollbackRevertsOneMigration(t *testing.T) {
	engine := newFakeEngine("tenant_acme")
	migrator := &fakeMigrator{}
	m := newTestManager(engine, migrator, nil, staticNamer{"tenant_acme"}, Config{})

	err := m.Rollback(context.Background(), testTenantID(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant_acme"}, migrator.downs)
}

func TestDeleteTerminatesConnectionsBeforeDrop(t *testing.T) {
	engine := newFakeEngine("tenant_acme")
	m := newTestManager(engine, &fakeMigrator{}, nil, staticNamer{"tenant_acme"}, Config{})

	err := m.Delete(context.Background(), testTenantID(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"tenant_acme"}, engine.terminated)
	assert.Equal(t, []string{"drop:tenant_acme"}, engine.calls)
}

func TestDeleteMissingDatabaseIsNoop(t *testing.T) {
	engine := newFakeEngine()
	m := newTestManager(engine, &fakeMigrator{}, nil, staticNamer{"tenant_acme"}, Config{})

	err := m.Delete(context.Background(), testTenantID(t))
	require.NoError(t, err)
	assert.Empty(t, engine.calls)
	assert.Empty(t, engine.terminated)
}

func TestStatusForMissingDatabase(t *testing.T) {
	engine := newFakeEngine()
	m := newTestManager(engine, &fakeMigrator{}, nil, staticNamer{"tenant_acme"}, Config{})

	status, err := m.Status(context.Background(), testTenantID(t))
	require.NoError(t, err)
	assert.False(t, status.Exists)
	assert.Empty(t, status.Migrations)
}

func TestStatusReportsMigrations(t *testing.T) {
	engine := newFakeEngine("tenant_acme")
	migrator := &fakeMigrator{pending: true}
	m := newTestManager(engine, migrator, nil, staticNamer{"tenant_acme"}, Config{})

	status, err := m.Status(context.Background(), testTenantID(t))
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.True(t, status.Pending)
	require.Len(t, status.Migrations, 1)
	assert.EqualValues(t, 1, status.Migrations[0].Version)
}
