// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package router

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/tenancy-service/internal/db"
	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/monitoring"
	"github.com/meridianhq/tenancy-service/internal/tracing"
	"github.com/meridianhq/tenancy-service/internal/types"
	"github.com/meridianhq/tenancy-service/pkg/routing"
	"github.com/meridianhq/tenancy-service/pkg/tenantctx"
)

type fakeTx struct {
	commitErr   error
	rollbackErr error
	committed   bool
	rolledBack  bool
}

func (f *fakeTx) Commit() error {
	f.committed = true
	return f.commitErr
}

func (f *fakeTx) Rollback() error {
	f.rolledBack = true
	return f.rollbackErr
}

func (f *fakeTx) Exec(query string, args ...interface{}) (sql.Result, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTx) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return nil, errors.New("not implemented")
}

type fakeManager struct {
	name       string
	statements int
	tx         *fakeTx
	beginErr   error
}

func (f *fakeManager) Statement(context.Context) sq.StatementBuilderType {
	f.statements++
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

func (f *fakeManager) TxStatement(context.Context) (db.TxInterface, sq.StatementBuilderType, error) {
	if f.beginErr != nil {
		return nil, sq.StatementBuilderType{}, f.beginErr
	}
	f.tx = &fakeTx{}
	return f.tx, sq.StatementBuilder.PlaceholderFormat(sq.Dollar), nil
}

func (f *fakeManager) BeginTx(ctx context.Context) (context.Context, db.TxInterface, error) {
	tx, _, err := f.TxStatement(ctx)
	return ctx, tx, err
}

func (f *fakeManager) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (f *fakeManager) DB() *sql.DB { return nil }
func (f *fakeManager) Close()      {}

type fakeSwitcher struct {
	fakeManager
	current     types.TenantID
	switches    []string
	switchErr   error
	missingOnce bool
}

func (f *fakeSwitcher) SwitchToTenant(ctx context.Context, id types.TenantID) error {
	if f.missingOnce {
		f.missingOnce = false
		return db.ErrDatabaseMissing
	}
	if f.switchErr != nil {
		return f.switchErr
	}
	f.current = id
	f.switches = append(f.switches, "tenant:"+id.String())
	return nil
}

func (f *fakeSwitcher) SwitchToCentral(ctx context.Context) error {
	f.current = types.TenantID{}
	f.switches = append(f.switches, "central")
	return nil
}

func (f *fakeSwitcher) CurrentTenant() (types.TenantID, bool) {
	return f.current, !f.current.IsZero()
}

func (f *fakeSwitcher) DatabaseName(id types.TenantID) string {
	return "tenant_" + id.String()
}

type fakeProvisioner struct {
	created []types.TenantID
	err     error
}

func (f *fakeProvisioner) Create(ctx context.Context, id types.TenantID) error {
	f.created = append(f.created, id)
	return f.err
}

func newTestRouter(central *fakeManager, tenant *fakeSwitcher, provisioner ProvisionerInterface, autoCreate bool) *Router {
	table := routing.NewTable(nil, []string{"orders"}, logging.NewNoopLogger())
	return NewRouter(central, tenant, table, provisioner, Config{AutoCreate: autoCreate},
		tracing.NewNoopTracer(), monitoring.NewNoopMonitor(), logging.NewNoopLogger())
}

func tenantContext(t *testing.T) (context.Context, types.TenantID) {
	t.Helper()
	id, err := types.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	return tenantctx.WithTenant(context.Background(), &types.Tenant{ID: id, Name: "acme"}), id
}

func TestManagerCentralType(t *testing.T) {
	central := &fakeManager{name: "central"}
	tenant := &fakeSwitcher{}
	r := newTestRouter(central, tenant, nil, false)

	// Central types never need a tenant in context.
	m, err := r.Manager(context.Background(), "tenants")
	require.NoError(t, err)
	assert.Same(t, central, m.(*fakeManager))
	assert.Empty(t, tenant.switches)
}

func TestManagerTenantTypeWithoutContext(t *testing.T) {
	central := &fakeManager{name: "central"}
	tenant := &fakeSwitcher{}
	r := newTestRouter(central, tenant, nil, false)

	_, err := r.Manager(context.Background(), "orders")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoTenantContext)
	assert.Contains(t, err.Error(), "orders")
}

func TestManagerTenantTypeReachesTenantStore(t *testing.T) {
	central := &fakeManager{name: "central"}
	tenant := &fakeSwitcher{}
	r := newTestRouter(central, tenant, nil, false)

	ctx, id := tenantContext(t)
	m, err := r.Manager(ctx, "orders")
	require.NoError(t, err)

	assert.Same(t, tenant, m.(*fakeSwitcher))
	assert.Equal(t, []string{"tenant:" + id.String()}, tenant.switches)
	// Never the central one.
	assert.Zero(t, central.statements)
}

func TestManagerAutoCreateRetriesOnce(t *testing.T) {
	central := &fakeManager{name: "central"}
	tenant := &fakeSwitcher{missingOnce: true}
	provisioner := &fakeProvisioner{}
	r := newTestRouter(central, tenant, provisioner, true)

	ctx, id := tenantContext(t)
	_, err := r.Manager(ctx, "orders")
	require.NoError(t, err)

	assert.Equal(t, []types.TenantID{id}, provisioner.created)
	assert.Equal(t, []string{"tenant:" + id.String()}, tenant.switches)
}

func TestManagerMissingDatabaseWithoutAutoCreate(t *testing.T) {
	central := &fakeManager{name: "central"}
	tenant := &fakeSwitcher{missingOnce: true}
	r := newTestRouter(central, tenant, nil, false)

	ctx, _ := tenantContext(t)
	_, err := r.Manager(ctx, "orders")
	require.Error(t, err)
	assert.ErrorIs(t, err, db.ErrDatabaseMissing)
}

func TestWithTransactionCommitsBoth(t *testing.T) {
	central := &fakeManager{name: "central"}
	tenant := &fakeSwitcher{}
	r := newTestRouter(central, tenant, nil, false)

	ctx, _ := tenantContext(t)
	err := r.WithTransaction(ctx, func(tx *Tx) error {
		_, err := tx.Statement("tenants")
		require.NoError(t, err)
		_, err = tx.Statement("orders")
		require.NoError(t, err)
		return nil
	})
	require.NoError(t, err)

	assert.True(t, central.tx.committed)
	assert.True(t, tenant.tx.committed)
	// Connection returns to central after the transaction.
	assert.Equal(t, "central", tenant.switches[len(tenant.switches)-1])
}

func TestWithTransactionCentralOnly(t *testing.T) {
	central := &fakeManager{name: "central"}
	tenant := &fakeSwitcher{}
	r := newTestRouter(central, tenant, nil, false)

	err := r.WithTransaction(context.Background(), func(tx *Tx) error {
		_, err := tx.Statement("tenants")
		require.NoError(t, err)

		// Tenant-scoped statements are rejected without a tenant.
		_, err = tx.Statement("orders")
		assert.ErrorIs(t, err, ErrNoTenantContext)
		return nil
	})
	require.NoError(t, err)

	assert.True(t, central.tx.committed)
	assert.Nil(t, tenant.tx)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	central := &fakeManager{name: "central"}
	tenant := &fakeSwitcher{}
	r := newTestRouter(central, tenant, nil, false)

	ctx, _ := tenantContext(t)
	boom := errors.New("boom")
	err := r.WithTransaction(ctx, func(tx *Tx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.True(t, central.tx.rolledBack)
	assert.True(t, tenant.tx.rolledBack)
	assert.Equal(t, "central", tenant.switches[len(tenant.switches)-1])
}

func TestCommitPartialFailureIsSurfaced(t *testing.T) {
	// The dual commit is best-effort: when the central commit succeeds
	// and the tenant commit fails, the caller sees the failure even
	// though central data is already committed.
	central := &fakeManager{name: "central"}
	tenant := &fakeSwitcher{}
	r := newTestRouter(central, tenant, nil, false)

	ctx, _ := tenantContext(t)
	tx, err := r.Begin(ctx)
	require.NoError(t, err)
	tenant.tx.commitErr = errors.New("tenant db gone")

	err = tx.Commit(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant commit failed")

	assert.True(t, central.tx.committed)
	assert.Equal(t, "central", tenant.switches[len(tenant.switches)-1])
}

func TestBeginFailureRollsBackCentral(t *testing.T) {
	central := &fakeManager{name: "central"}
	tenant := &fakeSwitcher{}
	tenant.beginErr = errors.New("cannot begin")
	r := newTestRouter(central, tenant, nil, false)

	ctx, _ := tenantContext(t)
	_, err := r.Begin(ctx)
	require.Error(t, err)
	assert.True(t, central.tx.rolledBack)
}
