// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/monitoring"
	"github.com/meridianhq/tenancy-service/internal/tracing"
	"github.com/meridianhq/tenancy-service/internal/types"
)

type fakeClient struct {
	database string
	closed   bool
}

func (f *fakeClient) Statement(context.Context) sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

func (f *fakeClient) TxStatement(context.Context) (TxInterface, sq.StatementBuilderType, error) {
	return nil, sq.StatementBuilderType{}, errors.New("not implemented")
}

func (f *fakeClient) BeginTx(ctx context.Context) (context.Context, TxInterface, error) {
	return ctx, nil, errors.New("not implemented")
}

func (f *fakeClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (f *fakeClient) DB() *sql.DB { return nil }

func (f *fakeClient) Close() { f.closed = true }

type fakeConnector struct {
	central   string
	missing   map[string]bool
	openErr   error
	opened    []string
	useCalled []string
	clients   []*fakeClient
}

func (f *fakeConnector) Open(ctx context.Context, database string) (DBClientInterface, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.missing[database] {
		return nil, &pgconn.PgError{Code: "3D000"}
	}
	f.opened = append(f.opened, database)
	c := &fakeClient{database: database}
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *fakeConnector) Use(ctx context.Context, client DBClientInterface, database string) error {
	f.useCalled = append(f.useCalled, database)
	return nil
}

func (f *fakeConnector) CentralDatabase() string { return f.central }

func newTestSwitcher(t *testing.T, cfg SwitcherConfig, connector ConnectorInterface) *Switcher {
	t.Helper()
	s, err := NewSwitcher(context.Background(), cfg, connector, tracing.NewNoopTracer(), monitoring.NewNoopMonitor(), logging.NewNoopLogger())
	require.NoError(t, err)
	return s
}

func TestSwitcherDatabaseName(t *testing.T) {
	id, err := types.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)

	testCases := []struct {
		name     string
		cfg      SwitcherConfig
		expected string
	}{
		{
			name:     "prefix strategy",
			cfg:      SwitcherConfig{Naming: NamingPrefix, Prefix: "tenant_"},
			expected: "tenant_11111111-1111-1111-1111-111111111111",
		},
		{
			name:     "suffix strategy",
			cfg:      SwitcherConfig{Naming: NamingSuffix, Prefix: "tenant", Separator: "_"},
			expected: "11111111-1111-1111-1111-111111111111_tenant",
		},
		{
			name:     "unknown strategy defaults to prefix",
			cfg:      SwitcherConfig{Naming: "bogus", Prefix: "t_"},
			expected: "t_11111111-1111-1111-1111-111111111111",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestSwitcher(t, tc.cfg, &fakeConnector{central: "app"})
			assert.Equal(t, tc.expected, s.DatabaseName(id))
		})
	}
}

func TestSwitcherSwitchToTenant(t *testing.T) {
	id, err := types.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)

	connector := &fakeConnector{central: "app"}
	s := newTestSwitcher(t, SwitcherConfig{Naming: NamingPrefix, Prefix: "tenant_"}, connector)

	require.NoError(t, s.SwitchToTenant(context.Background(), id))

	current, ok := s.CurrentTenant()
	assert.True(t, ok)
	assert.Equal(t, id, current)
	// The initial central handle plus the tenant handle.
	assert.Equal(t, []string{"app", "tenant_" + id.String()}, connector.opened)
	assert.True(t, connector.clients[0].closed)

	// Switching again to the same tenant is a no-op.
	require.NoError(t, s.SwitchToTenant(context.Background(), id))
	assert.Len(t, connector.opened, 2)
}

func TestSwitcherSwitchToCentral(t *testing.T) {
	id, err := types.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)

	connector := &fakeConnector{central: "app"}
	s := newTestSwitcher(t, SwitcherConfig{Naming: NamingPrefix, Prefix: "tenant_"}, connector)

	// No-op when already central.
	require.NoError(t, s.SwitchToCentral(context.Background()))
	assert.Len(t, connector.opened, 1)

	require.NoError(t, s.SwitchToTenant(context.Background(), id))
	require.NoError(t, s.SwitchToCentral(context.Background()))

	_, ok := s.CurrentTenant()
	assert.False(t, ok)
	assert.Equal(t, []string{"app", "tenant_" + id.String(), "app"}, connector.opened)
}

func TestSwitcherDatabaseMissing(t *testing.T) {
	id, err := types.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)

	connector := &fakeConnector{
		central: "app",
		missing: map[string]bool{"tenant_" + id.String(): true},
	}
	s := newTestSwitcher(t, SwitcherConfig{Naming: NamingPrefix, Prefix: "tenant_"}, connector)

	err = s.SwitchToTenant(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDatabaseMissing)
	assert.Contains(t, err.Error(), id.String())

	// The switcher stays on central after a failed switch.
	_, ok := s.CurrentTenant()
	assert.False(t, ok)
}

func TestSwitcherUnreachable(t *testing.T) {
	id, err := types.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)

	connector := &fakeConnector{central: "app"}
	s := newTestSwitcher(t, SwitcherConfig{Naming: NamingPrefix, Prefix: "tenant_"}, connector)
	connector.openErr = errors.New("connection refused")

	err = s.SwitchToTenant(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTenantUnreachable)
	assert.Contains(t, err.Error(), id.String())
}

func TestSwitcherInSessionCapability(t *testing.T) {
	id, err := types.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)

	connector := &fakeConnector{central: "app"}
	s := newTestSwitcher(t, SwitcherConfig{
		Capability: CapabilityInSessionSwitch,
		Naming:     NamingPrefix,
		Prefix:     "tenant_",
	}, connector)

	require.NoError(t, s.SwitchToTenant(context.Background(), id))
	assert.Equal(t, []string{"tenant_" + id.String()}, connector.useCalled)
	// In-session switching keeps the original handle.
	assert.Len(t, connector.opened, 1)
	assert.False(t, connector.clients[0].closed)
}
