// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package db

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/monitoring"
	"github.com/meridianhq/tenancy-service/internal/tracing"
	"github.com/meridianhq/tenancy-service/internal/types"
)

// Capability describes how an engine changes the active logical
// database on a live connection. Selected once from configuration.
type Capability int

const (
	// CapabilityReconnect tears down the pool and reconnects with the
	// target database in the connection parameters (PostgreSQL).
	CapabilityReconnect Capability = iota
	// CapabilityInSessionSwitch issues an in-session switch statement
	// on the existing connection (MySQL USE).
	CapabilityInSessionSwitch
)

type NamingStrategy string

const (
	NamingPrefix NamingStrategy = "prefix"
	NamingSuffix NamingStrategy = "suffix"
)

// ConnectorInterface opens and re-targets database handles. It exists
// so the switcher state machine can be exercised without a live server.
type ConnectorInterface interface {
	// Open returns a new client connected to the named database.
	Open(ctx context.Context, database string) (DBClientInterface, error)
	// Use re-targets an existing client in-session.
	Use(ctx context.Context, client DBClientInterface, database string) error
	// CentralDatabase is the database named in the base configuration.
	CentralDatabase() string
}

type SwitcherConfig struct {
	Capability Capability
	Naming     NamingStrategy
	Prefix     string
	Separator  string
}

// DatabaseName computes the logical database name for a tenant from
// the configured naming strategy.
func (c SwitcherConfig) DatabaseName(id types.TenantID) string {
	switch c.Naming {
	case NamingSuffix:
		return id.String() + c.Separator + c.Prefix
	default:
		return c.Prefix + id.String()
	}
}

// Switcher owns one connection handle and switches it between the
// central database and per-tenant databases. It is a per-unit-of-work
// object: one request or job gets its own Switcher, it must not be
// shared across concurrently executing units of work.
type Switcher struct {
	cfg       SwitcherConfig
	connector ConnectorInterface

	client  DBClientInterface
	current types.TenantID

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

var _ SwitcherInterface = (*Switcher)(nil)

// DatabaseName computes the logical database name for a tenant from
// the configured naming strategy.
func (s *Switcher) DatabaseName(id types.TenantID) string {
	return s.cfg.DatabaseName(id)
}

// CurrentTenant reports the tenant the connection currently targets.
func (s *Switcher) CurrentTenant() (types.TenantID, bool) {
	return s.current, !s.current.IsZero()
}

// SwitchToTenant re-targets the connection at the tenant's database.
// A no-op when already on that tenant.
func (s *Switcher) SwitchToTenant(ctx context.Context, id types.TenantID) error {
	ctx, span := s.tracer.Start(ctx, "db.Switcher.SwitchToTenant")
	defer span.End()

	if s.current == id {
		return nil
	}

	previous := s.currentDatabase()
	target := s.DatabaseName(id)

	if err := s.switchTo(ctx, target); err != nil {
		if IsDatabaseMissingError(err) {
			return fmt.Errorf("tenant %s: %w", id, ErrDatabaseMissing)
		}
		return fmt.Errorf("tenant %s: %w: %v", id, ErrTenantUnreachable, err)
	}

	s.current = id
	s.logger.Infof("switched connection from %q to %q for tenant %s", previous, target, id)
	return nil
}

// SwitchToCentral returns the connection to the configured central
// database. A no-op when not on a tenant.
func (s *Switcher) SwitchToCentral(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "db.Switcher.SwitchToCentral")
	defer span.End()

	if s.current.IsZero() {
		return nil
	}

	previous := s.currentDatabase()
	target := s.connector.CentralDatabase()

	if err := s.switchTo(ctx, target); err != nil {
		return fmt.Errorf("failed to switch back to central database: %w", err)
	}

	s.current = types.TenantID{}
	s.logger.Infof("switched connection from %q to %q (central)", previous, target)
	return nil
}

func (s *Switcher) switchTo(ctx context.Context, database string) error {
	switch s.cfg.Capability {
	case CapabilityInSessionSwitch:
		return s.connector.Use(ctx, s.client, database)
	default:
		client, err := s.connector.Open(ctx, database)
		if err != nil {
			return err
		}
		if s.client != nil {
			s.client.Close()
		}
		s.client = client
		return nil
	}
}

func (s *Switcher) currentDatabase() string {
	if s.current.IsZero() {
		return s.connector.CentralDatabase()
	}
	return s.DatabaseName(s.current)
}

func (s *Switcher) Statement(ctx context.Context) sq.StatementBuilderType {
	return s.client.Statement(ctx)
}

func (s *Switcher) TxStatement(ctx context.Context) (TxInterface, sq.StatementBuilderType, error) {
	return s.client.TxStatement(ctx)
}

func (s *Switcher) BeginTx(ctx context.Context) (context.Context, TxInterface, error) {
	return s.client.BeginTx(ctx)
}

func (s *Switcher) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return s.client.WithTx(ctx, fn)
}

func (s *Switcher) DB() *sql.DB {
	return s.client.DB()
}

func (s *Switcher) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// NewSwitcher creates a Switcher targeting the central database.
func NewSwitcher(ctx context.Context, cfg SwitcherConfig, connector ConnectorInterface, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) (*Switcher, error) {
	client, err := connector.Open(ctx, connector.CentralDatabase())
	if err != nil {
		return nil, fmt.Errorf("failed to open central connection: %w", err)
	}

	s := new(Switcher)
	s.cfg = cfg
	s.connector = connector
	s.client = client

	s.tracer = tracer
	s.monitor = monitor
	s.logger = logger

	return s, nil
}
