// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/monitoring"
	"github.com/meridianhq/tenancy-service/internal/tracing"
)

var _ ConnectorInterface = (*PgxConnector)(nil)

// PgxConnector opens pgx-backed handles against a base DSN, swapping
// only the database name. PostgreSQL has no in-session database switch,
// so Use reports the capability mismatch instead of guessing.
type PgxConnector struct {
	cfg     Config
	central string

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func (c *PgxConnector) Open(ctx context.Context, database string) (DBClientInterface, error) {
	cfg := c.cfg
	cfg.Database = database
	return NewDBClient(cfg, c.tracer, c.monitor, c.logger)
}

func (c *PgxConnector) Use(ctx context.Context, client DBClientInterface, database string) error {
	return fmt.Errorf("in-session database switch is not supported by postgres, use %v", CapabilityReconnect)
}

func (c *PgxConnector) CentralDatabase() string {
	return c.central
}

// QuoteIdentifier quotes a database identifier for use in DDL, where
// placeholders are not accepted.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func NewPgxConnector(cfg Config, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) (*PgxConnector, error) {
	parsed, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("DSN validation failed: %v", err)
	}

	c := new(PgxConnector)
	c.cfg = cfg
	c.central = parsed.ConnConfig.Database

	c.tracer = tracer
	c.monitor = monitor
	c.logger = logger

	return c, nil
}
