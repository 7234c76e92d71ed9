// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meridianhq/tenancy-service/internal/db"
	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/tracing"
)

const (
	pgDuplicateDatabase = "42P04"
	pgInvalidCatalog    = "3D000"
)

// Engine runs database-level DDL over the central connection. CREATE
// and DROP DATABASE cannot run inside a transaction, so they bypass the
// statement builder and go straight to the underlying handle.
type Engine struct {
	client db.DBClientInterface
	tracer tracing.TracingInterface
	logger logging.LoggerInterface
}

func NewEngine(client db.DBClientInterface, tracer tracing.TracingInterface, logger logging.LoggerInterface) *Engine {
	return &Engine{client: client, tracer: tracer, logger: logger}
}

func (e *Engine) DatabaseExists(ctx context.Context, name string) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "lifecycle.Engine.DatabaseExists")
	defer span.End()

	var one int
	err := e.client.Statement(ctx).
		Select("1").
		From("pg_database").
		Where(sq.Eq{"datname": name}).
		QueryRowContext(ctx).
		Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query pg_database: %w", err)
	}

	return true, nil
}

func (e *Engine) CreateDatabase(ctx context.Context, name string) error {
	ctx, span := e.tracer.Start(ctx, "lifecycle.Engine.CreateDatabase")
	defer span.End()

	_, err := e.client.DB().ExecContext(ctx, "CREATE DATABASE "+db.QuoteIdentifier(name))
	if err != nil {
		// Lost a race with another creator; the database is there, which
		// is what we wanted.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgDuplicateDatabase {
			e.logger.Debugf("database %q created concurrently", name)
			return nil
		}
		return err
	}

	return nil
}

func (e *Engine) DropDatabase(ctx context.Context, name string) error {
	ctx, span := e.tracer.Start(ctx, "lifecycle.Engine.DropDatabase")
	defer span.End()

	_, err := e.client.DB().ExecContext(ctx, "DROP DATABASE IF EXISTS "+db.QuoteIdentifier(name))
	return err
}

// TerminateConnections kicks every session connected to the named
// database except our own backend.
func (e *Engine) TerminateConnections(ctx context.Context, name string) error {
	ctx, span := e.tracer.Start(ctx, "lifecycle.Engine.TerminateConnections")
	defer span.End()

	_, err := e.client.DB().ExecContext(ctx,
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()",
		name,
	)
	return err
}
