// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/tracing"
)

// GooseMigrator applies an embedded migration set to tenant databases.
// Each call opens a short-lived connection to the target database; the
// steady-state pools stay pointed at central and the active tenant.
type GooseMigrator struct {
	dsn    string
	fsys   fs.FS
	tracer tracing.TracingInterface
	logger logging.LoggerInterface
}

func NewGooseMigrator(dsn string, fsys fs.FS, tracer tracing.TracingInterface, logger logging.LoggerInterface) *GooseMigrator {
	return &GooseMigrator{dsn: dsn, fsys: fsys, tracer: tracer, logger: logger}
}

func (g *GooseMigrator) Up(ctx context.Context, database string) error {
	ctx, span := g.tracer.Start(ctx, "lifecycle.GooseMigrator.Up")
	defer span.End()

	return g.withProvider(ctx, database, func(provider *goose.Provider) error {
		results, err := provider.Up(ctx)
		if err != nil {
			return err
		}
		for _, r := range results {
			g.logger.Infof("applied migration %s to %q in %s", r.Source.Path, database, r.Duration)
		}
		return nil
	})
}

func (g *GooseMigrator) Down(ctx context.Context, database string) error {
	ctx, span := g.tracer.Start(ctx, "lifecycle.GooseMigrator.Down")
	defer span.End()

	return g.withProvider(ctx, database, func(provider *goose.Provider) error {
		result, err := provider.Down(ctx)
		if err != nil {
			return err
		}
		g.logger.Infof("reverted migration %s on %q", result.Source.Path, database)
		return nil
	})
}

func (g *GooseMigrator) Status(ctx context.Context, database string) ([]MigrationStatus, error) {
	ctx, span := g.tracer.Start(ctx, "lifecycle.GooseMigrator.Status")
	defer span.End()

	var statuses []MigrationStatus
	err := g.withProvider(ctx, database, func(provider *goose.Provider) error {
		results, err := provider.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range results {
			status := MigrationStatus{
				Version: s.Source.Version,
				Source:  s.Source.Path,
				Applied: s.State == goose.StateApplied,
			}
			if status.Applied {
				status.AppliedAt = s.AppliedAt
			}
			statuses = append(statuses, status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return statuses, nil
}

func (g *GooseMigrator) Pending(ctx context.Context, database string) (bool, error) {
	ctx, span := g.tracer.Start(ctx, "lifecycle.GooseMigrator.Pending")
	defer span.End()

	var pending bool
	err := g.withProvider(ctx, database, func(provider *goose.Provider) error {
		var err error
		pending, err = provider.HasPending(ctx)
		return err
	})
	if err != nil {
		return false, err
	}

	return pending, nil
}

func (g *GooseMigrator) withProvider(ctx context.Context, database string, fn func(*goose.Provider) error) error {
	handle, err := g.open(ctx, database)
	if err != nil {
		return err
	}
	defer handle.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, handle, g.fsys)
	if err != nil {
		return fmt.Errorf("failed to create goose provider: %w", err)
	}

	return fn(provider)
}

func (g *GooseMigrator) open(ctx context.Context, database string) (*sql.DB, error) {
	config, err := pgx.ParseConfig(g.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	config.Database = database

	handle := stdlib.OpenDB(*config)
	if err := handle.PingContext(ctx); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to connect to database %q: %w", database, err)
	}

	return handle, nil
}
