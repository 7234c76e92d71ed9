// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package lifecycle

import (
	"context"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/tracing"
)

// SQLSeeder executes the embedded seed scripts, in filename order,
// against a tenant database.
type SQLSeeder struct {
	dsn    string
	fsys   fs.FS
	tracer tracing.TracingInterface
	logger logging.LoggerInterface
}

func NewSQLSeeder(dsn string, fsys fs.FS, tracer tracing.TracingInterface, logger logging.LoggerInterface) *SQLSeeder {
	return &SQLSeeder{dsn: dsn, fsys: fsys, tracer: tracer, logger: logger}
}

func (s *SQLSeeder) Seed(ctx context.Context, database string) error {
	ctx, span := s.tracer.Start(ctx, "lifecycle.SQLSeeder.Seed")
	defer span.End()

	scripts, err := fs.Glob(s.fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("failed to list seed scripts: %w", err)
	}
	if len(scripts) == 0 {
		s.logger.Debugf("no seed scripts found, skipping seed of %q", database)
		return nil
	}
	sort.Strings(scripts)

	config, err := pgx.ParseConfig(s.dsn)
	if err != nil {
		return fmt.Errorf("failed to parse DSN: %w", err)
	}
	config.Database = database

	handle := stdlib.OpenDB(*config)
	defer handle.Close()

	for _, script := range scripts {
		contents, err := fs.ReadFile(s.fsys, script)
		if err != nil {
			return fmt.Errorf("failed to read seed script %q: %w", script, err)
		}
		if _, err := handle.ExecContext(ctx, string(contents)); err != nil {
			return fmt.Errorf("seed script %q failed on %q: %w", script, database, err)
		}
		s.logger.Infof("applied seed script %q to %q", script, database)
	}

	return nil
}
