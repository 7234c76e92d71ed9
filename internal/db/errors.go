// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDatabaseMissing signals that the target logical database does
	// not exist. Callers with auto-create enabled may provision it and
	// retry the switch once.
	ErrDatabaseMissing = errors.New("target database does not exist")

	// ErrTenantUnreachable signals any other failure to target a
	// tenant database.
	ErrTenantUnreachable = errors.New("tenant database unreachable")
)

// PostgreSQL error codes
const (
	pgErrCodeInvalidCatalogName = "3D000"
)

// IsDatabaseMissingError checks if the error is a PostgreSQL invalid
// catalog name error, raised when connecting to a nonexistent database.
func IsDatabaseMissingError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrCodeInvalidCatalogName
	}
	return false
}
