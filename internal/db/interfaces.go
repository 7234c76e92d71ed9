// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package db

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"github.com/meridianhq/tenancy-service/internal/types"
)

type DBClientInterface interface {
	Statement(context.Context) sq.StatementBuilderType
	TxStatement(context.Context) (TxInterface, sq.StatementBuilderType, error)
	BeginTx(context.Context) (context.Context, TxInterface, error)
	WithTx(context.Context, func(context.Context) error) error
	DB() *sql.DB
	Close()
}

type TxInterface interface {
	Commit() error
	Rollback() error
	sq.BaseRunner
}

// SwitcherInterface is the manager surface of a connection that can be
// re-targeted between the central database and per-tenant databases.
type SwitcherInterface interface {
	DBClientInterface
	SwitchToTenant(ctx context.Context, id types.TenantID) error
	SwitchToCentral(ctx context.Context) error
	CurrentTenant() (types.TenantID, bool)
	DatabaseName(id types.TenantID) string
}
