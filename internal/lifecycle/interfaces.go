// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package lifecycle

import (
	"context"
	"time"

	"github.com/meridianhq/tenancy-service/internal/types"
)

// EngineInterface is the database-engine side of provisioning: existence
// checks and CREATE/DROP DATABASE on the central server.
type EngineInterface interface {
	DatabaseExists(ctx context.Context, name string) (bool, error)
	CreateDatabase(ctx context.Context, name string) error
	DropDatabase(ctx context.Context, name string) error
	TerminateConnections(ctx context.Context, name string) error
}

// MigratorInterface applies schema migrations to a named tenant database.
type MigratorInterface interface {
	Up(ctx context.Context, database string) error
	Down(ctx context.Context, database string) error
	Status(ctx context.Context, database string) ([]MigrationStatus, error)
	Pending(ctx context.Context, database string) (bool, error)
}

// SeederInterface populates a freshly migrated tenant database with
// baseline data.
type SeederInterface interface {
	Seed(ctx context.Context, database string) error
}

// NamerInterface maps a tenant ID to its database name.
type NamerInterface interface {
	DatabaseName(id types.TenantID) string
}

type ManagerInterface interface {
	Create(ctx context.Context, id types.TenantID) error
	Migrate(ctx context.Context, id types.TenantID) error
	Rollback(ctx context.Context, id types.TenantID) error
	Seed(ctx context.Context, id types.TenantID) error
	Delete(ctx context.Context, id types.TenantID) error
	Status(ctx context.Context, id types.TenantID) (*DatabaseStatus, error)
}

type MigrationStatus struct {
	Version   int64     `json:"version"`
	Source    string    `json:"source"`
	Applied   bool      `json:"applied"`
	AppliedAt time.Time `json:"applied_at,omitempty"`
}

type DatabaseStatus struct {
	Database   string            `json:"database"`
	Exists     bool              `json:"exists"`
	Pending    bool              `json:"pending"`
	Migrations []MigrationStatus `json:"migrations,omitempty"`
}
