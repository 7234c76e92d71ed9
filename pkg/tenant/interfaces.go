// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package tenant

import (
	"context"

	"github.com/meridianhq/tenancy-service/internal/events"
	"github.com/meridianhq/tenancy-service/internal/lifecycle"
	"github.com/meridianhq/tenancy-service/internal/types"
)

type ServiceInterface interface {
	CreateTenant(ctx context.Context, name, domain string) (*types.Tenant, error)
	GetTenant(ctx context.Context, id types.TenantID) (*types.Tenant, error)
	ListTenants(ctx context.Context) ([]*types.Tenant, error)
	UpdateTenant(ctx context.Context, t *types.Tenant, paths []string) (*types.Tenant, error)
	DeleteTenant(ctx context.Context, id types.TenantID) error

	MigrateTenant(ctx context.Context, id types.TenantID) error
	RollbackTenant(ctx context.Context, id types.TenantID) error
	SeedTenant(ctx context.Context, id types.TenantID) error
	GetTenantStatus(ctx context.Context, id types.TenantID) (*Status, error)

	AddDomain(ctx context.Context, tenantID types.TenantID, domain string, primary bool) (*types.Domain, error)
	ListDomains(ctx context.Context, tenantID types.TenantID) ([]*types.Domain, error)
	SetPrimaryDomain(ctx context.Context, tenantID types.TenantID, domainID string) error
	SetDomainActive(ctx context.Context, tenantID types.TenantID, domainID string, active bool) error

	ListEvents(ctx context.Context, tenantID types.TenantID, eventType, status string) ([]*types.EventLog, error)
	RetryFailedEvents(ctx context.Context) (int, error)
}

// Status aggregates the registry record, the derived event state and
// the physical database state for one tenant.
type Status struct {
	Tenant   *types.Tenant               `json:"tenant"`
	State    string                      `json:"state"`
	Events   *events.TenantStatusSummary `json:"events"`
	Database *lifecycle.DatabaseStatus   `json:"database"`
}
