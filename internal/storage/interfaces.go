// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"

	"github.com/meridianhq/tenancy-service/internal/types"
)

type StorageInterface interface {
	TenantStorageInterface
	DomainStorageInterface
	EventLogStorageInterface
}

type TenantStorageInterface interface {
	CreateTenant(ctx context.Context, t *types.Tenant) (*types.Tenant, error)
	GetTenantByID(ctx context.Context, id types.TenantID) (*types.Tenant, error)
	ListTenants(ctx context.Context) ([]*types.Tenant, error)
	UpdateTenant(ctx context.Context, t *types.Tenant, paths []string) error
	DeactivateTenant(ctx context.Context, id types.TenantID) error
	DeleteTenant(ctx context.Context, id types.TenantID) error
}

type DomainStorageInterface interface {
	CreateDomain(ctx context.Context, d *types.Domain) (*types.Domain, error)
	GetActiveDomain(ctx context.Context, domain string) (*types.Domain, error)
	ListDomainsByTenant(ctx context.Context, id types.TenantID) ([]*types.Domain, error)
	SetPrimaryDomain(ctx context.Context, tenantID types.TenantID, domainID string) error
	SetDomainActive(ctx context.Context, domainID string, active bool) error
}

type EventLogStorageInterface interface {
	CreateEventLog(ctx context.Context, e *types.EventLog) (*types.EventLog, error)
	GetEventLogByID(ctx context.Context, id string) (*types.EventLog, error)
	UpdateEventLogStatus(ctx context.Context, id, status string) error
	MarkEventLogFailed(ctx context.Context, id, reason string) error
	AddEventLogMetadata(ctx context.Context, id, key string, value any) error
	ListEventLogsByTenant(ctx context.Context, id types.TenantID, eventType, status string) ([]*types.EventLog, error)
	ListFailedEventLogs(ctx context.Context) ([]*types.EventLog, error)
}
