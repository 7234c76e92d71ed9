// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package tenant is the orchestration layer: it ties the central
// registry, the database lifecycle and the event trail together behind
// one service API.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/meridianhq/tenancy-service/internal/events"
	"github.com/meridianhq/tenancy-service/internal/lifecycle"
	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/monitoring"
	"github.com/meridianhq/tenancy-service/internal/storage"
	"github.com/meridianhq/tenancy-service/internal/tracing"
	"github.com/meridianhq/tenancy-service/internal/types"
	"github.com/meridianhq/tenancy-service/pkg/resolver"
)

var (
	ErrNameRequired  = errors.New("tenant name is required")
	ErrInvalidDomain = errors.New("invalid domain name")
)

type Config struct {
	// Async defers provisioning work to the job queue instead of doing
	// it inline.
	Async bool
}

type Service struct {
	storage    storage.StorageInterface
	lifecycle  lifecycle.ManagerInterface
	tracker    events.TrackerInterface
	dispatcher events.DispatcherInterface
	cache      resolver.CacheInterface
	validate   *validator.Validate
	async      bool

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewService(
	storage storage.StorageInterface,
	lifecycle lifecycle.ManagerInterface,
	tracker events.TrackerInterface,
	dispatcher events.DispatcherInterface,
	cache resolver.CacheInterface,
	cfg Config,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Service {
	return &Service{
		storage:    storage,
		lifecycle:  lifecycle,
		tracker:    tracker,
		dispatcher: dispatcher,
		cache:      cache,
		validate:   validator.New(),
		async:      cfg.Async,
		tracer:     tracer,
		monitor:    monitor,
		logger:     logger,
	}
}

// CreateTenant registers the tenant and provisions its database. In
// sync mode a provisioning failure undoes the registration; the event
// trail keeps the failure either way.
func (s *Service) CreateTenant(ctx context.Context, name, domain string) (*types.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.CreateTenant")
	defer span.End()

	if strings.TrimSpace(name) == "" {
		return nil, ErrNameRequired
	}
	if domain != "" {
		if err := s.validate.Var(domain, "fqdn"); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
		}
	}

	created, err := s.storage.CreateTenant(ctx, &types.Tenant{Name: name, Domain: domain})
	if err != nil {
		return nil, fmt.Errorf("failed to register tenant: %w", err)
	}

	if domain != "" {
		if _, err := s.storage.CreateDomain(ctx, &types.Domain{
			Domain:    domain,
			TenantID:  created.ID,
			IsPrimary: true,
			IsActive:  true,
		}); err != nil {
			if delErr := s.storage.DeleteTenant(ctx, created.ID); delErr != nil {
				s.logger.Errorf("failed to undo registration of tenant %s: %v", created.ID, delErr)
			}
			return nil, fmt.Errorf("failed to register domain %q: %w", domain, err)
		}
	}

	event, err := s.tracker.Track(ctx, &types.EventLog{
		TenantID:  created.ID,
		EventType: types.EventTenantCreated,
		Metadata:  map[string]any{"name": name, "domain": domain},
	})
	if err != nil {
		s.logger.Errorf("failed to record creation event for tenant %s: %v", created.ID, err)
	}

	if s.async {
		if event != nil {
			if err := s.dispatcher.Dispatch(ctx, event); err != nil {
				return nil, fmt.Errorf("failed to dispatch provisioning jobs: %w", err)
			}
		}
		return created, nil
	}

	if err := s.lifecycle.Create(ctx, created.ID); err != nil {
		s.failEvent(ctx, event, err)
		s.trackTerminal(ctx, created.ID, types.EventTenantCreationFailed, types.EventStatusFailed, err)

		if delErr := s.storage.DeleteTenant(ctx, created.ID); delErr != nil {
			s.logger.Errorf("failed to undo registration of tenant %s: %v", created.ID, delErr)
		}
		return nil, fmt.Errorf("failed to provision tenant %s: %w", created.ID, err)
	}

	s.completeEvent(ctx, event)
	return created, nil
}

func (s *Service) GetTenant(ctx context.Context, id types.TenantID) (*types.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.GetTenant")
	defer span.End()

	return s.storage.GetTenantByID(ctx, id)
}

func (s *Service) ListTenants(ctx context.Context) ([]*types.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.ListTenants")
	defer span.End()

	return s.storage.ListTenants(ctx)
}

func (s *Service) UpdateTenant(ctx context.Context, tenant *types.Tenant, paths []string) (*types.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.UpdateTenant")
	defer span.End()

	if err := s.storage.UpdateTenant(ctx, tenant, paths); err != nil {
		return nil, fmt.Errorf("failed to update tenant: %w", err)
	}

	updated, err := s.storage.GetTenantByID(ctx, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get updated tenant: %w", err)
	}

	s.trackTerminal(ctx, tenant.ID, types.EventTenantUpdated, types.EventStatusCompleted, nil)
	return updated, nil
}

// DeleteTenant drops the tenant database and removes the registry
// record. Event logs survive as the audit trail.
func (s *Service) DeleteTenant(ctx context.Context, id types.TenantID) error {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.DeleteTenant")
	defer span.End()

	tenant, err := s.storage.GetTenantByID(ctx, id)
	if err != nil {
		return err
	}

	event, err := s.tracker.Track(ctx, &types.EventLog{
		TenantID:  id,
		EventType: types.EventTenantDeleted,
	})
	if err != nil {
		s.logger.Errorf("failed to record deletion event for tenant %s: %v", id, err)
	}

	if s.async {
		if event != nil {
			if err := s.dispatcher.Dispatch(ctx, event); err != nil {
				return fmt.Errorf("failed to dispatch deletion jobs: %w", err)
			}
		}
		return nil
	}

	if err := s.lifecycle.Delete(ctx, id); err != nil {
		s.failEvent(ctx, event, err)
		return fmt.Errorf("failed to drop database for tenant %s: %w", id, err)
	}

	if err := s.storage.DeleteTenant(ctx, id); err != nil {
		s.failEvent(ctx, event, err)
		return fmt.Errorf("failed to deregister tenant %s: %w", id, err)
	}

	s.invalidateDomainCache(ctx, tenant.Domain)
	s.completeEvent(ctx, event)
	return nil
}

func (s *Service) MigrateTenant(ctx context.Context, id types.TenantID) error {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.MigrateTenant")
	defer span.End()

	event, err := s.tracker.Track(ctx, &types.EventLog{
		TenantID:  id,
		EventType: types.EventMigrationStarted,
	})
	if err != nil {
		s.logger.Errorf("failed to record migration event for tenant %s: %v", id, err)
	}

	if s.async {
		if event != nil {
			if err := s.dispatcher.Dispatch(ctx, event); err != nil {
				return fmt.Errorf("failed to dispatch migration job: %w", err)
			}
		}
		return nil
	}

	if err := s.lifecycle.Migrate(ctx, id); err != nil {
		s.failEvent(ctx, event, err)
		s.trackTerminal(ctx, id, types.EventMigrationFailed, types.EventStatusFailed, err)
		return err
	}

	s.completeEvent(ctx, event)
	s.trackTerminal(ctx, id, types.EventMigrationCompleted, types.EventStatusCompleted, nil)
	return nil
}

func (s *Service) RollbackTenant(ctx context.Context, id types.TenantID) error {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.RollbackTenant")
	defer span.End()

	return s.lifecycle.Rollback(ctx, id)
}

func (s *Service) SeedTenant(ctx context.Context, id types.TenantID) error {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.SeedTenant")
	defer span.End()

	return s.lifecycle.Seed(ctx, id)
}

func (s *Service) GetTenantStatus(ctx context.Context, id types.TenantID) (*Status, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.GetTenantStatus")
	defer span.End()

	tenant, err := s.storage.GetTenantByID(ctx, id)
	if err != nil {
		return nil, err
	}

	summary, err := s.tracker.TenantStatus(ctx, id)
	if err != nil {
		return nil, err
	}

	database, err := s.lifecycle.Status(ctx, id)
	if err != nil {
		return nil, err
	}

	return &Status{Tenant: tenant, State: summary.State, Events: summary, Database: database}, nil
}

// AddDomain attaches a domain alias to the tenant. The domain must be a
// fully qualified name; raw hosts with ports or schemes are rejected.
func (s *Service) AddDomain(ctx context.Context, tenantID types.TenantID, domain string, primary bool) (*types.Domain, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.AddDomain")
	defer span.End()

	if err := s.validate.Var(domain, "required,fqdn"); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}

	if _, err := s.storage.GetTenantByID(ctx, tenantID); err != nil {
		return nil, err
	}

	created, err := s.storage.CreateDomain(ctx, &types.Domain{
		Domain:    domain,
		TenantID:  tenantID,
		IsPrimary: primary,
		IsActive:  true,
	})
	if err != nil {
		return nil, err
	}

	if primary {
		if err := s.storage.SetPrimaryDomain(ctx, tenantID, created.ID); err != nil {
			return nil, fmt.Errorf("failed to mark domain %q primary: %w", domain, err)
		}
	}

	s.trackTerminal(ctx, tenantID, types.EventDomainCreated, types.EventStatusCompleted, nil)
	s.invalidateDomainCache(ctx, domain)
	return created, nil
}

func (s *Service) ListDomains(ctx context.Context, tenantID types.TenantID) ([]*types.Domain, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.ListDomains")
	defer span.End()

	return s.storage.ListDomainsByTenant(ctx, tenantID)
}

func (s *Service) SetPrimaryDomain(ctx context.Context, tenantID types.TenantID, domainID string) error {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.SetPrimaryDomain")
	defer span.End()

	return s.storage.SetPrimaryDomain(ctx, tenantID, domainID)
}

func (s *Service) SetDomainActive(ctx context.Context, tenantID types.TenantID, domainID string, active bool) error {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.SetDomainActive")
	defer span.End()

	domain, err := s.findDomain(ctx, tenantID, domainID)
	if err != nil {
		return err
	}

	if err := s.storage.SetDomainActive(ctx, domainID, active); err != nil {
		return err
	}

	eventType := types.EventDomainActivated
	if !active {
		eventType = types.EventDomainDeactivated
	}
	s.trackTerminal(ctx, tenantID, eventType, types.EventStatusCompleted, nil)
	s.invalidateDomainCache(ctx, domain.Domain)
	return nil
}

func (s *Service) ListEvents(ctx context.Context, tenantID types.TenantID, eventType, status string) ([]*types.EventLog, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.ListEvents")
	defer span.End()

	return s.tracker.ByTenant(ctx, tenantID, eventType, status)
}

func (s *Service) RetryFailedEvents(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.RetryFailedEvents")
	defer span.End()

	return s.dispatcher.RetryFailedEvents(ctx)
}

func (s *Service) findDomain(ctx context.Context, tenantID types.TenantID, domainID string) (*types.Domain, error) {
	domains, err := s.storage.ListDomainsByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, d := range domains {
		if d.ID == domainID {
			return d, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Service) invalidateDomainCache(ctx context.Context, domain string) {
	if s.cache == nil || domain == "" {
		return
	}
	s.cache.Invalidate(ctx, "domain:"+strings.ToLower(domain))
}

func (s *Service) completeEvent(ctx context.Context, event *types.EventLog) {
	if event == nil {
		return
	}
	if err := s.tracker.Complete(ctx, event.ID); err != nil {
		s.logger.Errorf("failed to complete event %s: %v", event.ID, err)
	}
}

func (s *Service) failEvent(ctx context.Context, event *types.EventLog, cause error) {
	if event == nil {
		return
	}
	if err := s.tracker.Fail(ctx, event.ID, cause.Error()); err != nil {
		s.logger.Errorf("failed to mark event %s failed: %v", event.ID, err)
	}
}

func (s *Service) trackTerminal(ctx context.Context, id types.TenantID, eventType, status string, cause error) {
	e := &types.EventLog{TenantID: id, EventType: eventType, Status: status}
	if cause != nil {
		reason := cause.Error()
		e.FailureReason = &reason
	}
	if _, err := s.tracker.Track(ctx, e); err != nil {
		s.logger.Errorf("failed to record %s event for tenant %s: %v", eventType, id, err)
	}
}
