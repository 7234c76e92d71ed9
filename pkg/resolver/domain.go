// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/meridianhq/tenancy-service/internal/storage"
	"github.com/meridianhq/tenancy-service/internal/types"
)

// DomainStrategy resolves the tenant from the request's Host. Hosts in
// the excluded list (the platform's own surfaces: www, api, admin) never
// resolve to a tenant. An unknown host is not an error; the request
// simply proceeds without a tenant.
type DomainStrategy struct {
	excluded map[string]bool
	domains  storage.DomainStorageInterface
	tenants  storage.TenantStorageInterface
}

func NewDomainStrategy(excluded []string, domains storage.DomainStorageInterface, tenants storage.TenantStorageInterface) *DomainStrategy {
	m := make(map[string]bool, len(excluded))
	for _, e := range excluded {
		m[strings.ToLower(e)] = true
	}
	return &DomainStrategy{excluded: m, domains: domains, tenants: tenants}
}

func (s *DomainStrategy) Name() string  { return "domain" }
func (s *DomainStrategy) Priority() int { return PriorityDomain }

func (s *DomainStrategy) IsApplicable(r *http.Request) bool {
	host := normalizeHost(r.Host)
	if host == "" {
		return false
	}
	if s.excluded[host] {
		return false
	}
	// Also excluded when only the first label matches, so "www" covers
	// www.example.com.
	if label, _, found := strings.Cut(host, "."); found && s.excluded[label] {
		return false
	}
	return true
}

func (s *DomainStrategy) CacheKey(r *http.Request) string {
	return "domain:" + normalizeHost(r.Host)
}

func (s *DomainStrategy) Resolve(ctx context.Context, r *http.Request) (*types.Tenant, error) {
	host := normalizeHost(r.Host)

	domain, err := s.domains.GetActiveDomain(ctx, host)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// No tenant claims this host; nothing to resolve.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up domain %q: %w", host, err)
	}

	tenant, err := s.tenants.GetTenantByID(ctx, domain.TenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Active domain pointing at a missing tenant is an
			// inconsistency, not a fall-through.
			return nil, fmt.Errorf("%w: domain %q references tenant %s", ErrTenantNotFound, host, domain.TenantID)
		}
		return nil, fmt.Errorf("failed to load tenant %s: %w", domain.TenantID, err)
	}

	if !tenant.Active() {
		return nil, fmt.Errorf("%w: %s is deactivated", ErrTenantNotFound, tenant.ID)
	}

	return tenant, nil
}

// normalizeHost lowercases the host and strips any port.
func normalizeHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}
