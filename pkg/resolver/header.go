// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/meridianhq/tenancy-service/internal/storage"
	"github.com/meridianhq/tenancy-service/internal/types"
)

// DefaultHeader is the request header checked by the header strategy.
const DefaultHeader = "X-Tenant-ID"

var (
	// ErrInvalidTenantID means the tenant header was present but not a
	// valid identifier. The request explicitly named a tenant and got it
	// wrong, so this is a hard failure, not a fall-through.
	ErrInvalidTenantID = errors.New("invalid tenant identifier")

	// ErrTenantNotFound means the identified tenant does not exist or is
	// deactivated.
	ErrTenantNotFound = errors.New("tenant not found")
)

// HeaderStrategy resolves the tenant from an explicit ID header. This
// is the API-client path: the caller says exactly which tenant it
// means, so any mistake is an error rather than a reason to guess.
type HeaderStrategy struct {
	header  string
	tenants storage.TenantStorageInterface
}

func NewHeaderStrategy(header string, tenants storage.TenantStorageInterface) *HeaderStrategy {
	if header == "" {
		header = DefaultHeader
	}
	return &HeaderStrategy{header: header, tenants: tenants}
}

func (s *HeaderStrategy) Name() string  { return "header" }
func (s *HeaderStrategy) Priority() int { return PriorityHeader }

func (s *HeaderStrategy) IsApplicable(r *http.Request) bool {
	return r.Header.Get(s.header) != ""
}

func (s *HeaderStrategy) CacheKey(r *http.Request) string {
	return "id:" + r.Header.Get(s.header)
}

func (s *HeaderStrategy) Resolve(ctx context.Context, r *http.Request) (*types.Tenant, error) {
	raw := r.Header.Get(s.header)

	id, err := types.ParseTenantID(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTenantID, raw)
	}

	tenant, err := s.tenants.GetTenantByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
		}
		return nil, fmt.Errorf("failed to load tenant %s: %w", id, err)
	}

	if !tenant.Active() {
		return nil, fmt.Errorf("%w: %s is deactivated", ErrTenantNotFound, id)
	}

	return tenant, nil
}
