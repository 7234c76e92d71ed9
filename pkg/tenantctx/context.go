// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package tenantctx carries the active tenant of a unit of work through
// the call path. The tenant lives in a context value, never in process
// state, so concurrently executing requests and jobs stay isolated.
package tenantctx

import (
	"context"

	"github.com/meridianhq/tenancy-service/internal/types"
)

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// WithTenant returns a context carrying the tenant.
func WithTenant(ctx context.Context, tenant *types.Tenant) context.Context {
	return context.WithValue(ctx, contextKey{}, tenant)
}

// FromContext retrieves the active tenant, if any.
func FromContext(ctx context.Context) (*types.Tenant, bool) {
	tenant, ok := ctx.Value(contextKey{}).(*types.Tenant)
	if !ok || tenant == nil {
		return nil, false
	}
	return tenant, true
}

// IDFromContext retrieves just the active tenant's identifier.
func IDFromContext(ctx context.Context) (types.TenantID, bool) {
	tenant, ok := FromContext(ctx)
	if !ok {
		return types.TenantID{}, false
	}
	return tenant.ID, true
}

// Clear returns a context with no active tenant. Job runners reusing a
// base context between executions must call this at the unit-of-work
// boundary.
func Clear(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, (*types.Tenant)(nil))
}
