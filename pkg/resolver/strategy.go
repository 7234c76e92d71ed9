// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package resolver turns an incoming HTTP request into a tenant.
// Strategies inspect different request signals and run in priority
// order; the first one that produces a tenant wins.
package resolver

import (
	"context"
	"net/http"

	"github.com/meridianhq/tenancy-service/internal/types"
)

// Strategy priorities. Higher runs first.
const (
	PriorityHeader = 100
	PriorityDomain = 50
)

// StrategyInterface is one way of finding the tenant a request belongs
// to. IsApplicable reports whether the request carries this strategy's
// signal at all; Resolve then either finds the tenant, finds nothing
// (nil, nil — the next strategy gets a turn), or fails hard because the
// signal was present but wrong.
type StrategyInterface interface {
	Name() string
	Priority() int
	IsApplicable(r *http.Request) bool
	CacheKey(r *http.Request) string
	Resolve(ctx context.Context, r *http.Request) (*types.Tenant, error)
}
