// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package resolver

import (
	"context"
	"net/http"
	"sort"

	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/tracing"
	"github.com/meridianhq/tenancy-service/internal/types"
)

type ResolverInterface interface {
	Resolve(ctx context.Context, r *http.Request) (*types.Tenant, error)
}

// Resolver runs the configured strategies highest priority first. A
// strategy whose signal is absent is skipped; one that finds nothing
// yields to the next; one that errors stops resolution entirely.
type Resolver struct {
	strategies []StrategyInterface
	cache      CacheInterface

	tracer tracing.TracingInterface
	logger logging.LoggerInterface
}

// NewResolver sorts the strategies by descending priority once. cache
// may be nil to disable caching.
func NewResolver(strategies []StrategyInterface, cache CacheInterface, tracer tracing.TracingInterface, logger logging.LoggerInterface) *Resolver {
	sorted := make([]StrategyInterface, len(strategies))
	copy(sorted, strategies)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})

	return &Resolver{strategies: sorted, cache: cache, tracer: tracer, logger: logger}
}

// Resolve returns the request's tenant, or (nil, nil) when no strategy
// produced one and none failed.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*types.Tenant, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.Resolve")
	defer span.End()

	for _, strategy := range r.strategies {
		if !strategy.IsApplicable(req) {
			continue
		}

		key := strategy.CacheKey(req)
		if r.cache != nil && key != "" {
			if tenant, ok := r.cache.Get(ctx, key); ok {
				return tenant, nil
			}
		}

		tenant, err := strategy.Resolve(ctx, req)
		if err != nil {
			r.logger.Debugf("strategy %q failed for %s: %v", strategy.Name(), req.Host, err)
			return nil, err
		}
		if tenant == nil {
			continue
		}

		if r.cache != nil && key != "" {
			r.cache.Set(ctx, key, tenant)
		}

		r.logger.Debugf("resolved tenant %s via %q strategy", tenant.ID, strategy.Name())
		return tenant, nil
	}

	return nil, nil
}
