// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package resolver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/pkg/tenantctx"
)

// Middleware resolves the tenant for every request and stores it in the
// request context. Requests that explicitly name a bad tenant are
// rejected; requests with no tenant signal pass through untouched and
// run against the central store.
func Middleware(resolver ResolverInterface, logger logging.LoggerInterface) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant, err := resolver.Resolve(r.Context(), r)
			if err != nil {
				status := http.StatusInternalServerError
				switch {
				case errors.Is(err, ErrInvalidTenantID):
					status = http.StatusBadRequest
				case errors.Is(err, ErrTenantNotFound):
					status = http.StatusNotFound
				default:
					logger.Errorf("tenant resolution failed: %v", err)
				}
				writeResolutionError(w, status, err)
				return
			}

			if tenant != nil {
				r = r.WithContext(tenantctx.WithTenant(r.Context(), tenant))
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeResolutionError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
