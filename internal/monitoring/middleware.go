// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/meridianhq/tenancy-service/internal/logging"
)

// Middleware is the monitoring middleware object implementing Prometheus monitoring
type Middleware struct {
	monitor MonitorInterface
	logger  logging.LoggerInterface
}

// ResponseTime reports the handler response time per route and status code.
func (mdw *Middleware) ResponseTime() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			tags := map[string]string{
				"route":  route,
				"method": r.Method,
				"status": strconv.Itoa(ww.Status()),
			}

			if err := mdw.monitor.SetResponseTimeMetric(tags, time.Since(start).Seconds()); err != nil {
				mdw.logger.Errorf("failed to set response time metric: %v", err)
			}
		})
	}
}

// NewMiddleware returns a Middleware based on the type of monitor
func NewMiddleware(monitor MonitorInterface, logger logging.LoggerInterface) *Middleware {
	mdw := new(Middleware)

	mdw.monitor = monitor
	mdw.logger = logger

	return mdw
}
