// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package tenant

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhq/tenancy-service/internal/db"
	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/monitoring"
	"github.com/meridianhq/tenancy-service/internal/storage"
	"github.com/meridianhq/tenancy-service/internal/tracing"
	"github.com/meridianhq/tenancy-service/internal/types"
)

type Handler struct {
	service ServiceInterface
	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewHandler(
	service ServiceInterface,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Handler {
	return &Handler{
		service: service,
		tracer:  tracer,
		monitor: monitor,
		logger:  logger,
	}
}

// RegisterEndpoints mounts the admin API under the given router.
func (h *Handler) RegisterEndpoints(r chi.Router) {
	r.Route("/api/v0/tenants", func(r chi.Router) {
		r.Get("/", h.listTenants)
		r.Post("/", h.createTenant)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getTenant)
			r.Patch("/", h.updateTenant)
			r.Delete("/", h.deleteTenant)
			r.Get("/status", h.getTenantStatus)
			r.Post("/migrate", h.migrateTenant)
			r.Post("/rollback", h.rollbackTenant)
			r.Post("/seed", h.seedTenant)
			r.Get("/events", h.listEvents)

			r.Route("/domains", func(r chi.Router) {
				r.Get("/", h.listDomains)
				r.Post("/", h.addDomain)
				r.Put("/{domainID}/primary", h.setPrimaryDomain)
				r.Post("/{domainID}/activate", h.activateDomain)
				r.Post("/{domainID}/deactivate", h.deactivateDomain)
			})
		})
	})

	r.Post("/api/v0/events/retry", h.retryFailedEvents)
}

type createTenantRequest struct {
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
}

type updateTenantRequest struct {
	Name   *string `json:"name,omitempty"`
	Domain *string `json:"domain,omitempty"`
}

type addDomainRequest struct {
	Domain  string `json:"domain"`
	Primary bool   `json:"primary,omitempty"`
}

func (h *Handler) createTenant(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "tenant.Handler.createTenant")
	defer span.End()

	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	tenant, err := h.service.CreateTenant(ctx, req.Name, req.Domain)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, tenant)
}

func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "tenant.Handler.listTenants")
	defer span.End()

	tenants, err := h.service.ListTenants(ctx)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if tenants == nil {
		tenants = []*types.Tenant{}
	}

	h.writeJSON(w, http.StatusOK, tenants)
}

func (h *Handler) getTenant(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "tenant.Handler.getTenant")
	defer span.End()

	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	tenant, err := h.service.GetTenant(ctx, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, tenant)
}

func (h *Handler) updateTenant(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "tenant.Handler.updateTenant")
	defer span.End()

	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var req updateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	update := &types.Tenant{ID: id}
	var paths []string
	if req.Name != nil {
		update.Name = *req.Name
		paths = append(paths, "name")
	}
	if req.Domain != nil {
		update.Domain = *req.Domain
		paths = append(paths, "domain")
	}
	if len(paths) == 0 {
		h.writeError(w, http.StatusBadRequest, errors.New("no fields to update"))
		return
	}

	tenant, err := h.service.UpdateTenant(ctx, update, paths)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, tenant)
}

func (h *Handler) deleteTenant(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "tenant.Handler.deleteTenant")
	defer span.End()

	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteTenant(ctx, id); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getTenantStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "tenant.Handler.getTenantStatus")
	defer span.End()

	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	status, err := h.service.GetTenantStatus(ctx, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) migrateTenant(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "tenant.Handler.migrateTenant")
	defer span.End()

	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	if err := h.service.MigrateTenant(ctx, id); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "migrated"})
}

func (h *Handler) rollbackTenant(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "tenant.Handler.rollbackTenant")
	defer span.End()

	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	if err := h.service.RollbackTenant(ctx, id); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "rolled_back"})
}

func (h *Handler) seedTenant(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "tenant.Handler.seedTenant")
	defer span.End()

	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	if err := h.service.SeedTenant(ctx, id); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "seeded"})
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "tenant.Handler.listEvents")
	defer span.End()

	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	logs, err := h.service.ListEvents(ctx, id, r.URL.Query().Get("type"), r.URL.Query().Get("status"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if logs == nil {
		logs = []*types.EventLog{}
	}

	h.writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) addDomain(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "tenant.Handler.addDomain")
	defer span.End()

	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var req addDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	domain, err := h.service.AddDomain(ctx, id, req.Domain, req.Primary)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, domain)
}

func (h *Handler) listDomains(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "tenant.Handler.listDomains")
	defer span.End()

	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	domains, err := h.service.ListDomains(ctx, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if domains == nil {
		domains = []*types.Domain{}
	}

	h.writeJSON(w, http.StatusOK, domains)
}

func (h *Handler) setPrimaryDomain(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "tenant.Handler.setPrimaryDomain")
	defer span.End()

	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	if err := h.service.SetPrimaryDomain(ctx, id, chi.URLParam(r, "domainID")); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "primary"})
}

func (h *Handler) activateDomain(w http.ResponseWriter, r *http.Request) {
	h.setDomainActive(w, r, true)
}

func (h *Handler) deactivateDomain(w http.ResponseWriter, r *http.Request) {
	h.setDomainActive(w, r, false)
}

func (h *Handler) setDomainActive(w http.ResponseWriter, r *http.Request, active bool) {
	ctx, span := h.tracer.Start(r.Context(), "tenant.Handler.setDomainActive")
	defer span.End()

	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	if err := h.service.SetDomainActive(ctx, id, chi.URLParam(r, "domainID"), active); err != nil {
		h.writeServiceError(w, err)
		return
	}

	status := "activated"
	if !active {
		status = "deactivated"
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *Handler) retryFailedEvents(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "tenant.Handler.retryFailedEvents")
	defer span.End()

	retried, err := h.service.RetryFailedEvents(ctx)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int{"retried": retried})
}

func (h *Handler) tenantID(w http.ResponseWriter, r *http.Request) (types.TenantID, bool) {
	id, err := types.ParseTenantID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return types.TenantID{}, false
	}
	return id, true
}

// writeServiceError maps the service's sentinel errors to HTTP codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, storage.ErrDuplicateKey):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, ErrNameRequired), errors.Is(err, ErrInvalidDomain):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, db.ErrDatabaseMissing):
		h.writeError(w, http.StatusConflict, err)
	default:
		h.logger.Errorf("request failed: %v", err)
		h.writeError(w, http.StatusInternalServerError, err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Errorf("failed to encode response: %v", err)
	}
}
