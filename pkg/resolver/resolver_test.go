// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/storage"
	"github.com/meridianhq/tenancy-service/internal/tracing"
	"github.com/meridianhq/tenancy-service/internal/types"
	"github.com/meridianhq/tenancy-service/pkg/tenantctx"
)

type fakeRegistry struct {
	tenants map[types.TenantID]*types.Tenant
	domains map[string]*types.Domain
	lookups int
}

var (
	_ storage.TenantStorageInterface = (*fakeRegistry)(nil)
	_ storage.DomainStorageInterface = (*fakeRegistry)(nil)
)

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		tenants: make(map[types.TenantID]*types.Tenant),
		domains: make(map[string]*types.Domain),
	}
}

func (f *fakeRegistry) addTenant(t *testing.T, idStr, name, domain string, active bool) *types.Tenant {
	t.Helper()
	id, err := types.ParseTenantID(idStr)
	require.NoError(t, err)

	tenant := &types.Tenant{ID: id, Name: name, Domain: domain, CreatedAt: time.Now()}
	if !active {
		now := time.Now()
		tenant.DeactivatedAt = &now
	}
	f.tenants[id] = tenant

	if domain != "" {
		f.domains[domain] = &types.Domain{ID: domain, Domain: domain, TenantID: id, IsActive: true}
	}
	return tenant
}

func (f *fakeRegistry) CreateTenant(ctx context.Context, t *types.Tenant) (*types.Tenant, error) {
	return nil, nil
}

func (f *fakeRegistry) GetTenantByID(ctx context.Context, id types.TenantID) (*types.Tenant, error) {
	f.lookups++
	tenant, ok := f.tenants[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return tenant, nil
}

func (f *fakeRegistry) ListTenants(ctx context.Context) ([]*types.Tenant, error) { return nil, nil }
func (f *fakeRegistry) UpdateTenant(ctx context.Context, t *types.Tenant, paths []string) error {
	return nil
}
func (f *fakeRegistry) DeactivateTenant(ctx context.Context, id types.TenantID) error { return nil }
func (f *fakeRegistry) DeleteTenant(ctx context.Context, id types.TenantID) error     { return nil }

func (f *fakeRegistry) CreateDomain(ctx context.Context, d *types.Domain) (*types.Domain, error) {
	return nil, nil
}

func (f *fakeRegistry) GetActiveDomain(ctx context.Context, domain string) (*types.Domain, error) {
	f.lookups++
	d, ok := f.domains[domain]
	if !ok || !d.IsActive {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

func (f *fakeRegistry) ListDomainsByTenant(ctx context.Context, id types.TenantID) ([]*types.Domain, error) {
	return nil, nil
}
func (f *fakeRegistry) SetPrimaryDomain(ctx context.Context, tenantID types.TenantID, domainID string) error {
	return nil
}
func (f *fakeRegistry) SetDomainActive(ctx context.Context, domainID string, active bool) error {
	return nil
}

const acmeID = "44444444-4444-4444-4444-444444444444"

func newTestResolver(registry *fakeRegistry, cache CacheInterface) *Resolver {
	strategies := []StrategyInterface{
		// Deliberately listed lowest-priority first; the resolver sorts.
		NewDomainStrategy([]string{"www", "api", "admin"}, registry, registry),
		NewHeaderStrategy(DefaultHeader, registry),
	}
	return NewResolver(strategies, cache, tracing.NewNoopTracer(), logging.NewNoopLogger())
}

func TestResolveByHeader(t *testing.T) {
	registry := newFakeRegistry()
	want := registry.addTenant(t, acmeID, "acme", "acme.example.com", true)
	r := newTestResolver(registry, nil)

	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/", nil)
	req.Header.Set(DefaultHeader, acmeID)

	got, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
}

func TestHeaderBeatsDomain(t *testing.T) {
	registry := newFakeRegistry()
	headerTenant := registry.addTenant(t, acmeID, "acme", "acme.example.com", true)
	registry.addTenant(t, "55555555-5555-5555-5555-555555555555", "globex", "globex.example.com", true)
	r := newTestResolver(registry, nil)

	// Host points at globex, header at acme. Header wins.
	req := httptest.NewRequest(http.MethodGet, "http://globex.example.com/", nil)
	req.Header.Set(DefaultHeader, acmeID)

	got, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, headerTenant.ID, got.ID)
}

func TestMalformedHeaderIsHardFailure(t *testing.T) {
	registry := newFakeRegistry()
	registry.addTenant(t, acmeID, "acme", "acme.example.com", true)
	r := newTestResolver(registry, nil)

	// The domain would resolve, but the bad header must not fall
	// through to it.
	req := httptest.NewRequest(http.MethodGet, "http://acme.example.com/", nil)
	req.Header.Set(DefaultHeader, "not-a-uuid")

	got, err := r.Resolve(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTenantID)
	assert.Nil(t, got)
}

func TestUnknownHeaderTenantIsHardFailure(t *testing.T) {
	registry := newFakeRegistry()
	r := newTestResolver(registry, nil)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	req.Header.Set(DefaultHeader, acmeID)

	_, err := r.Resolve(context.Background(), req)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestResolveByDomain(t *testing.T) {
	registry := newFakeRegistry()
	want := registry.addTenant(t, acmeID, "acme", "acme.example.com", true)
	r := newTestResolver(registry, nil)

	req := httptest.NewRequest(http.MethodGet, "http://ACME.example.com:8443/", nil)

	got, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
}

func TestExcludedDomainResolvesToNothing(t *testing.T) {
	registry := newFakeRegistry()
	registry.addTenant(t, acmeID, "acme", "www.example.com", true)
	r := newTestResolver(registry, nil)

	req := httptest.NewRequest(http.MethodGet, "http://www.example.com/", nil)

	got, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUnknownDomainResolvesToNothing(t *testing.T) {
	registry := newFakeRegistry()
	r := newTestResolver(registry, nil)

	req := httptest.NewRequest(http.MethodGet, "http://nobody.example.com/", nil)

	got, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeactivatedTenantDoesNotResolve(t *testing.T) {
	registry := newFakeRegistry()
	registry.addTenant(t, acmeID, "acme", "acme.example.com", false)
	r := newTestResolver(registry, nil)

	req := httptest.NewRequest(http.MethodGet, "http://acme.example.com/", nil)

	_, err := r.Resolve(context.Background(), req)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestResolveUsesCache(t *testing.T) {
	registry := newFakeRegistry()
	registry.addTenant(t, acmeID, "acme", "acme.example.com", true)
	cache := NewMemoryCache(time.Minute)
	r := newTestResolver(registry, cache)

	req := httptest.NewRequest(http.MethodGet, "http://acme.example.com/", nil)

	_, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	lookupsAfterFirst := registry.lookups

	_, err = r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, lookupsAfterFirst, registry.lookups)
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache(10 * time.Millisecond)
	id, err := types.ParseTenantID(acmeID)
	require.NoError(t, err)

	cache.Set(context.Background(), "domain:acme.example.com", &types.Tenant{ID: id})

	_, ok := cache.Get(context.Background(), "domain:acme.example.com")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = cache.Get(context.Background(), "domain:acme.example.com")
	assert.False(t, ok)
}

func TestMiddlewareSetsTenantContext(t *testing.T) {
	registry := newFakeRegistry()
	want := registry.addTenant(t, acmeID, "acme", "acme.example.com", true)
	r := newTestResolver(registry, nil)

	var got types.TenantID
	var had bool
	handler := Middleware(r, logging.NewNoopLogger())(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		got, had = tenantctx.IDFromContext(req.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "http://acme.example.com/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, had)
	assert.Equal(t, want.ID, got)
}

func TestMiddlewareRejectsInvalidHeader(t *testing.T) {
	registry := newFakeRegistry()
	r := newTestResolver(registry, nil)

	handler := Middleware(r, logging.NewNoopLogger())(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	req.Header.Set(DefaultHeader, "garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid tenant identifier")
}

func TestMiddlewarePassesThroughWithoutSignal(t *testing.T) {
	registry := newFakeRegistry()
	r := newTestResolver(registry, nil)

	var had bool
	handler := Middleware(r, logging.NewNoopLogger())(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, had = tenantctx.IDFromContext(req.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "http://nobody.example.com/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, had)
}
