package tenancy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenancy/internal/auth"
	"tenancy/internal/model"
	"tenancy/internal/storage"
)

type fakeLookup struct {
	tenants map[uuid.UUID]*model.Tenant
	calls   int
}

func (f *fakeLookup) GetTenantByID(_ context.Context, id uuid.UUID) (*model.Tenant, error) {
	f.calls++
	if t, ok := f.tenants[id]; ok {
		return t, nil
	}
	return nil, storage.ErrTenantNotFound
}

func newFakeLookup(tenants ...*model.Tenant) *fakeLookup {
	f := &fakeLookup{tenants: make(map[uuid.UUID]*model.Tenant)}
	for _, t := range tenants {
		f.tenants[t.ID] = t
	}
	return f
}

func makeTenant(status model.TenantStatus) *model.Tenant {
	return &model.Tenant{ID: uuid.New(), Slug: "acme", Status: status, CreatedAt: time.Now()}
}

func TestResolveAnonymous(t *testing.T) {
	r := NewResolver(newFakeLookup())

	tc, err := r.Resolve(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Nil(t, tc.TenantID)
	assert.Nil(t, tc.EffectiveTenantID)
	assert.False(t, tc.IsSuperUser)
}

func TestResolveOrdinaryIgnoresAllOverrides(t *testing.T) {
	own := uuid.New()
	other := makeTenant(model.TenantActive)
	lookup := newFakeLookup(other)
	r := NewResolver(lookup)

	claims := &auth.Claims{
		UserID:               uuid.NewString(),
		TenantID:             own.String(),
		Role:                 "member",
		ImpersonatedTenantID: other.ID.String(),
		ActingTenantID:       other.ID.String(),
	}

	tc, err := r.Resolve(context.Background(), claims, other.ID.String())
	require.NoError(t, err)
	require.NotNil(t, tc.EffectiveTenantID)
	assert.Equal(t, own, *tc.EffectiveTenantID)
	assert.Equal(t, *tc.TenantID, *tc.EffectiveTenantID)
	assert.False(t, tc.IsSuperUser)
	assert.Zero(t, lookup.calls, "ordinary resolution must not hit the registry")
}

func TestResolveSuperUserNoOverride(t *testing.T) {
	r := NewResolver(newFakeLookup())

	claims := &auth.Claims{UserID: uuid.NewString(), Role: auth.RoleSuperUser}
	tc, err := r.Resolve(context.Background(), claims, "")
	require.NoError(t, err)
	assert.Nil(t, tc.EffectiveTenantID, "no override means no tenant scope")
	assert.True(t, tc.IsSuperUser)
}

func TestResolveSuperUserOverridePrecedence(t *testing.T) {
	header := makeTenant(model.TenantActive)
	impersonated := makeTenant(model.TenantActive)
	lookup := newFakeLookup(header, impersonated)
	r := NewResolver(lookup)

	claims := &auth.Claims{
		UserID:               uuid.NewString(),
		Role:                 auth.RoleSuperUser,
		ImpersonatedTenantID: impersonated.ID.String(),
	}

	tc, err := r.Resolve(context.Background(), claims, header.ID.String())
	require.NoError(t, err)
	require.NotNil(t, tc.EffectiveTenantID)
	assert.Equal(t, header.ID, *tc.EffectiveTenantID, "header wins over session claims")
	assert.Equal(t, 1, lookup.calls, "at most one tenant-existence lookup")

	tc, err = r.Resolve(context.Background(), claims, "")
	require.NoError(t, err)
	require.NotNil(t, tc.EffectiveTenantID)
	assert.Equal(t, impersonated.ID, *tc.EffectiveTenantID)
}

func TestResolveSuperUserOverrideNotFound(t *testing.T) {
	r := NewResolver(newFakeLookup())

	claims := &auth.Claims{UserID: uuid.NewString(), Role: auth.RoleSuperUser}
	tc, err := r.Resolve(context.Background(), claims, uuid.NewString())
	require.ErrorIs(t, err, ErrTenantNotFound)
	assert.Equal(t, Context{}, tc, "failed resolution sets no context")
}

func TestResolveSuperUserAcceptsSuspendedTenant(t *testing.T) {
	suspended := makeTenant(model.TenantSuspended)
	r := NewResolver(newFakeLookup(suspended))

	claims := &auth.Claims{UserID: uuid.NewString(), Role: auth.RoleSuperUser}
	tc, err := r.Resolve(context.Background(), claims, suspended.ID.String())
	require.NoError(t, err)
	require.NotNil(t, tc.EffectiveTenantID)
	assert.Equal(t, suspended.ID, *tc.EffectiveTenantID)
}

func TestMiddlewareHeaderIgnoredForOrdinaryPrincipal(t *testing.T) {
	auth.SetSecret("test-secret")
	own := uuid.New()
	other := makeTenant(model.TenantActive)
	r := NewResolver(newFakeLookup(other))

	token, err := auth.GenerateToken(auth.Claims{
		UserID:   uuid.NewString(),
		TenantID: own.String(),
		Role:     "member",
	})
	require.NoError(t, err)

	var got Context
	handler := auth.JWTAuthMiddleware(r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		got = FromContext(req.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(OverrideHeader, other.ID.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got.EffectiveTenantID)
	assert.Equal(t, own, *got.EffectiveTenantID)
}

func TestMiddlewareNotFoundOverrideIs404(t *testing.T) {
	auth.SetSecret("test-secret")
	r := NewResolver(newFakeLookup())

	token, err := auth.GenerateToken(auth.Claims{UserID: uuid.NewString(), Role: auth.RoleSuperUser})
	require.NoError(t, err)

	handler := auth.JWTAuthMiddleware(r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Fatal("handler must not run")
	})))

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(OverrideHeader, uuid.NewString())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
