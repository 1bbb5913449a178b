package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tenancy/internal/auth"
	"tenancy/internal/constraint"
	"tenancy/internal/health"
	"tenancy/internal/model"
	"tenancy/internal/orphan"
	"tenancy/internal/storage"
	"tenancy/internal/tenancy"
)

type stubLookup struct{}

func (stubLookup) GetTenantByID(context.Context, uuid.UUID) (*model.Tenant, error) {
	return nil, storage.ErrTenantNotFound
}

type stubScanner struct {
	records []model.OrphanRecord
}

func (s *stubScanner) Scan(context.Context) []model.OrphanRecord { return s.records }

type stubRemediator struct {
	defaultCalls  int
	relationCalls int
	lastReq       orphan.Request
}

func (s *stubRemediator) DefaultBackfill(_ context.Context, req orphan.Request) (*orphan.Summary, error) {
	s.defaultCalls++
	s.lastReq = req
	return &orphan.Summary{Strategy: orphan.StrategyDefault, DryRun: req.DryRun}, nil
}

func (s *stubRemediator) RelationshipBackfill(_ context.Context, req orphan.Request) (*orphan.Summary, error) {
	s.relationCalls++
	s.lastReq = req
	return &orphan.Summary{Strategy: orphan.StrategyRelationship, DryRun: req.DryRun}, nil
}

type stubMigrator struct {
	applyErr   error
	applyCalls int
}

func (s *stubMigrator) CheckReadiness(context.Context, []string) ([]constraint.TableReadiness, error) {
	return []constraint.TableReadiness{{Table: "tasks", Ready: true}}, nil
}

func (s *stubMigrator) Apply(_ context.Context, req constraint.ApplyRequest) (*constraint.ApplyResult, error) {
	s.applyCalls++
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	return &constraint.ApplyResult{Applied: !req.DryRun}, nil
}

type stubTenants struct{}

func (stubTenants) CountActiveTenants(context.Context) (int64, error) { return 3, nil }

type fixture struct {
	api        *API
	remediator *stubRemediator
	migrator   *stubMigrator
	enforcer   *tenancy.Enforcer
	server     http.Handler
}

func newFixture(t *testing.T, persisted bool) *fixture {
	t.Helper()
	auth.SetSecret("handler-test-secret")

	tracker := health.NewMemoryTracker(100)
	enforcer := tenancy.NewEnforcer(tenancy.ModeWarn, tracker, zap.NewNop())
	remediator := &stubRemediator{}
	migrator := &stubMigrator{}

	var lister WarningLister
	if persisted {
		lister = listerFunc(func(context.Context, model.WarningFilter, int, int) ([]model.TenancyWarning, error) {
			return []model.TenancyWarning{}, nil
		})
	}

	a := NewAPI(
		tenancy.NewResolver(stubLookup{}),
		enforcer,
		tracker,
		lister,
		&stubScanner{records: []model.OrphanRecord{{Table: "tasks", MissingCount: 0}}},
		remediator,
		migrator,
		stubTenants{},
		zap.NewNop(),
	)
	return &fixture{api: a, remediator: remediator, migrator: migrator, enforcer: enforcer, server: a.Router()}
}

func superToken(t *testing.T) string {
	t.Helper()
	token, err := auth.GenerateToken(auth.Claims{UserID: uuid.NewString(), Role: auth.RoleSuperUser})
	require.NoError(t, err)
	return token
}

func memberToken(t *testing.T, tenantID uuid.UUID) string {
	t.Helper()
	token, err := auth.GenerateToken(auth.Claims{
		UserID:   uuid.NewString(),
		TenantID: tenantID.String(),
		Role:     "member",
	})
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, headers map[string]string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func TestTenancyRoutesRequireSuperUser(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/tenancy/health", "", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "anonymous")

	rec = f.do(t, http.MethodGet, "/tenancy/health", memberToken(t, uuid.New()), nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "ordinary principal")
}

func TestTenancyHealthResponseShape(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/tenancy/health", superToken(t), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Mode          string                  `json:"enforcement_mode"`
		ActiveTenants int64                   `json:"active_tenants"`
		Orphans       []model.OrphanRecord    `json:"orphans"`
		Warnings      map[string]health.Stats `json:"warnings"`
		Readiness     health.Readiness        `json:"readiness"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "warn", resp.Mode)
	assert.Equal(t, int64(3), resp.ActiveTenants)
	assert.Len(t, resp.Orphans, 1)
	assert.Contains(t, resp.Warnings, "24h")
	assert.Contains(t, resp.Warnings, "7d")
	assert.Contains(t, resp.Warnings, "all_time")
	assert.True(t, resp.Readiness.CanGoStrict)
}

func TestWarnings501WhenPersistenceDisabled(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/tenancy/warnings", superToken(t), nil, nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestWarningsAvailableWhenPersisted(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodGet, "/tenancy/warnings?limit=10", superToken(t), nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBackfillRequiresConfirmationHeader(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/tenancy/backfill", superToken(t), nil,
		map[string]any{"dryRun": false})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.remediator.defaultCalls, "unconfirmed apply must never reach the remediator")

	rec = f.do(t, http.MethodPost, "/tenancy/backfill", superToken(t),
		map[string]string{ConfirmBackfillHeader: ConfirmValue},
		map[string]any{"dryRun": false})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.remediator.defaultCalls)
}

func TestBackfillDryRunNeedsNoConfirmation(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/tenancy/backfill", superToken(t), nil,
		map[string]any{"dryRun": true})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.remediator.lastReq.DryRun)
}

func TestFixOrphansRequiresConfirmText(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/tenancy/health/orphans/fix", superToken(t), nil,
		map[string]any{"dryRun": false, "confirmText": "yes please"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.remediator.relationCalls)

	rec = f.do(t, http.MethodPost, "/tenancy/health/orphans/fix", superToken(t), nil,
		map[string]any{"dryRun": false, "confirmText": ConfirmOrphanFixText, "quarantine": true})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.remediator.relationCalls)
	assert.True(t, f.remediator.lastReq.Quarantine)
}

func TestFixOrphansStrategyDispatch(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/tenancy/health/orphans/fix", superToken(t), nil,
		map[string]any{"dryRun": true, "strategy": orphan.StrategyDefault})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.remediator.defaultCalls)
	assert.Zero(t, f.remediator.relationCalls)

	rec = f.do(t, http.MethodPost, "/tenancy/health/orphans/fix", superToken(t), nil,
		map[string]any{"dryRun": true, "strategy": "coin-flip"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemediateModeValidation(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/tenancy/remediate?mode=sideways", superToken(t), nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/tenancy/remediate?mode=apply", superToken(t), nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "apply without confirmation header")

	rec = f.do(t, http.MethodPost, "/tenancy/remediate?mode=dry-run", superToken(t), nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.remediator.lastReq.DryRun)

	rec = f.do(t, http.MethodPost, "/tenancy/remediate?mode=apply", superToken(t),
		map[string]string{ConfirmRemediateHeader: ConfirmValue}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.remediator.lastReq.DryRun)
}

func TestApplyConstraintsBlockedMapsTo409(t *testing.T) {
	f := newFixture(t, false)
	f.migrator.applyErr = &constraint.BlockedError{
		Blockers: []constraint.TableReadiness{{Table: "tasks", NullCount: 1}},
	}

	rec := f.do(t, http.MethodPost, "/tenancy/constraints/apply", superToken(t),
		map[string]string{ConfirmConstraintsHeader: ConfirmValue},
		map[string]any{"dryRun": false})
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp struct {
		Blockers []constraint.TableReadiness `json:"blockers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Blockers, 1)
	assert.Equal(t, "tasks", resp.Blockers[0].Table)
	assert.Equal(t, int64(1), resp.Blockers[0].NullCount)
}

func TestApplyConstraintsNotAllowedMapsTo400(t *testing.T) {
	f := newFixture(t, false)
	f.migrator.applyErr = &constraint.NotAllowedError{Table: "stripe_invoices"}

	rec := f.do(t, http.MethodPost, "/tenancy/constraints/apply", superToken(t),
		map[string]string{ConfirmConstraintsHeader: ConfirmValue},
		map[string]any{"dryRun": false, "tables": []string{"stripe_invoices"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetMode(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPut, "/tenancy/mode", superToken(t), nil,
		map[string]any{"mode": "strict"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tenancy.ModeStrict, f.enforcer.Mode())

	rec = f.do(t, http.MethodPut, "/tenancy/mode", superToken(t), nil,
		map[string]any{"mode": "chaos"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTenantHealthScopedToOwnTenant(t *testing.T) {
	f := newFixture(t, false)
	mine := uuid.New()

	rec := f.do(t, http.MethodGet, "/tenant/tenancy/health", memberToken(t, mine), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TenantID uuid.UUID `json:"tenant_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, mine, resp.TenantID)

	rec = f.do(t, http.MethodGet, "/tenant/tenancy/health", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type listerFunc func(context.Context, model.WarningFilter, int, int) ([]model.TenancyWarning, error)

func (f listerFunc) ListWarnings(ctx context.Context, w model.WarningFilter, limit, offset int) ([]model.TenancyWarning, error) {
	return f(ctx, w, limit, offset)
}
