package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"tenancy/internal/auth"
	"tenancy/internal/constraint"
	"tenancy/internal/health"
	"tenancy/internal/metrics"
	"tenancy/internal/model"
	"tenancy/internal/orphan"
	"tenancy/internal/tenancy"
)

// Each irreversible operation has its own confirmation token so one
// operator confirmation can never trigger a different operation.
const (
	ConfirmBackfillHeader    = "X-Confirm-Backfill"
	ConfirmConstraintsHeader = "X-Confirm-Constraints"
	ConfirmRemediateHeader   = "X-Confirm-Remediate"
	ConfirmValue             = "YES"
	ConfirmOrphanFixText     = "FIX_ORPHANS"
)

func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(auth.JWTAuthMiddleware)
	r.Use(a.Resolver.Middleware)

	r.Handle("/metrics", metrics.Handler())
	r.Get("/swagger/*", httpSwagger.Handler())

	r.Route("/tenancy", func(r chi.Router) {
		r.Use(a.requireSuperUser)

		r.Get("/health", a.TenancyHealth)
		r.Get("/warnings", a.ListWarnings)
		r.Post("/backfill", a.DefaultBackfill)
		r.Get("/health/orphans", a.DetectOrphans)
		r.Post("/health/orphans/fix", a.FixOrphans)
		r.Get("/constraints", a.ConstraintReadiness)
		r.Post("/constraints/apply", a.ApplyConstraints)
		r.Post("/remediate", a.Remediate)
		r.Put("/mode", a.SetMode)
	})

	r.Get("/tenant/tenancy/health", a.TenantHealth)

	return r
}

func (a *API) requireSuperUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tenancy.FromContext(r.Context()).IsSuperUser {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Mode          tenancy.Mode            `json:"enforcement_mode"`
	ActiveTenants int64                   `json:"active_tenants"`
	Orphans       []model.OrphanRecord    `json:"orphans"`
	Warnings      map[string]health.Stats `json:"warnings"`
	TopRoutes     []health.RouteCount     `json:"top_routes"`
	Readiness     health.Readiness        `json:"readiness"`
}

// @Summary Tenancy health overview
// @Tags Tenancy
// @Produce json
// @Success 200 {object} healthResponse
// @Router /tenancy/health [get]
func (a *API) TenancyHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	records := a.Detector.Scan(ctx)

	day, err := a.Tracker.StatsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		a.writeError(w, err)
		return
	}
	week, err := a.Tracker.StatsSince(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		a.writeError(w, err)
		return
	}
	allTime, err := a.Tracker.StatsSince(ctx, time.Time{})
	if err != nil {
		a.writeError(w, err)
		return
	}
	topRoutes, err := a.Tracker.TopRoutes(ctx, 5)
	if err != nil {
		a.writeError(w, err)
		return
	}
	tenants, err := a.Tenants.CountActiveTenants(ctx)
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Mode:          a.Enforcer.Mode(),
		ActiveTenants: tenants,
		Orphans:       records,
		Warnings:      map[string]health.Stats{"24h": day, "7d": week, "all_time": allTime},
		TopRoutes:     topRoutes,
		Readiness:     health.ComputeReadiness(orphan.Counts(records), day),
	})
}

// @Summary Paginated warning log
// @Tags Tenancy
// @Produce json
// @Router /tenancy/warnings [get]
func (a *API) ListWarnings(w http.ResponseWriter, r *http.Request) {
	if a.Warnings == nil {
		http.Error(w, "warning persistence is disabled", http.StatusNotImplemented)
		return
	}

	q := r.URL.Query()
	var f model.WarningFilter
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid from timestamp", http.StatusBadRequest)
			return
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid to timestamp", http.StatusBadRequest)
			return
		}
		f.To = t
	}
	if v := q.Get("tenantId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			http.Error(w, "invalid tenantId", http.StatusBadRequest)
			return
		}
		f.TenantID = &id
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	warnings, err := a.Warnings.ListWarnings(r.Context(), f, limit, offset)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": warnings, "limit": limit, "offset": offset})
}

// @Summary Default-tenant backfill
// @Tags Remediation
// @Accept json
// @Produce json
// @Router /tenancy/backfill [post]
func (a *API) DefaultBackfill(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DryRun bool `json:"dryRun"`
	}
	if err := decodeBody(r, &body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if !body.DryRun && r.Header.Get(ConfirmBackfillHeader) != ConfirmValue {
		http.Error(w, "refusing backfill without "+ConfirmBackfillHeader+": "+ConfirmValue, http.StatusBadRequest)
		return
	}

	summary, err := a.Remediator.DefaultBackfill(r.Context(), orphan.Request{
		DryRun:      body.DryRun,
		ActorUserID: actorID(r),
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// @Summary Detect orphan rows
// @Tags Remediation
// @Produce json
// @Router /tenancy/health/orphans [get]
func (a *API) DetectOrphans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"orphans": a.Detector.Scan(r.Context())})
}

// @Summary Fix orphan rows via relationship inference or quarantine
// @Tags Remediation
// @Accept json
// @Produce json
// @Router /tenancy/health/orphans/fix [post]
func (a *API) FixOrphans(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DryRun      bool   `json:"dryRun"`
		Quarantine  bool   `json:"quarantine"`
		Strategy    string `json:"strategy"`
		ConfirmText string `json:"confirmText"`
	}
	if err := decodeBody(r, &body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if !body.DryRun && body.ConfirmText != ConfirmOrphanFixText {
		http.Error(w, `refusing orphan fix without confirmText "`+ConfirmOrphanFixText+`"`, http.StatusBadRequest)
		return
	}

	req := orphan.Request{
		DryRun:      body.DryRun,
		Quarantine:  body.Quarantine,
		ActorUserID: actorID(r),
	}

	var summary *orphan.Summary
	var err error
	switch body.Strategy {
	case "", orphan.StrategyRelationship:
		summary, err = a.Remediator.RelationshipBackfill(r.Context(), req)
	case orphan.StrategyDefault:
		summary, err = a.Remediator.DefaultBackfill(r.Context(), req)
	default:
		http.Error(w, "unknown strategy "+body.Strategy, http.StatusBadRequest)
		return
	}
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// @Summary Constraint readiness per table
// @Tags Constraints
// @Produce json
// @Router /tenancy/constraints [get]
func (a *API) ConstraintReadiness(w http.ResponseWriter, r *http.Request) {
	readiness, err := a.Migrator.CheckReadiness(r.Context(), nil)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": readiness})
}

// @Summary Apply NOT NULL tenant constraints transactionally
// @Tags Constraints
// @Accept json
// @Produce json
// @Router /tenancy/constraints/apply [post]
func (a *API) ApplyConstraints(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DryRun bool     `json:"dryRun"`
		Tables []string `json:"tables"`
	}
	if err := decodeBody(r, &body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if !body.DryRun && r.Header.Get(ConfirmConstraintsHeader) != ConfirmValue {
		http.Error(w, "refusing constraint apply without "+ConfirmConstraintsHeader+": "+ConfirmValue, http.StatusBadRequest)
		return
	}

	result, err := a.Migrator.Apply(r.Context(), constraint.ApplyRequest{
		Tables: body.Tables,
		DryRun: body.DryRun,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// @Summary Relationship-based backfill
// @Tags Remediation
// @Produce json
// @Param mode query string true "dry-run or apply"
// @Router /tenancy/remediate [post]
func (a *API) Remediate(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if mode != "dry-run" && mode != "apply" {
		http.Error(w, "mode must be dry-run or apply", http.StatusBadRequest)
		return
	}
	if mode == "apply" && r.Header.Get(ConfirmRemediateHeader) != ConfirmValue {
		http.Error(w, "refusing remediation without "+ConfirmRemediateHeader+": "+ConfirmValue, http.StatusBadRequest)
		return
	}

	summary, err := a.Remediator.RelationshipBackfill(r.Context(), orphan.Request{
		DryRun:      mode == "dry-run",
		ActorUserID: actorID(r),
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// @Summary Switch enforcement between warn and strict
// @Tags Tenancy
// @Accept json
// @Router /tenancy/mode [put]
func (a *API) SetMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := decodeBody(r, &body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	mode, err := tenancy.ParseMode(body.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.Enforcer.SetMode(mode)
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(mode)})
}

// @Summary Tenant-admin health view, own tenant only
// @Tags Tenancy
// @Produce json
// @Router /tenant/tenancy/health [get]
func (a *API) TenantHealth(w http.ResponseWriter, r *http.Request) {
	if auth.GetClaims(r) == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	tc := tenancy.FromContext(r.Context())
	if err := a.Enforcer.RequireReadContext(tc); err != nil {
		a.writeError(w, err)
		return
	}
	if tc.EffectiveTenantID == nil {
		http.Error(w, "no tenant scope selected", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	day, err := a.Tracker.StatsSinceForTenant(ctx, now.Add(-24*time.Hour), *tc.EffectiveTenantID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	week, err := a.Tracker.StatsSinceForTenant(ctx, now.Add(-7*24*time.Hour), *tc.EffectiveTenantID)
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":        tc.EffectiveTenantID,
		"enforcement_mode": a.Enforcer.Mode(),
		"warnings":         map[string]health.Stats{"24h": day, "7d": week},
	})
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	var notAllowed *constraint.NotAllowedError
	if errors.As(err, &notAllowed) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": notAllowed.Error()})
		return
	}

	var blocked *constraint.BlockedError
	if errors.As(err, &blocked) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":    "constraint migration blocked",
			"blockers": blocked.Blockers,
		})
		return
	}

	var txErr *constraint.TxError
	if errors.As(err, &txErr) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": txErr.Error(),
			"table": txErr.Table,
		})
		return
	}

	var ctxErr *tenancy.ContextError
	if errors.As(err, &ctxErr) {
		writeJSON(w, http.StatusForbidden, ctxErr)
		return
	}

	a.Logger.Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func actorID(r *http.Request) *uuid.UUID {
	claims := auth.GetClaims(r)
	if claims == nil {
		return nil
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil
	}
	return &id
}
