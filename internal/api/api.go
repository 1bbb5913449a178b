package api

import (
	"context"

	"go.uber.org/zap"

	"tenancy/internal/constraint"
	"tenancy/internal/health"
	"tenancy/internal/model"
	"tenancy/internal/orphan"
	"tenancy/internal/tenancy"
)

// Scanner is the orphan detection surface the handlers need.
type Scanner interface {
	Scan(ctx context.Context) []model.OrphanRecord
}

// Remediator covers both backfill strategies.
type Remediator interface {
	DefaultBackfill(ctx context.Context, req orphan.Request) (*orphan.Summary, error)
	RelationshipBackfill(ctx context.Context, req orphan.Request) (*orphan.Summary, error)
}

// Migrator covers constraint readiness and transactional application.
type Migrator interface {
	CheckReadiness(ctx context.Context, tables []string) ([]constraint.TableReadiness, error)
	Apply(ctx context.Context, req constraint.ApplyRequest) (*constraint.ApplyResult, error)
}

// WarningLister pages the durable warning log. Only the persisted tracker
// provides it; it stays nil when persistence is disabled.
type WarningLister interface {
	ListWarnings(ctx context.Context, f model.WarningFilter, limit, offset int) ([]model.TenancyWarning, error)
}

// TenantCounter reports active tenants for the health view.
type TenantCounter interface {
	CountActiveTenants(ctx context.Context) (int64, error)
}

type API struct {
	Resolver   *tenancy.Resolver
	Enforcer   *tenancy.Enforcer
	Tracker    health.Tracker
	Warnings   WarningLister
	Detector   Scanner
	Remediator Remediator
	Migrator   Migrator
	Tenants    TenantCounter
	Logger     *zap.Logger
}

func NewAPI(
	resolver *tenancy.Resolver,
	enforcer *tenancy.Enforcer,
	tracker health.Tracker,
	warnings WarningLister,
	detector Scanner,
	remediator Remediator,
	migrator Migrator,
	tenants TenantCounter,
	logger *zap.Logger,
) *API {
	return &API{
		Resolver:   resolver,
		Enforcer:   enforcer,
		Tracker:    tracker,
		Warnings:   warnings,
		Detector:   detector,
		Remediator: remediator,
		Migrator:   migrator,
		Tenants:    tenants,
		Logger:     logger,
	}
}
