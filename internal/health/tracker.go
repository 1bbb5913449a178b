// internal/health/tracker.go
package health

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tenancy/internal/model"
)

// Stats aggregates warnings recorded since some instant.
type Stats struct {
	Total        int64                    `json:"total"`
	CountsByType map[model.WarnType]int64 `json:"counts_by_type"`
}

// RouteCount ranks a route by all-time warning volume.
type RouteCount struct {
	Route  string `json:"route"`
	Method string `json:"method"`
	Count  int64  `json:"count"`
}

// Tracker aggregates enforcement-violation warnings over time windows.
// Two backends exist: a durable Postgres table and a bounded in-memory
// ring buffer for deployments that disable persistence.
type Tracker interface {
	Record(w model.TenancyWarning)
	StatsSince(ctx context.Context, since time.Time) (Stats, error)
	// StatsSinceForTenant scopes the window to one tenant's warnings, for
	// the tenant-admin view that must never see cross-tenant data.
	StatsSinceForTenant(ctx context.Context, since time.Time, tenantID uuid.UUID) (Stats, error)
	// TopRoutes draws from all-time data regardless of any window.
	TopRoutes(ctx context.Context, limit int) ([]RouteCount, error)
}
