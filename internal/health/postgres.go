// internal/health/postgres.go
package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tenancy/internal/model"
)

// PostgresTracker persists warnings to the tenancy_warnings table. Rows are
// append-only; queries only aggregate.
type PostgresTracker struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresTracker(db *sql.DB, logger *zap.Logger) *PostgresTracker {
	return &PostgresTracker{db: db, logger: logger}
}

// Record inserts best-effort: losing a warning must never fail the request
// that triggered it.
func (p *PostgresTracker) Record(w model.TenancyWarning) {
	_, err := p.db.Exec(`
		INSERT INTO tenancy_warnings (route, http_method, warn_type, tenant_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`,
		w.Route, w.Method, w.WarnType, w.TenantID, w.OccurredAt)
	if err != nil {
		p.logger.Error("failed to persist tenancy warning", zap.Error(err))
	}
}

func (p *PostgresTracker) StatsSince(ctx context.Context, since time.Time) (Stats, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT warn_type, COUNT(*)
		FROM tenancy_warnings
		WHERE occurred_at >= $1
		GROUP BY warn_type`, since)
	if err != nil {
		return Stats{}, fmt.Errorf("warning stats query failed: %w", err)
	}
	defer rows.Close()

	stats := Stats{CountsByType: make(map[model.WarnType]int64)}
	for rows.Next() {
		var wt model.WarnType
		var n int64
		if err := rows.Scan(&wt, &n); err != nil {
			return Stats{}, fmt.Errorf("warning stats scan failed: %w", err)
		}
		stats.CountsByType[wt] = n
		stats.Total += n
	}
	return stats, rows.Err()
}

func (p *PostgresTracker) StatsSinceForTenant(ctx context.Context, since time.Time, tenantID uuid.UUID) (Stats, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT warn_type, COUNT(*)
		FROM tenancy_warnings
		WHERE occurred_at >= $1 AND tenant_id = $2
		GROUP BY warn_type`, since, tenantID)
	if err != nil {
		return Stats{}, fmt.Errorf("tenant warning stats query failed: %w", err)
	}
	defer rows.Close()

	stats := Stats{CountsByType: make(map[model.WarnType]int64)}
	for rows.Next() {
		var wt model.WarnType
		var n int64
		if err := rows.Scan(&wt, &n); err != nil {
			return Stats{}, fmt.Errorf("tenant warning stats scan failed: %w", err)
		}
		stats.CountsByType[wt] = n
		stats.Total += n
	}
	return stats, rows.Err()
}

func (p *PostgresTracker) TopRoutes(ctx context.Context, limit int) ([]RouteCount, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT route, http_method, COUNT(*) AS n
		FROM tenancy_warnings
		GROUP BY route, http_method
		ORDER BY n DESC, route
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top routes query failed: %w", err)
	}
	defer rows.Close()

	var out []RouteCount
	for rows.Next() {
		var rc RouteCount
		if err := rows.Scan(&rc.Route, &rc.Method, &rc.Count); err != nil {
			return nil, fmt.Errorf("top routes scan failed: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// ListWarnings pages through the durable log. Only the Postgres backend
// offers this; the HTTP layer returns 501 when persistence is disabled.
func (p *PostgresTracker) ListWarnings(ctx context.Context, f model.WarningFilter, limit, offset int) ([]model.TenancyWarning, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT route, http_method, warn_type, tenant_id, occurred_at
		FROM tenancy_warnings
		WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		  AND ($2::timestamptz IS NULL OR occurred_at < $2)
		  AND ($3::uuid IS NULL OR tenant_id = $3)
		ORDER BY occurred_at DESC
		LIMIT $4 OFFSET $5`,
		nullTime(f.From), nullTime(f.To), f.TenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("warning list query failed: %w", err)
	}
	defer rows.Close()

	var out []model.TenancyWarning
	for rows.Next() {
		var w model.TenancyWarning
		if err := rows.Scan(&w.Route, &w.Method, &w.WarnType, &w.TenantID, &w.OccurredAt); err != nil {
			return nil, fmt.Errorf("warning list scan failed: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
