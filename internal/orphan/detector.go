// internal/orphan/detector.go
package orphan

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tenancy/internal/metrics"
	"tenancy/internal/model"
	"tenancy/internal/worker"
)

// Detector scans the registry for rows that lost (or never received) their
// tenant id. Counts are always derived, never cached.
type Detector struct {
	db         *sql.DB
	pool       *worker.Pool
	sampleSize int
	logger     *zap.Logger
}

func NewDetector(db *sql.DB, pool *worker.Pool, sampleSize int, logger *zap.Logger) *Detector {
	if sampleSize <= 0 {
		sampleSize = 5
	}
	return &Detector{db: db, pool: pool, sampleSize: sampleSize, logger: logger}
}

// Scan counts null-tenant rows per registered table and fetches up to
// sampleSize rows for operator inspection where the count is positive.
// A failing table reports -1 instead of aborting the whole pass.
func (d *Detector) Scan(ctx context.Context) []model.OrphanRecord {
	tables := Registry()
	records := make([]model.OrphanRecord, len(tables))

	var wg sync.WaitGroup
	for i, td := range tables {
		wg.Add(1)
		accepted := d.pool.Submit(func() {
			defer wg.Done()
			records[i] = d.scanTable(ctx, td)
		})
		if !accepted {
			records[i] = model.OrphanRecord{Table: td.Name, MissingCount: -1}
			wg.Done()
		}
	}
	wg.Wait()

	for _, rec := range records {
		if rec.MissingCount >= 0 {
			metrics.OrphanRows.WithLabelValues(rec.Table).Set(float64(rec.MissingCount))
		}
	}
	return records
}

// Counts reduces a scan to table -> missing count, the shape the readiness
// computation consumes.
func Counts(records []model.OrphanRecord) map[string]int64 {
	out := make(map[string]int64, len(records))
	for _, r := range records {
		out[r.Table] = r.MissingCount
	}
	return out
}

func (d *Detector) scanTable(ctx context.Context, td TableDescriptor) model.OrphanRecord {
	rec := model.OrphanRecord{Table: td.Name}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s IS NULL`, td.Name, td.TenantColumn)
	if err := d.db.QueryRowContext(ctx, query).Scan(&rec.MissingCount); err != nil {
		d.logger.Warn("orphan count failed",
			zap.String("table", td.Name), zap.Error(err))
		rec.MissingCount = -1
		return rec
	}
	if rec.MissingCount == 0 {
		return rec
	}

	samples, err := d.sampleRows(ctx, td)
	if err != nil {
		d.logger.Warn("orphan sampling failed",
			zap.String("table", td.Name), zap.Error(err))
		return rec
	}
	rec.Samples = samples
	return rec
}

func (d *Detector) sampleRows(ctx context.Context, td TableDescriptor) ([]model.OrphanSample, error) {
	query := fmt.Sprintf(`SELECT %s::text, COALESCE(%s::text, '') FROM %s WHERE %s IS NULL ORDER BY %s LIMIT %d`,
		td.IDColumn, td.DisplayColumn, td.Name, td.TenantColumn, td.IDColumn, d.sampleSize)

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []model.OrphanSample
	for rows.Next() {
		var s model.OrphanSample
		if err := rows.Scan(&s.ID, &s.DisplayValue); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
