// internal/orphan/remediator.go
package orphan

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tenancy/internal/metrics"
	"tenancy/internal/model"
	"tenancy/internal/storage"
)

const (
	StrategyDefault      = "default-tenant"
	StrategyRelationship = "relationship"
)

// Request selects a remediation run. Confirmation tokens are enforced at
// the HTTP layer; by the time a Request reaches the remediator the operator
// has already confirmed a non-dry run.
type Request struct {
	DryRun bool
	// Quarantine buckets rows the relationship pass could not resolve into
	// the quarantine tenant instead of leaving them for manual triage.
	Quarantine  bool
	ActorUserID *uuid.UUID
}

// TableResult summarizes one table of a remediation run. TargetTenantID is
// set when every fixed row went to a single tenant (default or quarantine
// backfill); relationship fixes copy each parent's tenant, so it stays nil.
type TableResult struct {
	Table               string     `json:"table"`
	CountBefore         int64      `json:"count_before"`
	ResolvableCount     int64      `json:"resolvable_count"`
	UpdatedCount        int64      `json:"updated_count"`
	UnresolvedAfter     int64      `json:"unresolved_after"`
	UnresolvedSampleIDs []string   `json:"unresolved_sample_ids,omitempty"`
	TargetTenantID      *uuid.UUID `json:"target_tenant_id,omitempty"`
}

// UserReport splits null-tenant users by privilege. Super users may live
// without a tenant; ordinary users without one are a defect that requires a
// human decision, so they are reported and never auto-assigned.
type UserReport struct {
	SuperUsersWithNullTenantID    int64    `json:"super_users_with_null_tenant_id"`
	NonSuperUsersWithNullTenantID int64    `json:"non_super_users_with_null_tenant_id"`
	NonSuperUserSampleIDs         []string `json:"non_super_user_sample_ids,omitempty"`
}

type Summary struct {
	Strategy           string        `json:"strategy"`
	DryRun             bool          `json:"dry_run"`
	Tables             []TableResult `json:"tables"`
	Users              *UserReport   `json:"users,omitempty"`
	QuarantineTenantID *uuid.UUID    `json:"quarantine_tenant_id,omitempty"`
	TotalUpdated       int64         `json:"total_updated"`
}

// Remediator repairs orphan rows. Both strategies share the same dry-run /
// apply duality and audit trail.
type Remediator struct {
	db          *sql.DB
	store       *storage.Storage
	defaultSlug string
	sampleSize  int
	logger      *zap.Logger
}

func NewRemediator(db *sql.DB, store *storage.Storage, defaultSlug string, sampleSize int, logger *zap.Logger) *Remediator {
	if sampleSize <= 0 {
		sampleSize = 5
	}
	return &Remediator{db: db, store: store, defaultSlug: defaultSlug, sampleSize: sampleSize, logger: logger}
}

// EnsureQuarantineTenant creates the reserved quarantine tenant on first
// use. Repeat calls find the existing row; only a genuine creation writes
// the audit event, so invoking remediation twice never creates two.
func (r *Remediator) EnsureQuarantineTenant(ctx context.Context, actor *uuid.UUID) (*model.Tenant, error) {
	t, created, err := r.store.EnsureTenant(ctx, model.QuarantineSlug, model.TenantSuspended)
	if err != nil {
		return nil, err
	}
	if created {
		err = r.store.InsertAuditEvent(ctx, &model.AuditEvent{
			TenantID:    t.ID,
			ActorUserID: actor,
			EventType:   model.AuditQuarantineCreated,
			Message:     "quarantine tenant created for unresolvable orphan rows",
		})
		if err != nil {
			return nil, err
		}
		r.logger.Info("quarantine tenant created", zap.String("tenant_id", t.ID.String()))
	}
	return t, nil
}

// DefaultBackfill assigns every orphan row of every registered table to the
// configured default tenant. It is the lossy bootstrap path: no inference,
// data may land in the wrong tenant. Users are excluded; see UserReport.
func (r *Remediator) DefaultBackfill(ctx context.Context, req Request) (*Summary, error) {
	target, err := r.store.GetTenantBySlug(ctx, r.defaultSlug)
	if err != nil {
		return nil, fmt.Errorf("default tenant %q must exist before backfill: %w", r.defaultSlug, err)
	}

	summary := &Summary{Strategy: StrategyDefault, DryRun: req.DryRun}

	if !req.DryRun {
		if err := r.auditPlanned(ctx, target.ID, req.ActorUserID, model.AuditBackfillPlanned, StrategyDefault); err != nil {
			return nil, err
		}
	}

	for _, td := range Registry() {
		if td.Name == UsersTable {
			continue
		}
		res, err := r.backfillTable(ctx, td, target.ID, req.DryRun, StrategyDefault)
		if err != nil {
			return nil, err
		}
		summary.Tables = append(summary.Tables, res)
		summary.TotalUpdated += res.UpdatedCount
	}

	users, err := r.userReport(ctx)
	if err != nil {
		return nil, err
	}
	summary.Users = users

	if !req.DryRun {
		if err := r.auditExecuted(ctx, target.ID, req.ActorUserID, model.AuditBackfillRun, summary); err != nil {
			return nil, err
		}
	}
	return summary, nil
}

// RelationshipBackfill infers each orphan's tenant through its parent row
// and copies the parent's tenant id with one set-based update per relation,
// never row by row. Rows with no resolvable parent stay orphaned and are
// reported with sample ids; with Quarantine set they are bucketed into the
// quarantine tenant instead.
func (r *Remediator) RelationshipBackfill(ctx context.Context, req Request) (*Summary, error) {
	summary := &Summary{Strategy: StrategyRelationship, DryRun: req.DryRun}

	// Dry runs must not mutate anything, including the tenants table, so
	// the quarantine row is only ensured for real executions.
	var quarantineID uuid.UUID
	if !req.DryRun {
		q, err := r.EnsureQuarantineTenant(ctx, req.ActorUserID)
		if err != nil {
			return nil, err
		}
		quarantineID = q.ID
		if req.Quarantine {
			summary.QuarantineTenantID = &q.ID
		}
		if err := r.auditPlanned(ctx, quarantineID, req.ActorUserID, model.AuditRemediationPlanned, StrategyRelationship); err != nil {
			return nil, err
		}
	}

	relationDone := make(map[string]TableResult)
	for _, rel := range Relations() {
		res, err := r.resolveRelation(ctx, rel, req.DryRun)
		if err != nil {
			return nil, err
		}
		relationDone[rel.Child] = res
		summary.Tables = append(summary.Tables, res)
		summary.TotalUpdated += res.UpdatedCount
	}

	// Root tables have no parent to infer from; quarantine is their only
	// remediation. The same bucket also catches leftovers of the relation
	// pass when requested.
	for _, td := range Registry() {
		if td.Name == UsersTable {
			continue
		}
		prior, hasRelation := relationDone[td.Name]
		if req.Quarantine {
			res, err := r.backfillTable(ctx, td, quarantineID, req.DryRun, StrategyRelationship)
			if err != nil {
				return nil, err
			}
			if req.DryRun {
				// The relation pass did not actually run, so its resolvable
				// rows still look orphaned here; only the remainder would
				// reach quarantine.
				res.TargetTenantID = nil
				if hasRelation {
					res.CountBefore = prior.UnresolvedAfter
					res.ResolvableCount = prior.UnresolvedAfter
				}
			}
			if !hasRelation || res.CountBefore > 0 {
				summary.Tables = append(summary.Tables, res)
			}
			summary.TotalUpdated += res.UpdatedCount
		} else if !hasRelation {
			res, err := r.reportOnly(ctx, td)
			if err != nil {
				return nil, err
			}
			summary.Tables = append(summary.Tables, res)
		}
	}

	users, err := r.userReport(ctx)
	if err != nil {
		return nil, err
	}
	summary.Users = users

	if !req.DryRun {
		if err := r.auditExecuted(ctx, quarantineID, req.ActorUserID, model.AuditRemediationRun, summary); err != nil {
			return nil, err
		}
	}
	return summary, nil
}

// resolveRelation counts and (outside dry runs) applies one child->parent
// tenant copy. Identifiers come from the static registry.
func (r *Remediator) resolveRelation(ctx context.Context, rel Relation, dryRun bool) (TableResult, error) {
	child, ok := Descriptor(rel.Child)
	if !ok {
		return TableResult{}, fmt.Errorf("relation child %q not in registry", rel.Child)
	}
	parent, ok := Descriptor(rel.Parent)
	if !ok {
		return TableResult{}, fmt.Errorf("relation parent %q not in registry", rel.Parent)
	}

	res := TableResult{Table: child.Name}

	countQ := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s IS NULL`, child.Name, child.TenantColumn)
	if err := r.db.QueryRowContext(ctx, countQ).Scan(&res.CountBefore); err != nil {
		return res, fmt.Errorf("count %s orphans: %w", child.Name, err)
	}

	resolvableQ := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM %[1]s c
		JOIN %[2]s p ON c.%[3]s = p.%[4]s
		WHERE c.%[5]s IS NULL AND p.%[6]s IS NOT NULL`,
		child.Name, parent.Name, rel.JoinColumn, parent.IDColumn, child.TenantColumn, parent.TenantColumn)
	if err := r.db.QueryRowContext(ctx, resolvableQ).Scan(&res.ResolvableCount); err != nil {
		return res, fmt.Errorf("count resolvable %s orphans: %w", child.Name, err)
	}

	if !dryRun && res.ResolvableCount > 0 {
		updateQ := fmt.Sprintf(`
			UPDATE %[1]s c
			SET %[5]s = p.%[6]s
			FROM %[2]s p
			WHERE c.%[3]s = p.%[4]s AND c.%[5]s IS NULL AND p.%[6]s IS NOT NULL`,
			child.Name, parent.Name, rel.JoinColumn, parent.IDColumn, child.TenantColumn, parent.TenantColumn)
		out, err := r.db.ExecContext(ctx, updateQ)
		if err != nil {
			return res, fmt.Errorf("backfill %s from %s: %w", child.Name, parent.Name, err)
		}
		res.UpdatedCount, _ = out.RowsAffected()
		metrics.RowsRemediated.WithLabelValues(child.Name, StrategyRelationship).Add(float64(res.UpdatedCount))
	}

	res.UnresolvedAfter = res.CountBefore - res.ResolvableCount
	if res.UnresolvedAfter > 0 {
		samples, err := r.unresolvedSamples(ctx, child)
		if err != nil {
			return res, err
		}
		res.UnresolvedSampleIDs = samples
	}
	return res, nil
}

// backfillTable assigns one target tenant to every remaining orphan row of
// a table. Shared by the default-tenant path and the quarantine bucket.
func (r *Remediator) backfillTable(ctx context.Context, td TableDescriptor, target uuid.UUID, dryRun bool, strategy string) (TableResult, error) {
	res := TableResult{Table: td.Name, TargetTenantID: &target}

	countQ := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s IS NULL`, td.Name, td.TenantColumn)
	if err := r.db.QueryRowContext(ctx, countQ).Scan(&res.CountBefore); err != nil {
		return res, fmt.Errorf("count %s orphans: %w", td.Name, err)
	}
	res.ResolvableCount = res.CountBefore

	if !dryRun && res.CountBefore > 0 {
		updateQ := fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE %s IS NULL`, td.Name, td.TenantColumn, td.TenantColumn)
		out, err := r.db.ExecContext(ctx, updateQ, target)
		if err != nil {
			return res, fmt.Errorf("backfill %s: %w", td.Name, err)
		}
		res.UpdatedCount, _ = out.RowsAffected()
		metrics.RowsRemediated.WithLabelValues(td.Name, strategy).Add(float64(res.UpdatedCount))
	}

	res.UnresolvedAfter = res.CountBefore - res.UpdatedCount
	if dryRun {
		res.UnresolvedAfter = 0 // every row is resolvable to the single target
	}
	return res, nil
}

func (r *Remediator) reportOnly(ctx context.Context, td TableDescriptor) (TableResult, error) {
	res := TableResult{Table: td.Name}
	countQ := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s IS NULL`, td.Name, td.TenantColumn)
	if err := r.db.QueryRowContext(ctx, countQ).Scan(&res.CountBefore); err != nil {
		return res, fmt.Errorf("count %s orphans: %w", td.Name, err)
	}
	res.UnresolvedAfter = res.CountBefore
	if res.CountBefore > 0 {
		samples, err := r.unresolvedSamples(ctx, td)
		if err != nil {
			return res, err
		}
		res.UnresolvedSampleIDs = samples
	}
	return res, nil
}

func (r *Remediator) unresolvedSamples(ctx context.Context, td TableDescriptor) ([]string, error) {
	q := fmt.Sprintf(`SELECT %s::text FROM %s WHERE %s IS NULL ORDER BY %s LIMIT %d`,
		td.IDColumn, td.Name, td.TenantColumn, td.IDColumn, r.sampleSize)
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sample %s orphans: %w", td.Name, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// userReport never mutates: assigning an ordinary user to the wrong tenant
// is security-sensitive and needs a human decision.
func (r *Remediator) userReport(ctx context.Context) (*UserReport, error) {
	report := &UserReport{}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE role = 'superuser'),
			COUNT(*) FILTER (WHERE role <> 'superuser')
		FROM users WHERE tenant_id IS NULL`).
		Scan(&report.SuperUsersWithNullTenantID, &report.NonSuperUsersWithNullTenantID)
	if err != nil {
		return nil, fmt.Errorf("user orphan report: %w", err)
	}

	if report.NonSuperUsersWithNullTenantID > 0 {
		rows, err := r.db.QueryContext(ctx, `
			SELECT id::text FROM users
			WHERE tenant_id IS NULL AND role <> 'superuser'
			ORDER BY id LIMIT $1`, r.sampleSize)
		if err != nil {
			return nil, fmt.Errorf("sample user orphans: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			report.NonSuperUserSampleIDs = append(report.NonSuperUserSampleIDs, id)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func (r *Remediator) auditPlanned(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, eventType, strategy string) error {
	return r.store.InsertAuditEvent(ctx, &model.AuditEvent{
		TenantID:    tenantID,
		ActorUserID: actor,
		EventType:   eventType,
		Message:     fmt.Sprintf("%s remediation planned", strategy),
		Metadata:    map[string]any{"strategy": strategy, "planned_at": time.Now().UTC().Format(time.RFC3339)},
	})
}

func (r *Remediator) auditExecuted(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, eventType string, summary *Summary) error {
	fixed := make(map[string]any, len(summary.Tables))
	for _, t := range summary.Tables {
		fixed[t.Table] = t.UpdatedCount
	}
	return r.store.InsertAuditEvent(ctx, &model.AuditEvent{
		TenantID:    tenantID,
		ActorUserID: actor,
		EventType:   eventType,
		Message:     fmt.Sprintf("%s remediation executed: %d rows updated", summary.Strategy, summary.TotalUpdated),
		Metadata:    map[string]any{"strategy": summary.Strategy, "fixed_counts": fixed},
	})
}
