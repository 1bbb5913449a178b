// internal/constraint/migrator.go
package constraint

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tenancy/internal/metrics"
	"tenancy/internal/model"
	"tenancy/internal/orphan"
	"tenancy/internal/storage"
)

// TableReadiness reports whether one table can have its tenant column
// promoted to NOT NULL. Ready means nullable with zero null rows; a column
// that is already NOT NULL needs nothing and never blocks a batch.
type TableReadiness struct {
	Table          string `json:"table"`
	AlreadyNotNull bool   `json:"already_not_null"`
	NullCount      int64  `json:"null_count"`
	Ready          bool   `json:"ready"`
}

// NotAllowedError rejects tables outside the fixed allowlist, even when the
// caller asks for them explicitly.
type NotAllowedError struct {
	Table string
}

func (e *NotAllowedError) Error() string {
	return fmt.Sprintf("table %q is not allowlisted for tenant constraint migration", e.Table)
}

// BlockedError carries every table that failed readiness. Nothing executes
// while any blocker remains; partial application is never an option.
type BlockedError struct {
	Blockers []TableReadiness
}

func (e *BlockedError) Error() string {
	names := make([]string, len(e.Blockers))
	for i, b := range e.Blockers {
		names[i] = fmt.Sprintf("%s (%d null rows)", b.Table, b.NullCount)
	}
	return "constraint migration blocked by: " + strings.Join(names, ", ")
}

// TxError reports the table whose DDL statement failed; the whole batch was
// rolled back and the schema is untouched.
type TxError struct {
	Table string
	Err   error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("constraint on %s failed, batch rolled back: %v", e.Table, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

type ApplyRequest struct {
	// Tables restricts the batch to a subset of the allowlist; empty means
	// every allowlisted table.
	Tables []string
	DryRun bool
}

// ApplyResult has the same shape for dry runs and real runs so operator
// tooling can diff one against the other without branching.
type ApplyResult struct {
	Applied      bool             `json:"applied"`
	AppliedCount int              `json:"applied_count"`
	Tables       []TableReadiness `json:"tables"`
}

// Migrator promotes tenant columns from optional to mandatory, gated on
// provable data cleanliness. The allowlist is the orphan registry: only
// tables the detector watches may ever be migrated.
type Migrator struct {
	db     *sql.DB
	store  *storage.Storage
	logger *zap.Logger
}

func NewMigrator(db *sql.DB, store *storage.Storage, logger *zap.Logger) *Migrator {
	return &Migrator{db: db, store: store, logger: logger}
}

// CheckReadiness queries the system catalog per table: is the tenant column
// still nullable, and if so how many null rows remain.
func (m *Migrator) CheckReadiness(ctx context.Context, tables []string) ([]TableReadiness, error) {
	descs, err := resolveTables(tables)
	if err != nil {
		return nil, err
	}

	out := make([]TableReadiness, 0, len(descs))
	for _, td := range descs {
		tr := TableReadiness{Table: td.Name}

		var isNullable string
		err := m.db.QueryRowContext(ctx, `
			SELECT is_nullable FROM information_schema.columns
			WHERE table_name = $1 AND column_name = $2`,
			td.Name, td.TenantColumn).Scan(&isNullable)
		if err != nil {
			return nil, fmt.Errorf("catalog lookup for %s.%s failed: %w", td.Name, td.TenantColumn, err)
		}

		if isNullable == "NO" {
			tr.AlreadyNotNull = true
			out = append(out, tr)
			continue
		}

		countQ := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s IS NULL`, td.Name, td.TenantColumn)
		if err := m.db.QueryRowContext(ctx, countQ).Scan(&tr.NullCount); err != nil {
			return nil, fmt.Errorf("null count for %s failed: %w", td.Name, err)
		}
		tr.Ready = tr.NullCount == 0
		out = append(out, tr)
	}
	return out, nil
}

// Apply tightens the tenant column to NOT NULL on every requested, ready
// table inside a single transaction. Any blocker fails the whole batch
// before a single statement runs; any DDL failure rolls everything back.
// A partially strict schema is worse than a fully optional one.
func (m *Migrator) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	readiness, err := m.CheckReadiness(ctx, req.Tables)
	if err != nil {
		return nil, err
	}

	var blockers []TableReadiness
	for _, tr := range readiness {
		if !tr.Ready && !tr.AlreadyNotNull {
			blockers = append(blockers, tr)
		}
	}
	if len(blockers) > 0 {
		return nil, &BlockedError{Blockers: blockers}
	}

	result := &ApplyResult{Tables: readiness}
	if req.DryRun {
		return result, nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin constraint transaction: %w", err)
	}

	for _, tr := range readiness {
		if tr.AlreadyNotNull {
			continue
		}
		td, _ := orphan.Descriptor(tr.Table)
		stmt := fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s SET NOT NULL`, td.Name, td.TenantColumn)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return nil, &TxError{Table: tr.Table, Err: err}
		}
		result.AppliedCount++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit constraint transaction: %w", err)
	}
	result.Applied = true
	metrics.ConstraintsApplied.Add(float64(result.AppliedCount))

	m.logger.Info("tenant constraints applied",
		zap.Int("tables", result.AppliedCount))
	m.audit(ctx, result)

	return result, nil
}

// audit appends the forensic record of a successful apply. Best-effort: the
// schema change already committed.
func (m *Migrator) audit(ctx context.Context, result *ApplyResult) {
	q, _, err := m.store.EnsureTenant(ctx, model.QuarantineSlug, model.TenantSuspended)
	if err != nil {
		m.logger.Error("failed to resolve audit tenant for constraint apply", zap.Error(err))
		return
	}
	tables := make([]string, 0, len(result.Tables))
	for _, tr := range result.Tables {
		if !tr.AlreadyNotNull {
			tables = append(tables, tr.Table)
		}
	}
	err = m.store.InsertAuditEvent(ctx, &model.AuditEvent{
		TenantID:  q.ID,
		EventType: model.AuditConstraintApplied,
		Message:   fmt.Sprintf("NOT NULL tenant constraint applied to %d tables", result.AppliedCount),
		Metadata:  map[string]any{"tables": tables},
	})
	if err != nil {
		m.logger.Error("failed to write constraint audit event", zap.Error(err))
	}
}

func resolveTables(names []string) ([]orphan.TableDescriptor, error) {
	if len(names) == 0 {
		return orphan.Registry(), nil
	}
	out := make([]orphan.TableDescriptor, 0, len(names))
	for _, name := range names {
		td, ok := orphan.Descriptor(name)
		if !ok {
			return nil, &NotAllowedError{Table: name}
		}
		out = append(out, td)
	}
	return out, nil
}
