// internal/model/audit.go
package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	AuditQuarantineCreated  = "quarantine_tenant_created"
	AuditRemediationPlanned = "orphan_remediation_planned"
	AuditRemediationRun     = "orphan_remediation_executed"
	AuditBackfillPlanned    = "default_backfill_planned"
	AuditBackfillRun        = "default_backfill_executed"
	AuditConstraintApplied  = "tenant_constraint_applied"
)

// AuditEvent is a write-once record attached to the tenant the event
// concerns (the quarantine tenant for cross-tenant remediation runs).
type AuditEvent struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	TenantID    uuid.UUID      `db:"tenant_id" json:"tenant_id"`
	ActorUserID *uuid.UUID     `db:"actor_user_id" json:"actor_user_id,omitempty"`
	EventType   string         `db:"event_type" json:"event_type"`
	Message     string         `db:"message" json:"message"`
	Metadata    map[string]any `db:"metadata" json:"metadata,omitempty"`
	OccurredAt  time.Time      `db:"occurred_at" json:"occurred_at"`
}
