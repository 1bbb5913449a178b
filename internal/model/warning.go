// internal/model/warning.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type WarnType string

const (
	WarnMissingTenantWrite WarnType = "missing-tenant-write"
	WarnMissingTenantRead  WarnType = "missing-tenant-read"
	WarnCrossTenantRead    WarnType = "cross-tenant-read"
)

// TenancyWarning is an append-only record of an enforcement near-miss.
// Rows are never mutated, only aggregated.
type TenancyWarning struct {
	Route      string     `db:"route" json:"route"`
	Method     string     `db:"http_method" json:"method"`
	WarnType   WarnType   `db:"warn_type" json:"warn_type"`
	TenantID   *uuid.UUID `db:"tenant_id" json:"tenant_id,omitempty"`
	OccurredAt time.Time  `db:"occurred_at" json:"occurred_at"`
}

// WarningFilter narrows a warning-log query. Zero values mean "no bound".
type WarningFilter struct {
	From     time.Time
	To       time.Time
	TenantID *uuid.UUID
}
