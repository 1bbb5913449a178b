// internal/model/tenant.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantPending   TenantStatus = "pending"
)

// QuarantineSlug is the reserved slug of the sentinel tenant that receives
// rows whose real tenant cannot be inferred. The row is created lazily on
// first use and never provisioned.
const QuarantineSlug = "quarantine"

type Tenant struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	Slug      string       `db:"slug" json:"slug"`
	Status    TenantStatus `db:"status" json:"status"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}
