// internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"tenancy/internal/model"
)

// ErrTenantNotFound is returned for lookups that match no tenant row.
var ErrTenantNotFound = errors.New("tenant not found")

type Storage struct {
	DB *sql.DB
}

func NewStorage(dsn string) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	return &Storage{DB: db}, nil
}

func (s *Storage) GetTenantByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	return s.scanTenant(s.DB.QueryRowContext(ctx, `
		SELECT id, slug, status, created_at FROM tenants WHERE id = $1`, id))
}

func (s *Storage) GetTenantBySlug(ctx context.Context, slug string) (*model.Tenant, error) {
	return s.scanTenant(s.DB.QueryRowContext(ctx, `
		SELECT id, slug, status, created_at FROM tenants WHERE slug = $1`, slug))
}

func (s *Storage) scanTenant(row *sql.Row) (*model.Tenant, error) {
	var t model.Tenant
	if err := row.Scan(&t.ID, &t.Slug, &t.Status, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("tenant lookup failed: %w", err)
	}
	return &t, nil
}

// EnsureTenant creates a tenant with the given slug if it does not already
// exist and returns the row either way. The slug's unique index makes the
// create idempotent under concurrent callers.
func (s *Storage) EnsureTenant(ctx context.Context, slug string, status model.TenantStatus) (*model.Tenant, bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO tenants (id, slug, status, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (slug) DO NOTHING`, uuid.New(), slug, status)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure tenant %q: %w", slug, err)
	}
	inserted, _ := res.RowsAffected()

	t, err := s.GetTenantBySlug(ctx, slug)
	if err != nil {
		return nil, false, err
	}
	return t, inserted > 0, nil
}

func (s *Storage) CountActiveTenants(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tenants WHERE status = $1`, model.TenantActive).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count tenants: %w", err)
	}
	return n, nil
}

// InsertAuditEvent appends a write-once event row. Metadata is stored as
// JSONB; callers never update or delete these rows.
func (s *Storage) InsertAuditEvent(ctx context.Context, ev *model.AuditEvent) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode audit metadata: %w", err)
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO tenant_audit_events (id, tenant_id, actor_user_id, event_type, message, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.TenantID, ev.ActorUserID, ev.EventType, ev.Message, meta, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}
