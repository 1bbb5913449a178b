// internal/health/memory.go
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tenancy/internal/model"
)

// MemoryTracker keeps the newest warnings in a bounded ring buffer. Contents
// are lost on restart; deployments that need durability use the Postgres
// backend instead. All methods are safe for concurrent use.
type MemoryTracker struct {
	mu   sync.Mutex
	buf  []model.TenancyWarning
	next int
	full bool
}

func NewMemoryTracker(capacity int) *MemoryTracker {
	if capacity <= 0 {
		capacity = 500
	}
	return &MemoryTracker{buf: make([]model.TenancyWarning, capacity)}
}

func (m *MemoryTracker) Record(w model.TenancyWarning) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf[m.next] = w
	m.next++
	if m.next == len(m.buf) {
		m.next = 0
		m.full = true
	}
}

func (m *MemoryTracker) snapshot() []model.TenancyWarning {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		out := make([]model.TenancyWarning, m.next)
		copy(out, m.buf[:m.next])
		return out
	}
	out := make([]model.TenancyWarning, 0, len(m.buf))
	out = append(out, m.buf[m.next:]...)
	out = append(out, m.buf[:m.next]...)
	return out
}

func (m *MemoryTracker) StatsSince(_ context.Context, since time.Time) (Stats, error) {
	stats := Stats{CountsByType: make(map[model.WarnType]int64)}
	for _, w := range m.snapshot() {
		if w.OccurredAt.Before(since) {
			continue
		}
		stats.Total++
		stats.CountsByType[w.WarnType]++
	}
	return stats, nil
}

func (m *MemoryTracker) StatsSinceForTenant(_ context.Context, since time.Time, tenantID uuid.UUID) (Stats, error) {
	stats := Stats{CountsByType: make(map[model.WarnType]int64)}
	for _, w := range m.snapshot() {
		if w.OccurredAt.Before(since) || w.TenantID == nil || *w.TenantID != tenantID {
			continue
		}
		stats.Total++
		stats.CountsByType[w.WarnType]++
	}
	return stats, nil
}

func (m *MemoryTracker) TopRoutes(_ context.Context, limit int) ([]RouteCount, error) {
	type key struct{ route, method string }
	counts := make(map[key]int64)
	for _, w := range m.snapshot() {
		counts[key{w.Route, w.Method}]++
	}

	out := make([]RouteCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, RouteCount{Route: k.route, Method: k.method, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Route < out[j].Route
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
