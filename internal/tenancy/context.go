// internal/tenancy/context.go
package tenancy

import (
	"context"

	"github.com/google/uuid"
)

// OverrideHeader selects the effective tenant for privileged principals.
// It is read only inside the privileged resolution branch and must never
// influence resolution for ordinary principals.
const OverrideHeader = "X-Tenant-Id"

// Context is the request-scoped tenant scope. It is immutable once resolved
// and never persisted. For ordinary principals EffectiveTenantID always
// equals TenantID; only privileged principals may diverge via an explicit
// override.
type Context struct {
	TenantID          *uuid.UUID
	EffectiveTenantID *uuid.UUID
	IsSuperUser       bool
}

type ctxKey struct{}

// WithContext attaches a resolved tenant context to the request context.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext returns the tenant context resolved for this request. The
// zero Context (anonymous, no scope) is returned when resolution never ran.
func FromContext(ctx context.Context) Context {
	if tc, ok := ctx.Value(ctxKey{}).(Context); ok {
		return tc
	}
	return Context{}
}
