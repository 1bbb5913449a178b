// internal/tenancy/resolver.go
package tenancy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"tenancy/internal/auth"
	"tenancy/internal/model"
	"tenancy/internal/storage"
)

// TenantLookup is the read-only registry view the resolver needs.
type TenantLookup interface {
	GetTenantByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
}

// Resolver is the single authorization policy deciding which tenant's data
// a request may touch. It is consulted exactly once per request and its
// Context is the sole output; guards downstream never re-derive privilege.
type Resolver struct {
	tenants TenantLookup
}

func NewResolver(tenants TenantLookup) *Resolver {
	return &Resolver{tenants: tenants}
}

// Resolve produces the tenant context for a principal.
//
// Privileged principals pick their effective tenant from the first non-empty
// of [override header, impersonated-tenant claim, acting-tenant claim]; with
// none supplied they operate with no tenant scope at all (cross-tenant admin
// views). A selected tenant must exist, but suspended or pending tenants are
// accepted so admins can work on tenants before provisioning completes.
//
// Ordinary principals are always scoped to their own tenant. Override inputs
// are never consulted for them; honoring any would be privilege escalation.
func (r *Resolver) Resolve(ctx context.Context, principal *auth.Claims, override string) (Context, error) {
	if principal == nil {
		return Context{}, nil
	}

	own, err := parseOptionalID(principal.TenantID, "principal tenant id")
	if err != nil {
		return Context{}, err
	}

	if !principal.IsSuperUser() {
		return Context{TenantID: own, EffectiveTenantID: own}, nil
	}

	tc := Context{TenantID: own, IsSuperUser: true}

	selected := firstNonEmpty(override, principal.ImpersonatedTenantID, principal.ActingTenantID)
	if selected == "" {
		return tc, nil
	}

	id, err := uuid.Parse(selected)
	if err != nil {
		return Context{}, fmt.Errorf("invalid tenant override %q: %w", selected, err)
	}
	if _, err := r.tenants.GetTenantByID(ctx, id); err != nil {
		if errors.Is(err, storage.ErrTenantNotFound) {
			return Context{}, fmt.Errorf("tenant %s: %w", id, ErrTenantNotFound)
		}
		return Context{}, err
	}

	tc.EffectiveTenantID = &id
	return tc, nil
}

// Middleware resolves tenant context for every request and attaches it. The
// override header is read inside the privileged branch of Resolve only.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		principal := auth.GetClaims(req)

		override := ""
		if principal != nil && principal.IsSuperUser() {
			override = req.Header.Get(OverrideHeader)
		}

		tc, err := r.Resolve(req.Context(), principal, override)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, ErrTenantNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}

		next.ServeHTTP(w, req.WithContext(WithContext(req.Context(), tc)))
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseOptionalID(s, what string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	return &id, nil
}
