// internal/tenancy/errors.go
package tenancy

import (
	"errors"
	"fmt"
)

// ErrTenantNotFound is returned when a privileged override names a tenant
// that has no row. Suspended and pending tenants are not treated as missing.
var ErrTenantNotFound = errors.New("tenant not found")

// ErrReadContextMissing marks an ordinary principal with no resolvable
// tenant scope. This is a server misconfiguration, not a client error.
var ErrReadContextMissing = errors.New("no tenant context available for read")

// CodeTenantContextRequired is the stable machine-readable code carried by
// ContextError for writes attempted without a confirmable tenant id.
const CodeTenantContextRequired = "TENANT_CONTEXT_REQUIRED"

// ContextError is raised when a write lacks tenant context under strict
// enforcement. It is always recoverable by the caller supplying explicit
// scope.
type ContextError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
