// internal/tenancy/enforce.go
package tenancy

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tenancy/internal/auth"
	"tenancy/internal/metrics"
	"tenancy/internal/model"
)

type Mode string

const (
	// ModeWarn records writes lacking tenant context but lets them proceed.
	ModeWarn Mode = "warn"
	// ModeStrict rejects such writes outright.
	ModeStrict Mode = "strict"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeWarn, ModeStrict:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown enforcement mode %q", s)
}

// WarningRecorder receives enforcement near-misses. Implemented by both
// health tracker backends.
type WarningRecorder interface {
	Record(w model.TenancyWarning)
}

// WriteAttempt describes the endpoint and entity of a guarded write, for
// the diagnostic trail of near-misses that would have created new orphans.
type WriteAttempt struct {
	Entity         string
	Route          string
	Method         string
	OverrideHeader string
}

// Enforcer is the single choke point preventing new orphan rows. Detection
// and remediation clean up existing ones; this guard stops the bleeding.
type Enforcer struct {
	mode     atomic.Value // Mode
	warnings WarningRecorder
	logger   *zap.Logger
}

func NewEnforcer(mode Mode, warnings WarningRecorder, logger *zap.Logger) *Enforcer {
	e := &Enforcer{warnings: warnings, logger: logger}
	e.mode.Store(mode)
	return e
}

func (e *Enforcer) Mode() Mode {
	return e.mode.Load().(Mode)
}

func (e *Enforcer) SetMode(m Mode) {
	e.mode.Store(m)
	e.logger.Info("enforcement mode changed", zap.String("mode", string(m)))
}

// RequireReadContext gates tenant-scoped reads. Privileged principals pass
// unconditionally; an ordinary principal with no effective tenant is a
// data-integrity bug on our side, not a client error.
func (e *Enforcer) RequireReadContext(tc Context) error {
	if tc.IsSuperUser {
		return nil
	}
	if tc.EffectiveTenantID == nil {
		e.logger.Error("ordinary principal has no effective tenant",
			zap.Time("occurred_at", time.Now().UTC()))
		return ErrReadContextMissing
	}
	return nil
}

// RequireWriteContext returns the tenant id a write must be scoped to. When
// no tenant is confirmable it records a missing-tenant-write warning and a
// structured diagnostic; strict mode then rejects with a typed error whose
// message tells privileged principals to supply an explicit override and
// ordinary principals that their account is misconfigured.
func (e *Enforcer) RequireWriteContext(tc Context, principal *auth.Claims, at WriteAttempt) (*uuid.UUID, error) {
	if tc.EffectiveTenantID != nil {
		return tc.EffectiveTenantID, nil
	}

	fields := []zap.Field{
		zap.String("entity", at.Entity),
		zap.String("route", at.Route),
		zap.String("method", at.Method),
		zap.String("override_header", at.OverrideHeader),
		zap.Time("occurred_at", time.Now().UTC()),
	}
	if principal != nil {
		fields = append(fields,
			zap.String("principal_id", principal.UserID),
			zap.String("principal_role", principal.Role))
	}
	e.logger.Warn("write attempted without tenant context", fields...)

	e.warnings.Record(model.TenancyWarning{
		Route:      at.Route,
		Method:     at.Method,
		WarnType:   model.WarnMissingTenantWrite,
		TenantID:   tc.TenantID,
		OccurredAt: time.Now().UTC(),
	})
	metrics.WarningsRecorded.WithLabelValues(string(model.WarnMissingTenantWrite)).Inc()

	if e.Mode() != ModeStrict {
		return nil, nil
	}

	msg := fmt.Sprintf("cannot create %s: your account has no tenant assigned; contact an administrator", at.Entity)
	if tc.IsSuperUser {
		msg = fmt.Sprintf("cannot create %s without tenant scope: supply an explicit %s override", at.Entity, OverrideHeader)
	}
	return nil, &ContextError{Code: CodeTenantContextRequired, Message: msg}
}
