package tenancy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tenancy/internal/auth"
	"tenancy/internal/model"
)

type captureRecorder struct {
	warnings []model.TenancyWarning
}

func (c *captureRecorder) Record(w model.TenancyWarning) {
	c.warnings = append(c.warnings, w)
}

func attempt() WriteAttempt {
	return WriteAttempt{Entity: "task", Route: "/tasks", Method: "POST"}
}

func TestRequireWriteContextWithScope(t *testing.T) {
	rec := &captureRecorder{}
	e := NewEnforcer(ModeStrict, rec, zap.NewNop())

	id := uuid.New()
	tc := Context{TenantID: &id, EffectiveTenantID: &id}

	got, err := e.RequireWriteContext(tc, &auth.Claims{Role: "member"}, attempt())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, *got)
	assert.Empty(t, rec.warnings)
}

func TestRequireWriteContextStrictRejectsOrdinary(t *testing.T) {
	rec := &captureRecorder{}
	e := NewEnforcer(ModeStrict, rec, zap.NewNop())

	got, err := e.RequireWriteContext(Context{}, &auth.Claims{UserID: "u1", Role: "member"}, attempt())
	assert.Nil(t, got)

	var ctxErr *ContextError
	require.ErrorAs(t, err, &ctxErr)
	assert.Equal(t, CodeTenantContextRequired, ctxErr.Code)
	assert.Contains(t, ctxErr.Message, "contact an administrator")

	require.Len(t, rec.warnings, 1)
	assert.Equal(t, model.WarnMissingTenantWrite, rec.warnings[0].WarnType)
	assert.Equal(t, "/tasks", rec.warnings[0].Route)
}

func TestRequireWriteContextStrictTellsSuperUserToOverride(t *testing.T) {
	rec := &captureRecorder{}
	e := NewEnforcer(ModeStrict, rec, zap.NewNop())

	_, err := e.RequireWriteContext(
		Context{IsSuperUser: true},
		&auth.Claims{UserID: "admin", Role: auth.RoleSuperUser},
		attempt())

	var ctxErr *ContextError
	require.ErrorAs(t, err, &ctxErr)
	assert.Contains(t, ctxErr.Message, OverrideHeader)
}

func TestRequireWriteContextWarnModePermits(t *testing.T) {
	rec := &captureRecorder{}
	e := NewEnforcer(ModeWarn, rec, zap.NewNop())

	got, err := e.RequireWriteContext(Context{}, &auth.Claims{UserID: "u1", Role: "member"}, attempt())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Len(t, rec.warnings, 1, "warn mode still records the near-miss")
}

func TestSetModeTakesEffect(t *testing.T) {
	rec := &captureRecorder{}
	e := NewEnforcer(ModeWarn, rec, zap.NewNop())

	_, err := e.RequireWriteContext(Context{}, nil, attempt())
	require.NoError(t, err)

	e.SetMode(ModeStrict)
	_, err = e.RequireWriteContext(Context{}, nil, attempt())
	var ctxErr *ContextError
	require.ErrorAs(t, err, &ctxErr)
}

func TestRequireReadContext(t *testing.T) {
	e := NewEnforcer(ModeWarn, &captureRecorder{}, zap.NewNop())

	assert.NoError(t, e.RequireReadContext(Context{IsSuperUser: true}),
		"super users pass without scope")

	id := uuid.New()
	assert.NoError(t, e.RequireReadContext(Context{TenantID: &id, EffectiveTenantID: &id}))

	err := e.RequireReadContext(Context{})
	assert.ErrorIs(t, err, ErrReadContextMissing)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("warn")
	require.NoError(t, err)
	assert.Equal(t, ModeWarn, m)

	m, err = ParseMode("strict")
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, m)

	_, err = ParseMode("loose")
	assert.Error(t, err)
}
