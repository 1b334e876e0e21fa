package authz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rbacabac/pkg/attributes"
	"github.com/platinummonkey/rbacabac/pkg/audit"
	"github.com/platinummonkey/rbacabac/pkg/contextkeys"
	"github.com/platinummonkey/rbacabac/pkg/filter"
	"github.com/platinummonkey/rbacabac/pkg/observability"
	"github.com/platinummonkey/rbacabac/pkg/policy"
)

type report struct {
	ID    string
	Owner string
	Dept  string
}

func (r *report) OwnerID() string    { return r.Owner }
func (r *report) Department() string { return r.Dept }
func (r *report) ObjectRef() string  { return "report:" + r.ID }

type recordingSink struct {
	mu      sync.Mutex
	records []*audit.Record
}

func (s *recordingSink) Record(_ context.Context, rec *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) all() []*audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*audit.Record(nil), s.records...)
}

type panickingSink struct{}

func (panickingSink) Record(context.Context, *audit.Record) error { panic("sink exploded") }
func (panickingSink) Close() error                                { return nil }

func newUser(id, dept string, roles ...string) *attributes.UserAttributes {
	u := attributes.Empty(id, "costs")
	u.Department = dept
	u.Roles = attributes.NewStringSet(roles...)
	return u
}

func setupEvaluator(t *testing.T, opts ...Option) *Evaluator {
	t.Helper()
	reg := policy.NewRegistry()
	require.NoError(t, policy.RegisterDefaults(reg))
	return NewEvaluator(reg, opts...)
}

var reportBinding = Binding{
	"view":   policy.OwnershipOrDepartment,
	"edit":   policy.OwnershipCheck,
	"delete": policy.IsAdmin,
	"list":   policy.OwnershipOrDepartment,
}

func TestCheck_OwnershipScenario(t *testing.T) {
	e := setupEvaluator(t)
	ctx := context.Background()
	obj := &report{ID: "1", Owner: "u1"}
	binding := Binding{"view": policy.OwnershipCheck}

	assert.True(t, e.Check(ctx, newUser("u1", ""), obj, "view", binding))
	assert.False(t, e.Check(ctx, newUser("v1", ""), obj, "view", binding))
}

func TestCheck_DepartmentOrOwnershipScenario(t *testing.T) {
	e := setupEvaluator(t)
	obj := &report{ID: "1", Owner: "someone-else", Dept: "Sales"}

	assert.True(t, e.Check(context.Background(), newUser("u1", "Sales"), obj, "view", reportBinding))
}

func TestCheck_Deterministic(t *testing.T) {
	e := setupEvaluator(t)
	u := newUser("u1", "Sales")
	obj := &report{ID: "1", Owner: "u2", Dept: "Sales"}

	first := e.Check(context.Background(), u, obj, "view", reportBinding)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, e.Check(context.Background(), u, obj, "view", reportBinding))
	}
}

func TestDecide_FailsClosed(t *testing.T) {
	reg := policy.NewRegistry()
	require.NoError(t, policy.RegisterDefaults(reg))
	require.NoError(t, reg.Register("explodes", func(*attributes.UserAttributes, any, string) (bool, error) {
		panic("index out of range")
	}))
	require.NoError(t, reg.Register("errors", func(*attributes.UserAttributes, any, string) (bool, error) {
		return true, errors.New("backend gone")
	}))

	logger, hook := test.NewNullLogger()
	e := NewEvaluator(reg, WithLogger(logger))
	binding := Binding{
		"view":    policy.OwnershipCheck,
		"missing": "not_registered",
		"panic":   "explodes",
		"error":   "errors",
	}
	u := newUser("u1", "")
	obj := &report{ID: "1", Owner: "u1"}

	tests := []struct {
		name   string
		user   *attributes.UserAttributes
		action string
		reason string
		logged bool
	}{
		{"unmapped action", u, "archive", ReasonUnmappedAction, false},
		{"unknown policy", u, "missing", ReasonPolicyNotFound, true},
		{"panicking policy", u, "panic", ReasonPolicyError, true},
		{"erroring policy", u, "error", ReasonPolicyError, true},
		{"nil user", nil, "view", ReasonNoUser, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook.Reset()
			d := e.Decide(context.Background(), tt.user, obj, tt.action, binding)
			assert.False(t, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
			if tt.logged {
				require.NotNil(t, hook.LastEntry())
				assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
				assert.Error(t, d.Err)
			}
		})
	}
}

func TestCheck_EmptyBundleDeniedWithoutError(t *testing.T) {
	e := setupEvaluator(t)
	empty := attributes.Empty("u1", "costs")

	d := e.Decide(context.Background(), empty, nil, "delete", reportBinding)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDenied, d.Reason)
	assert.NoError(t, d.Err)
}

func TestDecide_PopulatesFields(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := setupEvaluator(t, WithClock(func() time.Time { return now }))

	d := e.Decide(context.Background(), newUser("u1", ""), &report{ID: "9", Owner: "u1"}, "edit", reportBinding)
	assert.Equal(t, Decision{
		Allowed:   true,
		Action:    "edit",
		Policy:    policy.OwnershipCheck,
		Reason:    ReasonAllowed,
		UserID:    "u1",
		Service:   "costs",
		ObjectRef: "report:9",
		Timestamp: now,
	}, d)
}

func TestAllowedActions(t *testing.T) {
	e := setupEvaluator(t)
	ctx := context.Background()
	obj := &report{ID: "1", Owner: "u1", Dept: "Sales"}

	assert.Equal(t, []string{"edit", "list", "view"}, e.AllowedActions(ctx, newUser("u1", ""), obj, reportBinding))
	assert.Equal(t, []string{"list", "view"}, e.AllowedActions(ctx, newUser("u2", "Sales"), obj, reportBinding))
	assert.Equal(t, []string{"delete"}, e.AllowedActions(ctx, newUser("u3", "Ops", policy.RoleAdmin), obj, reportBinding))
	assert.Empty(t, e.AllowedActions(ctx, nil, obj, reportBinding))

	// Consistent with Check for every action
	u := newUser("u2", "Sales")
	allowed := e.AllowedActions(ctx, u, obj, reportBinding)
	for _, action := range reportBinding.Actions() {
		assert.Equal(t, e.Check(ctx, u, obj, action, reportBinding), contains(allowed, action), action)
	}
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func TestCompileFilter(t *testing.T) {
	reg := policy.NewRegistry()
	require.NoError(t, policy.RegisterDefaults(reg))
	require.NoError(t, reg.Register("func_only", func(*attributes.UserAttributes, any, string) (bool, error) {
		return true, nil
	}))
	require.NoError(t, reg.RegisterCondition("bad_attr", policy.AttrEquals("region", "region")))
	e := NewEvaluator(reg)
	ctx := context.Background()

	binding := Binding{
		"list":     policy.OwnershipOrDepartment,
		"unknown":  "not_registered",
		"func":     "func_only",
		"bad_attr": "bad_attr",
	}
	u := newUser("u1", "Sales")

	pred, err := e.CompileFilter(ctx, u, "list", binding)
	require.NoError(t, err)
	assert.Equal(t, filter.Or{
		filter.Eq{Field: "owner_id", Value: "u1"},
		filter.Eq{Field: "department", Value: "Sales"},
	}, pred)

	pred, err = e.CompileFilter(ctx, u, "archive", binding)
	require.NoError(t, err)
	assert.Equal(t, filter.False, pred, "unmapped action selects nothing")

	pred, err = e.CompileFilter(ctx, u, "unknown", binding)
	require.NoError(t, err)
	assert.Equal(t, filter.False, pred)

	pred, err = e.CompileFilter(ctx, nil, "list", binding)
	require.NoError(t, err)
	assert.Equal(t, filter.False, pred)

	_, err = e.CompileFilter(ctx, u, "func", binding)
	assert.ErrorIs(t, err, policy.ErrNoFilterAvailable)

	u.ServiceAttrs["region"] = map[string]any{"nested": true}
	pred, err = e.CompileFilter(ctx, u, "bad_attr", binding)
	require.NoError(t, err)
	assert.Equal(t, filter.False, pred, "a failing filter form denies everything")
}

func TestAudit_RecordsEveryDecision(t *testing.T) {
	sink := &recordingSink{}
	e := setupEvaluator(t, WithAuditSink(sink))
	ctx := contextkeys.WithRequestID(context.Background(), "req-1")

	e.Check(ctx, newUser("u1", ""), &report{ID: "1", Owner: "u1"}, "edit", reportBinding)
	e.Check(ctx, newUser("u2", ""), &report{ID: "1", Owner: "u1"}, "edit", reportBinding)
	require.NoError(t, e.Close(time.Second))

	records := sink.all()
	require.Len(t, records, 2)

	byUser := map[string]*audit.Record{}
	for _, r := range records {
		byUser[r.UserID] = r
	}
	assert.Equal(t, audit.OutcomeAllow, byUser["u1"].Outcome)
	assert.Equal(t, audit.OutcomeDeny, byUser["u2"].Outcome)
	assert.Equal(t, "report:1", byUser["u2"].ObjectRef)
	assert.Equal(t, policy.OwnershipCheck, byUser["u2"].Policy)
	assert.Equal(t, "req-1", byUser["u2"].RequestID)
	assert.Equal(t, ReasonDenied, byUser["u2"].Reason)
}

func TestAudit_SinkPanicDoesNotAffectDecision(t *testing.T) {
	logger, _ := test.NewNullLogger()
	e := setupEvaluator(t, WithLogger(logger), WithAuditSink(panickingSink{}))

	assert.True(t, e.Check(context.Background(), newUser("u1", ""), &report{Owner: "u1"}, "edit", reportBinding))
	require.NoError(t, e.Close(time.Second))
}

func TestMetrics_DecisionsCounted(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	e := setupEvaluator(t, WithMetrics(m))

	e.Check(context.Background(), newUser("u1", ""), &report{Owner: "u1"}, "edit", reportBinding)
	e.Check(context.Background(), newUser("u2", ""), &report{Owner: "u1"}, "edit", reportBinding)
	e.Check(context.Background(), newUser("u2", ""), nil, "archive", reportBinding)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues(policy.OwnershipCheck, "allow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues(policy.OwnershipCheck, "deny")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("none", "deny")))
}

type brokenRef struct{}

func (brokenRef) ObjectRef() string { panic("no ref") }

func TestObjectRef(t *testing.T) {
	assert.Equal(t, "", ObjectRef(nil))
	assert.Equal(t, "", ObjectRef((*report)(nil)))
	assert.Equal(t, "report:7", ObjectRef(&report{ID: "7"}))
	assert.Equal(t, "map[string]interface {}", ObjectRef(map[string]any{}))
	assert.Equal(t, "authz.brokenRef", ObjectRef(brokenRef{}))
}

func TestCheck_TypedNilObjectDenies(t *testing.T) {
	e := setupEvaluator(t)
	ctx := context.Background()
	var missing *report

	assert.NotPanics(t, func() {
		assert.False(t, e.Check(ctx, newUser("u1", "finance"), missing, "edit", reportBinding))
	})

	d := e.Decide(ctx, newUser("u1", "finance"), missing, "view", reportBinding)
	assert.False(t, d.Allowed)
	assert.Empty(t, d.ObjectRef)

	assert.NotPanics(t, func() {
		e.AllowedActions(ctx, attributes.Empty("u1", "reports"), missing, reportBinding)
	})
}

func TestBinding_Actions(t *testing.T) {
	assert.Equal(t, []string{"delete", "edit", "list", "view"}, reportBinding.Actions())
	assert.Empty(t, Binding{}.Actions())
}
