package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rbacabac/pkg/attributes"
	"github.com/platinummonkey/rbacabac/pkg/audit"
	"github.com/platinummonkey/rbacabac/pkg/authz"
	"github.com/platinummonkey/rbacabac/pkg/filter"
	"github.com/platinummonkey/rbacabac/pkg/httputil"
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

type fakeProvider struct {
	users map[string]*attributes.UserAttributes
	err   error
}

func (f *fakeProvider) GetUserAttributes(_ context.Context, userID, service string) (*attributes.UserAttributes, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.users[userID]; ok {
		return u.Clone(), nil
	}
	return attributes.Empty(userID, service), nil
}

var reports = map[string]*report{
	"1": {ID: "1", Owner: "alice", Dept: "Sales"},
	"2": {ID: "2", Owner: "bob", Dept: "Ops"},
}

var errNoReport = errors.New("report not found")

func loadReport(_ context.Context, id string) (any, error) {
	r, ok := reports[id]
	if !ok {
		return nil, errNoReport
	}
	return r, nil
}

var binding = authz.Binding{
	"view":   policy.OwnershipOrDepartment,
	"create": policy.IsAdmin,
	"list":   policy.OwnershipOrDepartment,
	"audit":  "active_only",
}

func setupRouter(t *testing.T, provider AttributeProvider) *mux.Router {
	t.Helper()
	reg := policy.NewRegistry()
	require.NoError(t, policy.RegisterDefaults(reg))
	require.NoError(t, reg.RegisterCondition("active_only", policy.ActiveAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))

	guard := NewGuard(authz.NewEvaluator(reg), NewHeaderIdentity("costs"), provider)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := AttributesFromContext(r.Context())
		_, _ = io.WriteString(w, "ok:"+user.UserID)
	})
	list := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ListFallbackFromContext(r.Context()) {
			_, _ = io.WriteString(w, "fallback")
			return
		}
		p, found := FilterFromContext(r.Context())
		require.True(t, found)
		_, _ = io.WriteString(w, p.String())
	})

	r := mux.NewRouter()
	r.Handle("/reports/{id}", guard.Require("view", binding, PathObject("id", loadReport))(ok)).Methods(http.MethodGet)
	r.Handle("/reports/{id}/archive", guard.Require("archive", binding, PathObject("id", loadReport))(ok)).Methods(http.MethodPost)
	r.Handle("/reports", guard.Require("create", binding, nil)(ok)).Methods(http.MethodPost)
	r.Handle("/reports", guard.RequireList("list", binding)(list)).Methods(http.MethodGet)
	r.Handle("/audits", guard.RequireList("audit", binding)(list)).Methods(http.MethodGet)
	return r
}

func do(router http.Handler, method, path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set(DefaultIdentityHeader, user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func newUser(id, dept string, roles ...string) *attributes.UserAttributes {
	u := attributes.Empty(id, "costs")
	u.Department = dept
	u.Roles = attributes.NewStringSet(roles...)
	return u
}

func TestGuard_Require(t *testing.T) {
	router := setupRouter(t, &fakeProvider{users: map[string]*attributes.UserAttributes{
		"alice": newUser("alice", "Sales"),
		"carol": newUser("carol", "Sales"),
		"dave":  newUser("dave", "Ops", policy.RoleAdmin),
	}})

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		status int
	}{
		{"owner", http.MethodGet, "/reports/1", "alice", http.StatusOK},
		{"same department", http.MethodGet, "/reports/1", "carol", http.StatusOK},
		{"other department", http.MethodGet, "/reports/2", "carol", http.StatusForbidden},
		{"unknown user has empty bundle", http.MethodGet, "/reports/1", "mallory", http.StatusForbidden},
		{"missing object", http.MethodGet, "/reports/404", "alice", http.StatusForbidden},
		{"unmapped action", http.MethodPost, "/reports/1/archive", "alice", http.StatusForbidden},
		{"create requires admin", http.MethodPost, "/reports", "alice", http.StatusForbidden},
		{"admin creates", http.MethodPost, "/reports", "dave", http.StatusOK},
		{"no identity", http.MethodGet, "/reports/1", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, tt.method, tt.path, tt.user)
			assert.Equal(t, tt.status, w.Code)
			switch tt.status {
			case http.StatusOK:
				assert.Equal(t, "ok:"+tt.user, w.Body.String())
			case http.StatusForbidden:
				assert.JSONEq(t, `{"error":"access denied"}`, w.Body.String())
			}
		})
	}
}

func TestGuard_DependencyUnavailableDenies(t *testing.T) {
	provider := &fakeProvider{err: &attributes.DependencyError{Dependency: "cache", Err: errors.New("connection refused")}}
	router := setupRouter(t, provider)

	w := do(router, http.MethodGet, "/reports/1", "alice")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"access denied"}`, w.Body.String(), "the deny body must not reveal the cause")

	w = do(router, http.MethodGet, "/reports", "alice")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGuard_RequireList(t *testing.T) {
	router := setupRouter(t, &fakeProvider{users: map[string]*attributes.UserAttributes{
		"alice": newUser("alice", "Sales"),
	}})

	w := do(router, http.MethodGet, "/reports", "alice")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, filter.AnyOf(
		filter.Eq{Field: "owner_id", Value: "alice"},
		filter.Eq{Field: "department", Value: "Sales"},
	).String(), w.Body.String())

	w = do(router, http.MethodGet, "/audits", "alice")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fallback", w.Body.String())

	w = do(router, http.MethodGet, "/reports", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGuard_CustomDeny(t *testing.T) {
	reg := policy.NewRegistry()
	require.NoError(t, policy.RegisterDefaults(reg))
	var statuses []int
	guard := NewGuard(authz.NewEvaluator(reg), NewHeaderIdentity("costs"), &fakeProvider{},
		WithDenyFunc(func(w http.ResponseWriter, r *http.Request, status int) {
			statuses = append(statuses, status)
			w.WriteHeader(http.StatusNotFound)
		}))

	h := guard.Require("view", binding, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	w := do(h, http.MethodGet, "/", "mallory")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, []int{http.StatusForbidden, http.StatusUnauthorized}, statuses)
}

func TestHeaderIdentity(t *testing.T) {
	h := NewHeaderIdentity("costs")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := h.Resolve(req)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	req.Header.Set(DefaultIdentityHeader, "  ")
	_, err = h.Resolve(req)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	req.Header.Set(DefaultIdentityHeader, "alice")
	id, err := h.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "alice", Service: "costs"}, id)

	custom := &HeaderIdentity{Header: "X-User", Service: "billing"}
	req.Header.Set("X-User", "bob")
	id, err = custom.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "bob", id.UserID)
}

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

func TestGuard_AuditCarriesRequestID(t *testing.T) {
	reg := policy.NewRegistry()
	require.NoError(t, policy.RegisterDefaults(reg))

	sink := &recordingSink{}
	evaluator := authz.NewEvaluator(reg, authz.WithAuditSink(sink))
	provider := &fakeProvider{users: map[string]*attributes.UserAttributes{
		"alice": newUser("alice", "Sales"),
	}}
	guard := NewGuard(evaluator, NewHeaderIdentity("costs"), provider)

	r := mux.NewRouter()
	r.Use(httputil.RequestIDMiddleware, httputil.RecoveryMiddleware(observability.NewDiscardLogger()))
	r.Handle("/reports/{id}", guard.Require("view", binding, PathObject("id", loadReport))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "ok")
		}))).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/reports/2", nil)
	req.Header.Set(DefaultIdentityHeader, "alice")
	req.Header.Set(httputil.RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "req-42", w.Header().Get(httputil.RequestIDHeader))
	require.NoError(t, evaluator.Close(time.Second))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, audit.OutcomeDeny, rec.Outcome)
	assert.Equal(t, "req-42", rec.RequestID)
	assert.Equal(t, "alice", rec.UserID)
	assert.Equal(t, "view", rec.Action)
	assert.Equal(t, policy.OwnershipOrDepartment, rec.Policy)
}
