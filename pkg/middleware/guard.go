package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/rbacabac/pkg/attributes"
	"github.com/platinummonkey/rbacabac/pkg/authz"
	"github.com/platinummonkey/rbacabac/pkg/contextkeys"
	"github.com/platinummonkey/rbacabac/pkg/httputil"
	"github.com/platinummonkey/rbacabac/pkg/observability"
)

// AttributeProvider supplies attribute bundles; *attributes.Store implements it
type AttributeProvider interface {
	GetUserAttributes(ctx context.Context, userID, service string) (*attributes.UserAttributes, error)
}

// ObjectLoader fetches the object a request acts on. It returns a nil object for
// object-less actions such as create.
type ObjectLoader func(r *http.Request) (any, error)

// PathObject loads the object identified by the gorilla/mux path variable param
func PathObject(param string, fetch func(ctx context.Context, id string) (any, error)) ObjectLoader {
	return func(r *http.Request) (any, error) {
		id, err := httputil.ParsePathString(r, param)
		if err != nil {
			return nil, err
		}
		return fetch(r.Context(), id)
	}
}

// DenyFunc writes the response for a rejected request. status is 401 for a missing
// identity and 403 for every other denial.
type DenyFunc func(w http.ResponseWriter, r *http.Request, status int)

// DefaultDeny writes a fixed JSON body that reveals nothing about why access was denied
func DefaultDeny(w http.ResponseWriter, _ *http.Request, status int) {
	if status == http.StatusUnauthorized {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	httputil.WriteForbidden(w, "access denied")
}

// Guard protects handlers with policy checks
type Guard struct {
	evaluator *authz.Evaluator
	identity  IdentityResolver
	attrs     AttributeProvider
	logger    *logrus.Logger
	deny      DenyFunc
}

// GuardOption configures a Guard
type GuardOption func(*Guard)

// WithGuardLogger sets the logger
func WithGuardLogger(logger *logrus.Logger) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithDenyFunc replaces the denial response
func WithDenyFunc(deny DenyFunc) GuardOption {
	return func(g *Guard) {
		if deny != nil {
			g.deny = deny
		}
	}
}

// NewGuard creates a guard
func NewGuard(evaluator *authz.Evaluator, identity IdentityResolver, attrs AttributeProvider, opts ...GuardOption) *Guard {
	g := &Guard{
		evaluator: evaluator,
		identity:  identity,
		attrs:     attrs,
		logger:    observability.NewDiscardLogger(),
		deny:      DefaultDeny,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Require allows the request only if the policy bound to action allows the caller on
// the object returned by loader. A nil loader checks with a nil object.
func (g *Guard) Require(action string, binding authz.Binding, loader ObjectLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, r, ok := g.authenticate(w, r)
			if !ok {
				return
			}

			var obj any
			if loader != nil {
				var err error
				obj, err = loader(r)
				if err != nil {
					g.entry(r).WithError(err).WithField("action", action).Warn("failed to load object, denying")
					g.deny(w, r, http.StatusForbidden)
					return
				}
			}

			if !g.evaluator.Check(r.Context(), user, obj, action, binding) {
				g.deny(w, r, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireList compiles the filter for action and stores it in the request context. When
// the bound policy has no filter form the request proceeds with the fallback flag set
// and the handler must filter records in process.
func (g *Guard) RequireList(action string, binding authz.Binding) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, r, ok := g.authenticate(w, r)
			if !ok {
				return
			}

			plan, err := g.evaluator.PlanList(r.Context(), user, action, binding)
			if err != nil {
				g.entry(r).WithError(err).WithField("action", action).Error("failed to plan list authorization, denying")
				g.deny(w, r, http.StatusForbidden)
				return
			}

			ctx := r.Context()
			if plan.Fallback {
				ctx = contextkeys.WithListFallback(ctx)
			} else {
				ctx = contextkeys.WithFilter(ctx, plan.Predicate)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate resolves the identity and loads attributes. On failure it has already
// written the denial.
func (g *Guard) authenticate(w http.ResponseWriter, r *http.Request) (*attributes.UserAttributes, *http.Request, bool) {
	id, err := g.identity.Resolve(r)
	if err != nil || id.UserID == "" {
		g.entry(r).WithError(err).Debug("no authenticated identity")
		g.deny(w, r, http.StatusUnauthorized)
		return nil, r, false
	}

	ctx := contextkeys.WithUserID(r.Context(), id.UserID)
	r = r.WithContext(ctx)

	user, err := g.attrs.GetUserAttributes(ctx, id.UserID, id.Service)
	if err != nil {
		log := g.entry(r).WithError(err).WithField("service", id.Service)
		if errors.Is(err, attributes.ErrDependencyUnavailable) {
			log.Error("attributes unavailable, denying")
		} else {
			log.Warn("failed to load attributes, denying")
		}
		g.deny(w, r, http.StatusForbidden)
		return nil, r, false
	}

	return user, r.WithContext(contextkeys.WithAttributes(ctx, user)), true
}

func (g *Guard) entry(r *http.Request) *logrus.Entry {
	return observability.FromContext(r.Context(), g.logger)
}
