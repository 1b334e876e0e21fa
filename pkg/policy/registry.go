package policy

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/rbacabac/pkg/attributes"
	"github.com/platinummonkey/rbacabac/pkg/filter"
	"github.com/platinummonkey/rbacabac/pkg/observability"
)

// Registry maps policy names to policies.
//
// A Registry is built once at startup and then shared read-only by evaluators.
// Components must be registered before composites that reference them. Registration is
// guarded by a lock, so late registration is safe but not expected.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	logger   *logrus.Logger
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger
func WithRegistryLogger(logger *logrus.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		policies: make(map[string]*Policy),
		logger:   observability.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a function policy. Registering an existing name fails with ErrPolicyExists.
func (r *Registry) Register(name string, fn Func, opts ...Option) error {
	if fn == nil {
		return fmt.Errorf("%w: %q has no check function", ErrInvalidPolicy, name)
	}
	p := &Policy{Name: name, Check: fn}
	for _, opt := range opts {
		opt(p)
	}
	return r.add(p)
}

// RegisterCondition adds a policy whose check and filter forms both come from cond
func (r *Registry) RegisterCondition(name string, cond Condition) error {
	if cond == nil {
		return fmt.Errorf("%w: %q has no condition", ErrInvalidPolicy, name)
	}
	return r.add(&Policy{
		Name: name,
		Check: func(user *attributes.UserAttributes, obj any, _ string) (bool, error) {
			return cond.Check(user, obj)
		},
		Filter: func(user *attributes.UserAttributes, _ string) (filter.Predicate, error) {
			return cond.Filter(user)
		},
		Condition: cond,
	})
}

// CreateComposite registers name as the AND (requireAll) or OR of at least two existing
// policies. Unknown components fail here with ErrPolicyNotFound, not at evaluation.
func (r *Registry) CreateComposite(name string, requireAll bool, components ...string) error {
	if len(components) < 2 {
		return fmt.Errorf("%w: composite %q needs at least two components", ErrInvalidPolicy, name)
	}

	r.mu.RLock()
	resolved := make([]*Policy, len(components))
	for i, c := range components {
		p, ok := r.policies[c]
		if !ok {
			r.mu.RUnlock()
			return fmt.Errorf("%w: %q (component of %q)", ErrPolicyNotFound, c, name)
		}
		resolved[i] = p
	}
	r.mu.RUnlock()

	return r.add(&Policy{
		Name:       name,
		Check:      compositeCheck(resolved, requireAll),
		Filter:     compositeFilter(resolved, requireAll),
		Components: append([]string(nil), components...),
		RequireAll: requireAll,
	})
}

func (r *Registry) add(p *Policy) error {
	if p.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPolicy)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.policies[p.Name]; exists {
		return fmt.Errorf("%w: %s", ErrPolicyExists, p.Name)
	}
	r.policies[p.Name] = p

	r.logger.WithFields(logrus.Fields{
		"policy":     p.Name,
		"has_filter": p.HasFilter(),
		"definition": p.Describe(),
	}).Debug("registered policy")
	return nil
}

// Get returns the named policy or ErrPolicyNotFound
func (r *Registry) Get(name string) (*Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.policies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, name)
	}
	return p, nil
}

// List returns the registered names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered policies
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.policies)
}

// Reset removes every policy
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.policies = make(map[string]*Policy)
}

func compositeCheck(components []*Policy, requireAll bool) Func {
	return func(user *attributes.UserAttributes, obj any, action string) (bool, error) {
		var errs []error
		for _, c := range components {
			ok, err := c.Evaluate(user, obj, action)
			if err != nil {
				ok = false
				errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
			}
			if requireAll && !ok {
				return false, errors.Join(errs...)
			}
			if !requireAll && ok {
				return true, nil
			}
		}
		if requireAll {
			return true, nil
		}
		return false, errors.Join(errs...)
	}
}

func compositeFilter(components []*Policy, requireAll bool) FilterFunc {
	return func(user *attributes.UserAttributes, action string) (filter.Predicate, error) {
		preds := make([]filter.Predicate, 0, len(components))
		for _, c := range components {
			p, err := c.Compile(user, action)
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
		}
		if requireAll {
			return filter.AllOf(preds...), nil
		}
		return filter.AnyOf(preds...), nil
	}
}
