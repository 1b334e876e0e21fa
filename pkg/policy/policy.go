package policy

import (
	"fmt"

	"github.com/platinummonkey/rbacabac/pkg/attributes"
	"github.com/platinummonkey/rbacabac/pkg/filter"
)

// Func decides whether user may perform action on obj. obj is nil for list and create.
// Implementations must be side-effect free and must not read a clock.
type Func func(user *attributes.UserAttributes, obj any, action string) (bool, error)

// FilterFunc returns the storage-level form of a policy: the predicate selecting exactly
// the records Func would allow.
type FilterFunc func(user *attributes.UserAttributes, action string) (filter.Predicate, error)

// Policy is a registered, named decision function
type Policy struct {
	Name   string
	Check  Func
	Filter FilterFunc

	// Condition is set for policies registered from a declarative condition
	Condition Condition

	// Components and RequireAll describe composite policies
	Components []string
	RequireAll bool
}

// IsComposite reports whether the policy combines other policies
func (p *Policy) IsComposite() bool {
	return len(p.Components) > 0
}

// HasFilter reports whether the policy declares a filter form
func (p *Policy) HasFilter() bool {
	return p.Filter != nil
}

// Describe returns a one-line description for introspection
func (p *Policy) Describe() string {
	switch {
	case p.IsComposite():
		op := "ANY"
		if p.RequireAll {
			op = "ALL"
		}
		return fmt.Sprintf("%s%v", op, p.Components)
	case p.Condition != nil:
		return p.Condition.String()
	default:
		return "func"
	}
}

// Evaluate runs the row-level check. A nil user is denied; a panic becomes ErrPolicyPanic.
func (p *Policy) Evaluate(user *attributes.UserAttributes, obj any, action string) (allowed bool, err error) {
	if user == nil {
		return false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			allowed = false
			err = fmt.Errorf("%w: %s: %v", ErrPolicyPanic, p.Name, r)
		}
	}()
	return p.Check(user, obj, action)
}

// Compile runs the filter form. A nil user gets filter.False.
func (p *Policy) Compile(user *attributes.UserAttributes, action string) (pred filter.Predicate, err error) {
	if p.Filter == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoFilterAvailable, p.Name)
	}
	if user == nil {
		return filter.False, nil
	}
	defer func() {
		if r := recover(); r != nil {
			pred = nil
			err = fmt.Errorf("%w: %s: %v", ErrPolicyPanic, p.Name, r)
		}
	}()
	pred, err = p.Filter(user, action)
	if err == nil && pred == nil {
		return filter.False, nil
	}
	return pred, err
}

// Option configures a policy at registration
type Option func(*Policy)

// WithFilter attaches a filter form to a function policy
func WithFilter(ff FilterFunc) Option {
	return func(p *Policy) {
		p.Filter = ff
	}
}
