package authz

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/rbacabac/pkg/attributes"
	"github.com/platinummonkey/rbacabac/pkg/filter"
	"github.com/platinummonkey/rbacabac/pkg/policy"
)

// ListPlan says how to authorize a listing: with a storage filter, or by fetching all
// records and checking each one.
type ListPlan struct {
	Action    string
	Predicate filter.Predicate
	Fallback  bool
}

// PlanList compiles the filter for action, or plans the in-process fallback when the
// bound policy has no filter form. The fallback is logged as a performance warning.
func (e *Evaluator) PlanList(ctx context.Context, user *attributes.UserAttributes, action string, binding Binding) (ListPlan, error) {
	pred, err := e.CompileFilter(ctx, user, action, binding)
	if errors.Is(err, policy.ErrNoFilterAvailable) {
		e.metrics.RecordFilterFallback(action)
		e.entry(ctx).WithError(err).WithFields(logrus.Fields{
			"action": action,
			"policy": binding[action],
		}).Warn("no filter form for policy, listing will check every record in process")
		return ListPlan{Action: action, Fallback: true}, nil
	}
	if err != nil {
		return ListPlan{}, err
	}
	return ListPlan{Action: action, Predicate: pred}, nil
}

// FilterInProcess returns the items Check allows, in order. It is the slow path for
// policies without a filter form and suits small collections only.
func FilterInProcess[T any](ctx context.Context, e *Evaluator, user *attributes.UserAttributes, action string, binding Binding, items []T) []T {
	if len(items) > 0 {
		e.entry(ctx).WithFields(logrus.Fields{
			"action": action,
			"policy": binding[action],
			"count":  len(items),
		}).Warn("filtering records in process")
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if e.Check(ctx, user, item, action, binding) {
			out = append(out, item)
		}
	}
	return out
}
