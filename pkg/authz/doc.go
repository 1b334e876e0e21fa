// Package authz evaluates policy bindings for users and objects.
//
// A service declares, per entity type, which policy guards each action:
//
//	var reportBinding = authz.Binding{
//		"view":   policy.OwnershipOrDepartment,
//		"edit":   policy.OwnershipCheck,
//		"delete": policy.IsAdmin,
//		"list":   policy.OwnershipOrDepartment,
//	}
//
// and asks the Evaluator for decisions:
//
//	if !evaluator.Check(ctx, user, report, "edit", reportBinding) {
//		// deny
//	}
//
// Listing uses the compiled filter so authorization happens in the query:
//
//	plan, err := evaluator.PlanList(ctx, user, "list", reportBinding)
//	if plan.Fallback {
//		visible = authz.FilterInProcess(ctx, evaluator, user, "list", reportBinding, all)
//	} else {
//		db.Scopes(gormfilter.Scope(plan.Predicate)).Find(&visible)
//	}
//
// Every failure denies: unmapped actions, unknown policies, policy errors and panics,
// and missing users. Decisions can be sent to an audit.Sink in the background.
package authz
