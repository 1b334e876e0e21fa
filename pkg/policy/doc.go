// Package policy provides the named policy registry.
//
// A policy decides whether a user may perform an action on an object. Simple rules are
// written as declarative Conditions, which produce both the per-object check and the
// storage filter used for listing:
//
//	reg := policy.NewRegistry()
//	_ = reg.RegisterCondition("ownership_check", policy.OwnedBy("owner_id"))
//	_ = reg.RegisterCondition("department_match", policy.SameDepartment("department"))
//	_ = reg.CreateComposite("ownership_or_department", false, "ownership_check", "department_match")
//
// Rules too complex for a Condition are registered as functions, optionally with a
// hand-written filter form:
//
//	_ = reg.Register("budget_owner", checkBudget, policy.WithFilter(budgetFilter))
//
// Objects expose the fields policies read through small capability interfaces (Owned,
// Departmental, CustomerScoped, AdminGroupScoped, Expiring) or the generic Fielded.
package policy
