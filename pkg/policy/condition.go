package policy

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/platinummonkey/rbacabac/pkg/attributes"
	"github.com/platinummonkey/rbacabac/pkg/filter"
)

// Condition is a declarative rule that yields both the row-level check and the
// equivalent storage filter, so the two forms cannot drift.
type Condition interface {
	// Check decides a single object. Object conditions deny a nil object.
	Check(user *attributes.UserAttributes, obj any) (bool, error)
	// Filter returns the predicate selecting the records Check allows
	Filter(user *attributes.UserAttributes) (filter.Predicate, error)
	String() string
}

// OwnedBy allows objects whose owner is the user. column names the owner column.
func OwnedBy(column string) Condition {
	return ownedBy{column: column}
}

type ownedBy struct{ column string }

func (c ownedBy) Check(user *attributes.UserAttributes, obj any) (bool, error) {
	if obj == nil || user.UserID == "" {
		return false, nil
	}
	if o, ok := obj.(Owned); ok {
		return o.OwnerID() == user.UserID, nil
	}
	return matchFielded(c, user, obj, "Owned")
}

func (c ownedBy) Filter(user *attributes.UserAttributes) (filter.Predicate, error) {
	if user.UserID == "" {
		return filter.False, nil
	}
	return filter.Eq{Field: c.column, Value: user.UserID}, nil
}

func (c ownedBy) String() string { return "owned_by(" + c.column + ")" }

// SameDepartment allows objects in the user's department. Users without a department
// match nothing.
func SameDepartment(column string) Condition {
	return sameDepartment{column: column}
}

type sameDepartment struct{ column string }

func (c sameDepartment) Check(user *attributes.UserAttributes, obj any) (bool, error) {
	if obj == nil || user.Department == "" {
		return false, nil
	}
	if d, ok := obj.(Departmental); ok {
		return d.Department() == user.Department, nil
	}
	return matchFielded(c, user, obj, "Departmental")
}

func (c sameDepartment) Filter(user *attributes.UserAttributes) (filter.Predicate, error) {
	if user.Department == "" {
		return filter.False, nil
	}
	return filter.Eq{Field: c.column, Value: user.Department}, nil
}

func (c sameDepartment) String() string { return "same_department(" + c.column + ")" }

// InCustomerScope allows objects belonging to one of the user's customers
func InCustomerScope(column string) Condition {
	return inCustomerScope{column: column}
}

type inCustomerScope struct{ column string }

func (c inCustomerScope) Check(user *attributes.UserAttributes, obj any) (bool, error) {
	if obj == nil {
		return false, nil
	}
	if cs, ok := obj.(CustomerScoped); ok {
		id := cs.CustomerID()
		return id != "" && user.HasCustomer(id), nil
	}
	return matchFielded(c, user, obj, "CustomerScoped")
}

func (c inCustomerScope) Filter(user *attributes.UserAttributes) (filter.Predicate, error) {
	return filter.InStrings(c.column, user.CustomerIDs.Sorted()), nil
}

func (c inCustomerScope) String() string { return "in_customer_scope(" + c.column + ")" }

// InAdminGroup allows objects administered by one of the user's admin groups
func InAdminGroup(column string) Condition {
	return inAdminGroup{column: column}
}

type inAdminGroup struct{ column string }

func (c inAdminGroup) Check(user *attributes.UserAttributes, obj any) (bool, error) {
	if obj == nil {
		return false, nil
	}
	if ag, ok := obj.(AdminGroupScoped); ok {
		id := ag.AdminGroupID()
		return id != "" && user.InAdminGroup(id), nil
	}
	return matchFielded(c, user, obj, "AdminGroupScoped")
}

func (c inAdminGroup) Filter(user *attributes.UserAttributes) (filter.Predicate, error) {
	return filter.InStrings(c.column, user.AdminGroupIDs.Sorted()), nil
}

func (c inAdminGroup) String() string { return "in_admin_group(" + c.column + ")" }

// AttrEquals allows objects whose column equals the user's service attribute attrKey.
// A list-valued attribute matches any of its elements. Users without the attribute match
// nothing.
func AttrEquals(column, attrKey string) Condition {
	return attrEquals{column: column, key: attrKey}
}

type attrEquals struct{ column, key string }

func (c attrEquals) Check(user *attributes.UserAttributes, obj any) (bool, error) {
	if obj == nil {
		return false, nil
	}
	return matchFielded(c, user, obj, "Fielded")
}

func (c attrEquals) Filter(user *attributes.UserAttributes) (filter.Predicate, error) {
	v, ok := user.Attr(c.key)
	if !ok || v == nil {
		return filter.False, nil
	}
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return filter.False, nil
		}
		return filter.In{Field: c.column, Values: t}, nil
	case []string:
		return filter.InStrings(c.column, t), nil
	case map[string]any:
		return nil, fmt.Errorf("attribute %q is not a scalar or list", c.key)
	}
	return filter.Eq{Field: c.column, Value: v}, nil
}

func (c attrEquals) String() string { return "attr_equals(" + c.column + "=" + c.key + ")" }

// HasRole allows users holding any of roles, regardless of the object. It supports
// object-less actions such as list and create.
func HasRole(roles ...string) Condition {
	sorted := append([]string(nil), roles...)
	sort.Strings(sorted)
	return hasRole{roles: sorted}
}

type hasRole struct{ roles []string }

func (c hasRole) Check(user *attributes.UserAttributes, _ any) (bool, error) {
	return user.HasAnyRole(c.roles...), nil
}

func (c hasRole) Filter(user *attributes.UserAttributes) (filter.Predicate, error) {
	if user.HasAnyRole(c.roles...) {
		return filter.True, nil
	}
	return filter.False, nil
}

func (c hasRole) String() string { return "has_role(" + strings.Join(c.roles, ",") + ")" }

// ActiveAt allows objects that have not expired at now. There is no filter form; the
// expiry comparison is not expressible as field equality.
func ActiveAt(now time.Time) Condition {
	return activeAt{now: now}
}

type activeAt struct{ now time.Time }

func (c activeAt) Check(_ *attributes.UserAttributes, obj any) (bool, error) {
	if obj == nil {
		return false, nil
	}
	e, ok := obj.(Expiring)
	if !ok {
		return false, missingCapability(obj, "Expiring")
	}
	exp := e.ExpiresAt()
	return exp.IsZero() || c.now.Before(exp), nil
}

func (c activeAt) Filter(*attributes.UserAttributes) (filter.Predicate, error) {
	return nil, fmt.Errorf("%w: %s", ErrNoFilterAvailable, c)
}

func (c activeAt) String() string { return "active_at(" + c.now.UTC().Format(time.RFC3339) + ")" }

// Allow is a condition that always allows, including object-less actions
func Allow() Condition { return constant(true) }

// Deny is a condition that always denies
func Deny() Condition { return constant(false) }

type constant bool

func (c constant) Check(*attributes.UserAttributes, any) (bool, error) { return bool(c), nil }

func (c constant) Filter(*attributes.UserAttributes) (filter.Predicate, error) {
	return filter.Const(c), nil
}

func (c constant) String() string {
	if c {
		return "allow"
	}
	return "deny"
}

// AllOf allows when every condition allows. Evaluation stops at the first denial.
func AllOf(conds ...Condition) Condition {
	return combined{conds: conds, all: true}
}

// AnyOf allows when at least one condition allows. Evaluation stops at the first allow;
// an erroring branch counts as a denial for that branch.
func AnyOf(conds ...Condition) Condition {
	return combined{conds: conds}
}

type combined struct {
	conds []Condition
	all   bool
}

func (c combined) Check(user *attributes.UserAttributes, obj any) (bool, error) {
	var firstErr error
	for _, cond := range c.conds {
		ok, err := cond.Check(user, obj)
		if err != nil {
			ok = false
			if firstErr == nil {
				firstErr = err
			}
		}
		if c.all && !ok {
			return false, firstErr
		}
		if !c.all && ok {
			return true, nil
		}
	}
	if c.all {
		return len(c.conds) > 0, nil
	}
	return false, firstErr
}

func (c combined) Filter(user *attributes.UserAttributes) (filter.Predicate, error) {
	preds := make([]filter.Predicate, 0, len(c.conds))
	for _, cond := range c.conds {
		p, err := cond.Filter(user)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if c.all {
		if len(preds) == 0 {
			return filter.False, nil
		}
		return filter.AllOf(preds...), nil
	}
	return filter.AnyOf(preds...), nil
}

func (c combined) String() string {
	parts := make([]string, len(c.conds))
	for i, cond := range c.conds {
		parts[i] = cond.String()
	}
	op := "any"
	if c.all {
		op = "all"
	}
	return op + "(" + strings.Join(parts, ", ") + ")"
}

// matchFielded evaluates the condition's filter form against a Fielded object, so the
// fallback path is the filter itself.
func matchFielded(c Condition, user *attributes.UserAttributes, obj any, capability string) (bool, error) {
	rec, ok := obj.(Fielded)
	if !ok {
		return false, missingCapability(obj, capability)
	}
	pred, err := c.Filter(user)
	if err != nil {
		return false, err
	}
	return filter.Match(pred, rec)
}

func missingCapability(obj any, capability string) error {
	return fmt.Errorf("%w: %T does not implement %s", ErrMissingCapability, obj, capability)
}
