package policy

import "errors"

// Names of the built-in policies
const (
	OwnershipCheck        = "ownership_check"
	DepartmentMatch       = "department_match"
	CustomerScope         = "customer_scope"
	AdminGroupScope       = "admin_group_scope"
	IsAdmin               = "is_admin"
	OwnershipOrDepartment = "ownership_or_department"
)

// Default column names used by the built-in policies
const (
	ColumnOwnerID      = "owner_id"
	ColumnDepartment   = "department"
	ColumnCustomerID   = "customer_id"
	ColumnAdminGroupID = "admin_group_id"
)

// RoleAdmin is the role granted by is_admin
const RoleAdmin = "admin"

// RegisterDefaults registers the built-in policies on r
func RegisterDefaults(r *Registry) error {
	return errors.Join(
		r.RegisterCondition(OwnershipCheck, OwnedBy(ColumnOwnerID)),
		r.RegisterCondition(DepartmentMatch, SameDepartment(ColumnDepartment)),
		r.RegisterCondition(CustomerScope, InCustomerScope(ColumnCustomerID)),
		r.RegisterCondition(AdminGroupScope, InAdminGroup(ColumnAdminGroupID)),
		r.RegisterCondition(IsAdmin, HasRole(RoleAdmin)),
		r.CreateComposite(OwnershipOrDepartment, false, OwnershipCheck, DepartmentMatch),
	)
}
