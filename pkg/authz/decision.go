package authz

import (
	"fmt"
	"time"
)

// Reason codes explain a decision in logs and audit records. They are never returned to
// the denied caller.
const (
	ReasonAllowed        = "allowed"
	ReasonDenied         = "denied"
	ReasonNoUser         = "no_user"
	ReasonUnmappedAction = "unmapped_action"
	ReasonPolicyNotFound = "policy_not_found"
	ReasonPolicyError    = "policy_error"
)

// Decision is the full outcome of one check
type Decision struct {
	Allowed   bool
	Action    string
	Policy    string
	Reason    string
	UserID    string
	Service   string
	ObjectRef string
	Timestamp time.Time
	// Err is the policy or lookup error behind a policy_not_found or policy_error denial
	Err error
}

func typeName(obj any) string {
	return fmt.Sprintf("%T", obj)
}
