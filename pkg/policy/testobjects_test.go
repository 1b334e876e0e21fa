package policy

import (
	"time"

	"github.com/platinummonkey/rbacabac/pkg/attributes"
)

type report struct {
	ID    string
	Owner string
	Dept  string
	Cust  string
	Group string
}

func (r *report) OwnerID() string      { return r.Owner }
func (r *report) Department() string   { return r.Dept }
func (r *report) CustomerID() string   { return r.Cust }
func (r *report) AdminGroupID() string { return r.Group }

type row map[string]any

func (r row) FieldValue(name string) (any, bool) {
	v, ok := r[name]
	return v, ok
}

type lease struct{ expires time.Time }

func (l lease) ExpiresAt() time.Time { return l.expires }

type opaque struct{}

func user(id, dept string, roles ...string) *attributes.UserAttributes {
	u := attributes.Empty(id, "costs")
	u.Department = dept
	u.Roles = attributes.NewStringSet(roles...)
	return u
}
