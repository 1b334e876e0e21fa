package attributes

import (
	"encoding/json"
	"sort"
	"time"
)

// StringSet is an unordered set of strings. It encodes to JSON as a sorted array.
type StringSet map[string]struct{}

// NewStringSet creates a set from the given values, collapsing duplicates and dropping empty strings
func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		s[v] = struct{}{}
	}
	return s
}

// Has reports whether v is in the set
func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in ascending order
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of the set
func (s StringSet) Clone() StringSet {
	out := make(StringSet, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted array
func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array into the set
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewStringSet(values...)
	return nil
}

// UserAttributes is one user's authorization context for one service.
//
// A value is built by the Loader on a cache miss or decoded from the cache on a hit,
// and is read-only afterwards. Store hands every caller its own copy.
type UserAttributes struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Service  string `json:"service"`

	Roles         StringSet `json:"roles"`
	Department    string    `json:"department,omitempty"`
	AdminGroupIDs StringSet `json:"admin_group_ids"`
	CustomerIDs   StringSet `json:"customer_ids"`

	// ServiceAttrs holds attributes namespaced to the consuming service. The schema is owned by that service.
	ServiceAttrs map[string]any `json:"service_attrs,omitempty"`

	LoadedAt time.Time `json:"loaded_at"`
}

// Empty returns the "no access" bundle for a user with no role assignments
func Empty(userID, service string) *UserAttributes {
	return &UserAttributes{
		UserID:        userID,
		Service:       service,
		Roles:         StringSet{},
		AdminGroupIDs: StringSet{},
		CustomerIDs:   StringSet{},
		ServiceAttrs:  map[string]any{},
	}
}

// HasRole reports whether the user holds role in this service
func (u *UserAttributes) HasRole(role string) bool {
	return u != nil && u.Roles.Has(role)
}

// HasAnyRole reports whether the user holds at least one of roles
func (u *UserAttributes) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if u.HasRole(r) {
			return true
		}
	}
	return false
}

// InAdminGroup reports whether the user belongs to the admin group
func (u *UserAttributes) InAdminGroup(groupID string) bool {
	return u != nil && u.AdminGroupIDs.Has(groupID)
}

// HasCustomer reports whether the customer is in the user's visibility scope
func (u *UserAttributes) HasCustomer(customerID string) bool {
	return u != nil && u.CustomerIDs.Has(customerID)
}

// Attr returns a service-specific attribute
func (u *UserAttributes) Attr(key string) (any, bool) {
	if u == nil || u.ServiceAttrs == nil {
		return nil, false
	}
	v, ok := u.ServiceAttrs[key]
	return v, ok
}

// IsEmpty reports whether the bundle grants nothing: no roles and no scoping attributes
func (u *UserAttributes) IsEmpty() bool {
	if u == nil {
		return true
	}
	return len(u.Roles) == 0 && u.Department == "" &&
		len(u.AdminGroupIDs) == 0 && len(u.CustomerIDs) == 0 && len(u.ServiceAttrs) == 0
}

// Clone returns a deep copy so callers never share mutable state
func (u *UserAttributes) Clone() *UserAttributes {
	if u == nil {
		return nil
	}
	out := *u
	out.Roles = u.Roles.Clone()
	out.AdminGroupIDs = u.AdminGroupIDs.Clone()
	out.CustomerIDs = u.CustomerIDs.Clone()
	out.ServiceAttrs = cloneValue(u.ServiceAttrs).(map[string]any)
	return &out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// normalize fills nil collections so decoded and loaded bundles look the same
func (u *UserAttributes) normalize() {
	if u.Roles == nil {
		u.Roles = StringSet{}
	}
	if u.AdminGroupIDs == nil {
		u.AdminGroupIDs = StringSet{}
	}
	if u.CustomerIDs == nil {
		u.CustomerIDs = StringSet{}
	}
	if u.ServiceAttrs == nil {
		u.ServiceAttrs = map[string]any{}
	}
}

// RawAttributes is what the authoritative role source returns for a (user, service) pair
type RawAttributes struct {
	Username   string
	Email      string
	Roles      []string
	Department string

	AdminGroupIDs []string
	CustomerIDs   []string

	// Attributes may also carry department, admin_group_ids and customer_ids; the
	// Loader lifts those into the typed fields.
	Attributes map[string]any
}
