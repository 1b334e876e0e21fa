package policy

import "time"

// Protected entity types implement the accessors their policies need. A condition that
// finds neither its typed accessor nor Fielded on an object fails with ErrMissingCapability.

// Owned is implemented by objects with a single owning user
type Owned interface {
	OwnerID() string
}

// Departmental is implemented by objects that belong to a department
type Departmental interface {
	Department() string
}

// CustomerScoped is implemented by objects that belong to a customer
type CustomerScoped interface {
	CustomerID() string
}

// AdminGroupScoped is implemented by objects administered by an admin group
type AdminGroupScoped interface {
	AdminGroupID() string
}

// Fielded exposes named column values. It is the generic accessor used for
// service-specific attributes and satisfies filter.Record.
type Fielded interface {
	FieldValue(name string) (any, bool)
}

// Expiring is implemented by objects with an optional expiry. A zero time never expires.
type Expiring interface {
	ExpiresAt() time.Time
}
