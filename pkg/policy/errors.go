package policy

import "errors"

var (
	// ErrPolicyNotFound is returned when a policy name is not registered
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrPolicyExists is returned when registering a name twice
	ErrPolicyExists = errors.New("policy already exists")

	// ErrInvalidPolicy is returned for an empty name, nil function or short composite
	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrNoFilterAvailable is returned when a policy has no storage-level filter form.
	// Callers fall back to checking each record in process.
	ErrNoFilterAvailable = errors.New("no filter available")

	// ErrMissingCapability is returned when an object lacks the accessor a condition needs
	ErrMissingCapability = errors.New("object missing capability")

	// ErrPolicyPanic is returned when a policy function panics
	ErrPolicyPanic = errors.New("policy panicked")
)
