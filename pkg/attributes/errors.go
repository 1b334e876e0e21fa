package attributes

import (
	"errors"
	"fmt"
)

var (
	// ErrDependencyUnavailable is returned when the authoritative role source or the cache
	// backend cannot be reached in time. Callers must deny.
	ErrDependencyUnavailable = errors.New("authorization dependency unavailable")

	// ErrNoAssignments may be returned by a Source for a user with no role assignments.
	// It is not a failure: the Loader turns it into an empty bundle.
	ErrNoAssignments = errors.New("no role assignments")

	// ErrInvalidKey is returned for an empty user ID or service name
	ErrInvalidKey = errors.New("user id and service are required")
)

// DependencyError records which dependency failed. It matches ErrDependencyUnavailable
// under errors.Is and unwraps to the underlying cause.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrDependencyUnavailable, e.Dependency, e.Err)
}

// Is reports whether target is ErrDependencyUnavailable
func (e *DependencyError) Is(target error) bool {
	return target == ErrDependencyUnavailable
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

func unavailable(dependency string, err error) error {
	if err == nil {
		return nil
	}
	var de *DependencyError
	if errors.As(err, &de) {
		return err
	}
	return &DependencyError{Dependency: dependency, Err: err}
}
