package middleware

import (
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthenticated is returned when a request carries no usable identity
var ErrUnauthenticated = errors.New("unauthenticated")

// DefaultIdentityHeader is set by the authenticating proxy
const DefaultIdentityHeader = "X-Authenticated-User"

// Identity is the authenticated caller as seen by one service
type Identity struct {
	UserID  string
	Service string
}

// IdentityResolver extracts the authenticated identity from a request. Authentication
// itself happens upstream; resolvers only read its trusted result.
type IdentityResolver interface {
	Resolve(r *http.Request) (Identity, error)
}

// IdentityResolverFunc adapts a function to IdentityResolver
type IdentityResolverFunc func(r *http.Request) (Identity, error)

// Resolve calls f(r)
func (f IdentityResolverFunc) Resolve(r *http.Request) (Identity, error) {
	return f(r)
}

// HeaderIdentity reads the user ID from a header set by a trusted proxy and reports a
// fixed service name
type HeaderIdentity struct {
	Header  string
	Service string
}

// NewHeaderIdentity resolves users from DefaultIdentityHeader for service
func NewHeaderIdentity(service string) *HeaderIdentity {
	return &HeaderIdentity{Header: DefaultIdentityHeader, Service: service}
}

// Resolve returns ErrUnauthenticated when the header is missing or blank
func (h *HeaderIdentity) Resolve(r *http.Request) (Identity, error) {
	header := h.Header
	if header == "" {
		header = DefaultIdentityHeader
	}
	userID := strings.TrimSpace(r.Header.Get(header))
	if userID == "" {
		return Identity{}, ErrUnauthenticated
	}
	return Identity{UserID: userID, Service: h.Service}, nil
}
