package middleware

import (
	"context"

	"github.com/platinummonkey/rbacabac/pkg/attributes"
	"github.com/platinummonkey/rbacabac/pkg/contextkeys"
	"github.com/platinummonkey/rbacabac/pkg/filter"
)

// AttributesFromContext returns the attribute bundle loaded by a Guard
func AttributesFromContext(ctx context.Context) *attributes.UserAttributes {
	attrs, _ := contextkeys.GetAttributes(ctx).(*attributes.UserAttributes)
	return attrs
}

// FilterFromContext returns the list filter compiled by RequireList
func FilterFromContext(ctx context.Context) (filter.Predicate, bool) {
	p, ok := contextkeys.GetFilter(ctx).(filter.Predicate)
	return p, ok && p != nil
}

// ListFallbackFromContext reports whether RequireList found no filter form, in which
// case the handler must check every record with authz.FilterInProcess
func ListFallbackFromContext(ctx context.Context) bool {
	return contextkeys.IsListFallback(ctx)
}
