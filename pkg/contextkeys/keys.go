// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the library must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/rbacabac/pkg/contextkeys"
//	ctx = contextkeys.WithAttributes(ctx, attrs)
//	attrs := contextkeys.GetAttributes(ctx).(*attributes.UserAttributes)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AttributesKey contains *attributes.UserAttributes
	// Set by: middleware.Guard (pkg/middleware/guard.go)
	// Used by: Handlers behind Require/RequireList
	// Type: *attributes.UserAttributes
	AttributesKey Key = "user_attributes"

	// FilterKey contains the compiled list filter
	// Set by: middleware.Guard.RequireList
	// Used by: List handlers that push authorization into their query
	// Type: filter.Predicate
	FilterKey Key = "list_filter"

	// ListFallbackKey marks a list request that must filter rows in process
	// Set by: middleware.Guard.RequireList when no filter form exists
	// Type: bool
	ListFallbackKey Key = "list_fallback"

	// RequestIDKey contains request ID string
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit records
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user ID string
	// Set by: middleware.Guard after identity resolution
	// Used by: Logger, audit records
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *logrus.Logger
	// Set by: host service
	// Used by: observability.FromContext
	// Type: *logrus.Logger
	LoggerKey Key = "logger"
)

// WithAttributes adds the user's attribute bundle to the context
func WithAttributes(ctx context.Context, attrs interface{}) context.Context {
	return context.WithValue(ctx, AttributesKey, attrs)
}

// GetAttributes retrieves the attribute bundle from context
func GetAttributes(ctx context.Context) interface{} {
	return ctx.Value(AttributesKey)
}

// WithFilter adds a compiled list filter to the context
func WithFilter(ctx context.Context, f interface{}) context.Context {
	return context.WithValue(ctx, FilterKey, f)
}

// GetFilter retrieves the compiled list filter from context
func GetFilter(ctx context.Context) interface{} {
	return ctx.Value(FilterKey)
}

// WithListFallback marks the request as needing in-process filtering
func WithListFallback(ctx context.Context) context.Context {
	return context.WithValue(ctx, ListFallbackKey, true)
}

// IsListFallback reports whether the request needs in-process filtering
func IsListFallback(ctx context.Context) bool {
	v, _ := ctx.Value(ListFallbackKey).(bool)
	return v
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetLogger retrieves the logger from context
func GetLogger(ctx context.Context) interface{} {
	return ctx.Value(LoggerKey)
}
