package attributes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/rbacabac/pkg/observability"
)

// DefaultLoadTimeout bounds a reload from the authoritative source
const DefaultLoadTimeout = 2 * time.Second

// Well-known attribute keys lifted out of RawAttributes.Attributes
const (
	AttrDepartment    = "department"
	AttrAdminGroupIDs = "admin_group_ids"
	AttrCustomerIDs   = "customer_ids"
)

// Loader rebuilds attribute bundles from the authoritative source
type Loader struct {
	source  Source
	timeout time.Duration
	logger  *logrus.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithLoadTimeout sets the reload timeout. Zero or negative keeps the default.
func WithLoadTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLoaderLogger sets the logger
func WithLoaderLogger(logger *logrus.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLoaderClock sets the clock used to stamp LoadedAt
func WithLoaderClock(now func() time.Time) LoaderOption {
	return func(l *Loader) {
		l.now = now
	}
}

// NewLoader creates a loader over source
func NewLoader(source Source, opts ...LoaderOption) *Loader {
	l := &Loader{
		source:  source,
		timeout: DefaultLoadTimeout,
		logger:  observability.NewDiscardLogger(),
		tracer:  otel.Tracer("rbacabac/attributes"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches and normalizes the bundle for (userID, service). It returns either a full
// bundle, the empty bundle for a user without assignments, or an error matching
// ErrDependencyUnavailable.
func (l *Loader) Load(ctx context.Context, userID, service string) (*UserAttributes, error) {
	ctx, span := l.tracer.Start(ctx, "attributes.Load", trace.WithAttributes(
		attribute.String("rbacabac.user_id", userID),
		attribute.String("rbacabac.service", service),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	raw, err := l.source.LoadRolesAndAttributes(ctx, userID, service)
	if err == nil && ctx.Err() != nil {
		// The source ignored the deadline; do not trust a late answer
		err = ctx.Err()
	}
	if errors.Is(err, ErrNoAssignments) {
		raw, err = nil, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		l.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"service": service,
			"error":   err.Error(),
		}).Error("failed to load user attributes")
		return nil, unavailable("role source", fmt.Errorf("load %s/%s: %w", userID, service, err))
	}

	attrs := Build(userID, service, raw)
	attrs.LoadedAt = l.now().UTC()
	span.SetAttributes(attribute.Int("rbacabac.roles", len(attrs.Roles)))
	return attrs, nil
}

// Build converts raw source data into a bundle. A nil raw yields the empty bundle.
func Build(userID, service string, raw *RawAttributes) *UserAttributes {
	attrs := Empty(userID, service)
	if raw == nil {
		return attrs
	}

	attrs.Username = raw.Username
	attrs.Email = raw.Email
	attrs.Roles = NewStringSet(raw.Roles...)
	attrs.Department = raw.Department
	attrs.AdminGroupIDs = NewStringSet(raw.AdminGroupIDs...)
	attrs.CustomerIDs = NewStringSet(raw.CustomerIDs...)

	for k, v := range raw.Attributes {
		switch k {
		case AttrDepartment:
			if s, ok := v.(string); ok && attrs.Department == "" {
				attrs.Department = s
			}
		case AttrAdminGroupIDs:
			for _, id := range toStrings(v) {
				attrs.AdminGroupIDs[id] = struct{}{}
			}
		case AttrCustomerIDs:
			for _, id := range toStrings(v) {
				attrs.CustomerIDs[id] = struct{}{}
			}
		default:
			attrs.ServiceAttrs[k] = cloneValue(v)
		}
	}
	delete(attrs.AdminGroupIDs, "")
	delete(attrs.CustomerIDs, "")

	return attrs
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}
