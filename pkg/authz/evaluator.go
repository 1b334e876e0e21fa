package authz

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/rbacabac/pkg/async"
	"github.com/platinummonkey/rbacabac/pkg/attributes"
	"github.com/platinummonkey/rbacabac/pkg/audit"
	"github.com/platinummonkey/rbacabac/pkg/contextkeys"
	"github.com/platinummonkey/rbacabac/pkg/filter"
	"github.com/platinummonkey/rbacabac/pkg/observability"
	"github.com/platinummonkey/rbacabac/pkg/policy"
)

const (
	defaultAuditTimeout     = 2 * time.Second
	defaultAuditMaxInFlight = 256
)

// Evaluator resolves bindings against a policy registry and evaluates them.
// It holds no per-request state and is safe for concurrent use.
type Evaluator struct {
	registry   *policy.Registry
	logger     *logrus.Logger
	metrics    *observability.Metrics
	sink       audit.Sink
	dispatcher *async.Dispatcher
	now        func() time.Time
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// WithAuditSink sends every decision to sink in the background
func WithAuditSink(sink audit.Sink) Option {
	return func(e *Evaluator) {
		e.sink = sink
	}
}

// WithAuditDispatcher replaces the background dispatcher used for audit delivery
func WithAuditDispatcher(d *async.Dispatcher) Option {
	return func(e *Evaluator) {
		e.dispatcher = d
	}
}

// WithClock sets the clock used to timestamp decisions. Policies never see it.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// NewEvaluator creates an evaluator over registry
func NewEvaluator(registry *policy.Registry, opts ...Option) *Evaluator {
	e := &Evaluator{
		registry: registry,
		logger:   observability.NewDiscardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sink != nil && e.dispatcher == nil {
		e.dispatcher = async.NewDispatcher(e.logger, defaultAuditMaxInFlight, defaultAuditTimeout)
	}
	return e
}

// Decide evaluates the policy bound to action for user on obj. obj is nil for list
// and create. Every failure path denies.
func (e *Evaluator) Decide(ctx context.Context, user *attributes.UserAttributes, obj any, action string, binding Binding) Decision {
	obj = objectOrNil(obj)
	d := Decision{
		Action:    action,
		ObjectRef: ObjectRef(obj),
		Timestamp: e.now(),
	}
	if user == nil {
		d.Reason = ReasonNoUser
		return e.finish(ctx, d)
	}
	d.UserID = user.UserID
	d.Service = user.Service

	name, ok := binding.PolicyFor(action)
	if !ok {
		d.Reason = ReasonUnmappedAction
		return e.finish(ctx, d)
	}
	d.Policy = name

	p, err := e.registry.Get(name)
	if err != nil {
		d.Reason = ReasonPolicyNotFound
		d.Err = err
		return e.finish(ctx, d)
	}

	allowed, err := p.Evaluate(user, obj, action)
	switch {
	case err != nil:
		d.Reason = ReasonPolicyError
		d.Err = err
	case allowed:
		d.Allowed = true
		d.Reason = ReasonAllowed
	default:
		d.Reason = ReasonDenied
	}
	return e.finish(ctx, d)
}

// Check reports whether user may perform action on obj
func (e *Evaluator) Check(ctx context.Context, user *attributes.UserAttributes, obj any, action string, binding Binding) bool {
	return e.Decide(ctx, user, obj, action, binding).Allowed
}

// AllowedActions returns the sorted subset of the binding's actions that Check allows
func (e *Evaluator) AllowedActions(ctx context.Context, user *attributes.UserAttributes, obj any, binding Binding) []string {
	allowed := make([]string, 0, len(binding))
	for _, action := range binding.Actions() {
		if e.Check(ctx, user, obj, action, binding) {
			allowed = append(allowed, action)
		}
	}
	return allowed
}

// CompileFilter returns the storage-level predicate for action. Misconfiguration and
// missing users compile to filter.False. A policy without a filter form returns
// policy.ErrNoFilterAvailable; callers then fall back to FilterInProcess.
func (e *Evaluator) CompileFilter(ctx context.Context, user *attributes.UserAttributes, action string, binding Binding) (filter.Predicate, error) {
	log := e.entry(ctx).WithField("action", action)
	if user == nil {
		log.Warn("compiling filter without user, denying all")
		return filter.False, nil
	}
	log = log.WithFields(logrus.Fields{"user_id": user.UserID, "service": user.Service})

	name, ok := binding.PolicyFor(action)
	if !ok {
		log.Debug("no policy bound to action, denying all")
		return filter.False, nil
	}
	log = log.WithField("policy", name)

	p, err := e.registry.Get(name)
	if err != nil {
		log.WithError(err).Error("binding references unknown policy, denying all")
		return filter.False, nil
	}

	pred, err := p.Compile(user, action)
	if errors.Is(err, policy.ErrNoFilterAvailable) {
		return nil, err
	}
	if err != nil {
		log.WithError(err).Error("policy filter failed, denying all")
		return filter.False, nil
	}
	return pred, nil
}

// Close stops audit delivery and waits up to timeout for pending records. Decisions
// made after Close are still returned but no longer audited.
func (e *Evaluator) Close(timeout time.Duration) error {
	if e.dispatcher == nil {
		return nil
	}
	return e.dispatcher.Close(timeout)
}

func (e *Evaluator) finish(ctx context.Context, d Decision) Decision {
	e.metrics.RecordDecision(d.Policy, d.Allowed)

	switch d.Reason {
	case ReasonPolicyNotFound, ReasonPolicyError:
		e.entry(ctx).WithFields(e.fields(d)).WithError(d.Err).Error("authorization failed closed")
	case ReasonAllowed:
		e.entry(ctx).WithFields(e.fields(d)).Debug("authorization allowed")
	default:
		e.entry(ctx).WithFields(e.fields(d)).Debug("authorization denied")
	}

	e.audit(ctx, d)
	return d
}

func (e *Evaluator) audit(ctx context.Context, d Decision) {
	if e.sink == nil {
		return
	}
	rec := audit.NewRecord(d.Timestamp, d.Allowed)
	rec.UserID = d.UserID
	rec.Service = d.Service
	rec.Action = d.Action
	rec.ObjectRef = d.ObjectRef
	rec.Policy = d.Policy
	rec.Reason = d.Reason
	rec.RequestID = contextkeys.GetRequestID(ctx)
	if d.Err != nil {
		rec.Error = d.Err.Error()
	}

	sink := e.sink
	e.dispatcher.Go(ctx, "authz audit", func(ctx context.Context) error {
		return sink.Record(ctx, rec)
	})
}

func (e *Evaluator) entry(ctx context.Context) *logrus.Entry {
	return observability.FromContext(ctx, e.logger)
}

func (e *Evaluator) fields(d Decision) logrus.Fields {
	return logrus.Fields{
		"user_id":    d.UserID,
		"service":    d.Service,
		"action":     d.Action,
		"policy":     d.Policy,
		"object_ref": d.ObjectRef,
		"reason":     d.Reason,
	}
}
