package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache tiers and results used as label values
const (
	TierLocal = "local"
	TierRedis = "redis"

	ResultHit  = "hit"
	ResultMiss = "miss"

	OriginLocal  = "local"
	OriginRemote = "remote"
)

// Metrics holds the authorization Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Decision metrics
	DecisionsTotal *prometheus.CounterVec

	// Attribute cache metrics
	AttributeCacheTotal        *prometheus.CounterVec
	AttributeLoadDuration      prometheus.Histogram
	AttributeLoadFailuresTotal prometheus.Counter
	InvalidationsTotal         *prometheus.CounterVec
	ListenerReconnectsTotal    prometheus.Counter

	// Listing metrics
	FilterFallbackTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on registry. A nil registry skips registration.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbacabac_decisions_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"policy", "decision"},
		),
		AttributeCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbacabac_attribute_cache_total",
				Help: "Attribute cache lookups by tier and result",
			},
			[]string{"tier", "result"},
		),
		AttributeLoadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rbacabac_attribute_load_seconds",
				Help:    "Time spent reloading attributes from the authoritative source",
				Buckets: prometheus.DefBuckets,
			},
		),
		AttributeLoadFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rbacabac_attribute_load_failures_total",
				Help: "Attribute loads that failed with a dependency error",
			},
		),
		InvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbacabac_invalidations_total",
				Help: "Attribute cache invalidations by origin",
			},
			[]string{"origin"},
		),
		ListenerReconnectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rbacabac_invalidation_listener_reconnects_total",
				Help: "Reconnect attempts made by the invalidation listener",
			},
		),
		FilterFallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbacabac_filter_fallback_total",
				Help: "List operations that fell back to in-process filtering",
			},
			[]string{"action"},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.DecisionsTotal,
			m.AttributeCacheTotal,
			m.AttributeLoadDuration,
			m.AttributeLoadFailuresTotal,
			m.InvalidationsTotal,
			m.ListenerReconnectsTotal,
			m.FilterFallbackTotal,
		)
	}

	return m
}

// RecordDecision counts an allow/deny decision for policy
func (m *Metrics) RecordDecision(policy string, allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	if policy == "" {
		policy = "none"
	}
	m.DecisionsTotal.WithLabelValues(policy, decision).Inc()
}

// RecordCache counts a cache lookup
func (m *Metrics) RecordCache(tier, result string) {
	if m == nil {
		return
	}
	m.AttributeCacheTotal.WithLabelValues(tier, result).Inc()
}

// RecordLoad observes a load from the authoritative source
func (m *Metrics) RecordLoad(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.AttributeLoadDuration.Observe(d.Seconds())
	if err != nil {
		m.AttributeLoadFailuresTotal.Inc()
	}
}

// RecordInvalidation counts an invalidation applied locally or received from another process
func (m *Metrics) RecordInvalidation(origin string) {
	if m == nil {
		return
	}
	m.InvalidationsTotal.WithLabelValues(origin).Inc()
}

// RecordReconnect counts a listener reconnect attempt
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.ListenerReconnectsTotal.Inc()
}

// RecordFilterFallback counts a list operation served by in-process filtering
func (m *Metrics) RecordFilterFallback(action string) {
	if m == nil {
		return
	}
	m.FilterFallbackTotal.WithLabelValues(action).Inc()
}
