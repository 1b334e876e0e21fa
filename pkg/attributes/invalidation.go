package attributes

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/rbacabac/pkg/observability"
)

// Invalidation is the pub/sub message telling processes to drop cached bundles.
// Service is Wildcard to drop every service entry of the user.
type Invalidation struct {
	UserID   string    `json:"user_id"`
	Service  string    `json:"service"`
	Origin   string    `json:"origin,omitempty"`
	IssuedAt time.Time `json:"issued_at"`
}

// IsWildcard reports whether the message targets all services of the user
func (m Invalidation) IsWildcard() bool {
	return m.Service == "" || m.Service == Wildcard
}

// InvalidationHandler applies an invalidation locally
type InvalidationHandler func(Invalidation)

// Listener subscribes to the invalidation channel and applies messages locally.
//
// Delivery is at-most-once: messages published while the listener is disconnected are
// lost, and the cache TTL bounds the resulting staleness.
type Listener struct {
	client     *redis.Client
	channel    string
	handler    InvalidationHandler
	logger     *logrus.Logger
	metrics    *observability.Metrics
	newBackOff func() backoff.BackOff

	readyOnce sync.Once
	ready     chan struct{}
}

// ListenerOption configures a Listener
type ListenerOption func(*Listener)

// WithListenerLogger sets the logger
func WithListenerLogger(logger *logrus.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithListenerMetrics sets the metrics sink
func WithListenerMetrics(m *observability.Metrics) ListenerOption {
	return func(l *Listener) {
		l.metrics = m
	}
}

// WithBackOff sets the reconnect policy. The factory is called once per Run.
func WithBackOff(factory func() backoff.BackOff) ListenerOption {
	return func(l *Listener) {
		l.newBackOff = factory
	}
}

// NewListener creates a listener on channel
func NewListener(client *redis.Client, channel string, handler InvalidationHandler, opts ...ListenerOption) *Listener {
	l := &Listener{
		client:  client,
		channel: channel,
		handler: handler,
		logger:  observability.NewDiscardLogger(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0 // retry until the context is cancelled
			return b
		},
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewListener creates a listener that applies remote invalidations to this store
func (s *Store) NewListener(opts ...ListenerOption) *Listener {
	opts = append([]ListenerOption{
		WithListenerLogger(s.logger),
		WithListenerMetrics(s.metrics),
	}, opts...)
	return NewListener(s.client, s.config.Channel, s.applyRemote, opts...)
}

// Ready is closed once the first subscription is confirmed
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Run listens until ctx is cancelled, reconnecting with backoff after transport errors.
// It returns nil on cancellation, or the last error if the backoff policy gives up.
func (l *Listener) Run(ctx context.Context) error {
	b := l.newBackOff()
	b.Reset()

	for {
		err := l.listen(ctx, b)
		if ctx.Err() != nil {
			return nil
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			l.logger.WithError(err).Error("invalidation listener giving up")
			return err
		}

		l.metrics.RecordReconnect()
		l.logger.WithFields(logrus.Fields{
			"channel": l.channel,
			"retry":   wait.String(),
			"error":   errString(err),
		}).Warn("invalidation listener disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (l *Listener) listen(ctx context.Context, b backoff.BackOff) error {
	ps := l.client.Subscribe(ctx, l.channel)
	defer ps.Close()

	// A blocked read does not observe ctx; closing the subscription unblocks it
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ps.Close()
		case <-stop:
		}
	}()

	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	b.Reset()
	l.readyOnce.Do(func() { close(l.ready) })
	l.logger.WithField("channel", l.channel).Info("invalidation listener subscribed")

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		l.handle(msg.Payload)
	}
}

func (l *Listener) handle(payload string) {
	var msg Invalidation
	if err := json.Unmarshal([]byte(payload), &msg); err != nil || msg.UserID == "" {
		l.logger.WithField("payload", payload).Warn("ignoring malformed invalidation message")
		return
	}
	l.handler(msg)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
