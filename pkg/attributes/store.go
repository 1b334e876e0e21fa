package attributes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/rbacabac/pkg/observability"
)

// Wildcard as a service name addresses every service entry of a user
const Wildcard = "*"

// StoreConfig configures the attribute cache
type StoreConfig struct {
	// KeyPrefix namespaces every Redis key
	KeyPrefix string `yaml:"key_prefix"`

	// TTL bounds how long a bundle lives in Redis. It is also the maximum staleness
	// when an invalidation message is lost or races an in-flight load.
	TTL time.Duration `yaml:"ttl"`

	// LocalSize and LocalTTL configure the optional in-process cache. LocalSize 0 disables it.
	LocalSize int           `yaml:"local_size"`
	LocalTTL  time.Duration `yaml:"local_ttl"`

	// Channel is the pub/sub channel carrying invalidation messages
	Channel string `yaml:"channel"`
}

// DefaultStoreConfig returns the default cache configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		KeyPrefix: "rbacabac",
		TTL:       5 * time.Minute,
		LocalSize: 10000,
		LocalTTL:  30 * time.Second,
		Channel:   "rbacabac:invalidate",
	}
}

// Store serves attribute bundles from Redis, falling back to the Loader on a miss
type Store struct {
	client  *redis.Client
	loader  *Loader
	config  StoreConfig
	local   *lru.LRU[string, *UserAttributes]
	group   singleflight.Group
	epoch   atomic.Uint64
	origin  string
	logger  *logrus.Logger
	metrics *observability.Metrics
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithStoreLogger sets the logger
func WithStoreLogger(logger *logrus.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreMetrics sets the metrics sink
func WithStoreMetrics(m *observability.Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore creates a new attribute store
func NewStore(client *redis.Client, loader *Loader, config StoreConfig, opts ...StoreOption) *Store {
	defaults := DefaultStoreConfig()
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.Channel == "" {
		config.Channel = defaults.Channel
	}
	if config.LocalTTL <= 0 || config.LocalTTL > config.TTL {
		config.LocalTTL = minDuration(defaults.LocalTTL, config.TTL)
	}

	s := &Store{
		client: client,
		loader: loader,
		config: config,
		origin: uuid.NewString(),
		logger: observability.NewDiscardLogger(),
	}
	if config.LocalSize > 0 {
		s.local = lru.NewLRU[string, *UserAttributes](config.LocalSize, nil, config.LocalTTL)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration
func (s *Store) Config() StoreConfig {
	return s.config
}

// GetUserAttributes returns the bundle for (userID, service). The result is always a
// private copy. Errors match ErrDependencyUnavailable and must be treated as a deny.
func (s *Store) GetUserAttributes(ctx context.Context, userID, service string) (*UserAttributes, error) {
	if userID == "" || service == "" || service == Wildcard {
		return nil, ErrInvalidKey
	}
	key := s.key(userID, service)

	if s.local != nil {
		if attrs, ok := s.local.Get(key); ok {
			s.metrics.RecordCache(observability.TierLocal, observability.ResultHit)
			return attrs.Clone(), nil
		}
		s.metrics.RecordCache(observability.TierLocal, observability.ResultMiss)
	}

	epoch := s.epoch.Load()
	attrs, err := s.readRedis(ctx, key)
	if err != nil {
		return nil, err
	}
	if attrs != nil {
		s.metrics.RecordCache(observability.TierRedis, observability.ResultHit)
		s.promote(key, attrs, epoch)
		return attrs.Clone(), nil
	}
	s.metrics.RecordCache(observability.TierRedis, observability.ResultMiss)

	// Readers arriving after an invalidation start a new flight instead of joining one
	// that may have read revoked roles. The shared load outlives any single caller.
	flight := fmt.Sprintf("%s#%d", key, epoch)
	v, err, _ := s.group.Do(flight, func() (interface{}, error) {
		return s.load(context.WithoutCancel(ctx), key, userID, service, epoch)
	})
	if err != nil {
		return nil, err
	}
	return v.(*UserAttributes).Clone(), nil
}

// promote copies a Redis hit into the local tier unless an invalidation arrived after epoch
func (s *Store) promote(key string, attrs *UserAttributes, epoch uint64) {
	if s.local != nil && s.epoch.Load() == epoch {
		s.local.Add(key, attrs)
	}
}

// load runs the Loader and writes the result back unless an invalidation happened meanwhile
func (s *Store) load(ctx context.Context, key, userID, service string, epoch uint64) (*UserAttributes, error) {
	start := time.Now()
	attrs, err := s.loader.Load(ctx, userID, service)
	s.metrics.RecordLoad(time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if s.epoch.Load() != epoch {
		// Invalidated while loading; serve the value but do not cache it
		return attrs, nil
	}

	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attributes: %w", err)
	}
	if err := s.client.Set(ctx, key, data, s.config.TTL).Err(); err != nil {
		s.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"service": service,
			"error":   err.Error(),
		}).Warn("failed to cache user attributes")
		return attrs, nil
	}
	if s.local != nil {
		s.local.Add(key, attrs)
	}
	return attrs, nil
}

func (s *Store) readRedis(ctx context.Context, key string) (*UserAttributes, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("cache", fmt.Errorf("redis get failed: %w", err))
	}

	var attrs UserAttributes
	if err := json.Unmarshal(data, &attrs); err != nil {
		// Corrupt entry: drop it and reload from the source
		s.logger.WithField("key", key).WithError(err).Warn("discarding corrupt attribute cache entry")
		s.client.Del(ctx, key)
		return nil, nil
	}
	attrs.normalize()
	return &attrs, nil
}

// Invalidate removes the cached bundle for (userID, service), or every bundle of the user
// when service is empty or Wildcard, and tells other processes to do the same.
func (s *Store) Invalidate(ctx context.Context, userID, service string) error {
	if userID == "" {
		return ErrInvalidKey
	}
	if service == "" {
		service = Wildcard
	}

	s.InvalidateLocal(userID, service)
	s.metrics.RecordInvalidation(observability.OriginLocal)

	if service == Wildcard {
		if err := s.deletePattern(ctx, s.userPattern(userID)); err != nil {
			return unavailable("cache", err)
		}
	} else if err := s.client.Del(ctx, s.key(userID, service)).Err(); err != nil {
		return unavailable("cache", fmt.Errorf("redis del failed: %w", err))
	}

	msg := Invalidation{
		UserID:   userID,
		Service:  service,
		Origin:   s.origin,
		IssuedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}
	if err := s.client.Publish(ctx, s.config.Channel, payload).Err(); err != nil {
		return unavailable("cache", fmt.Errorf("redis publish failed: %w", err))
	}
	return nil
}

// InvalidateLocal drops in-process state for the user without touching Redis. Bumping the
// epoch keeps in-flight loads out of the cache and away from later readers. The
// invalidation Listener calls it for messages published by other processes.
func (s *Store) InvalidateLocal(userID, service string) {
	s.epoch.Add(1)

	if service == "" || service == Wildcard {
		prefix := s.userPrefix(userID)
		if s.local != nil {
			for _, k := range s.local.Keys() {
				if strings.HasPrefix(k, prefix) {
					s.local.Remove(k)
				}
			}
		}
		return
	}

	if s.local != nil {
		s.local.Remove(s.key(userID, service))
	}
}

// applyRemote handles a message received from the invalidation channel
func (s *Store) applyRemote(msg Invalidation) {
	if msg.Origin == s.origin {
		return
	}
	s.InvalidateLocal(msg.UserID, msg.Service)
	s.metrics.RecordInvalidation(observability.OriginRemote)
	s.logger.WithFields(logrus.Fields{
		"user_id": msg.UserID,
		"service": msg.Service,
	}).Debug("applied remote attribute invalidation")
}

func (s *Store) deletePattern(ctx context.Context, pattern string) error {
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan failed for pattern %s: %w", pattern, err)
	}
	return nil
}

// Ping checks Redis connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(userID, service string) string {
	return s.userPrefix(userID) + url.QueryEscape(service)
}

func (s *Store) userPrefix(userID string) string {
	return s.config.KeyPrefix + ":attrs:" + url.QueryEscape(userID) + ":"
}

func (s *Store) userPattern(userID string) string {
	return globEscape(s.userPrefix(userID)) + "*"
}

// globEscape escapes Redis glob metacharacters
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
