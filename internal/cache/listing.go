package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"parkir-status-backend/internal/metrics"
	"parkir-status-backend/internal/model"
)

// ListingKey is the cache key of the unfiltered location listing.
const ListingKey = "parkirData"

// Lister is the authoritative source read on a cache miss.
type Lister interface {
	List(ctx context.Context) ([]model.Location, error)
}

// Listing is a read-through cache for the unfiltered listing. A stored payload
// is never older than ttl; Invalidate drops it early after a committed write.
type Listing struct {
	backend   Backend
	lister    Lister
	ttl       time.Duration
	dependent []string
	log       *zap.Logger
	metrics   *metrics.Metrics

	group singleflight.Group

	// mu orders fill writes against invalidations; generation is guarded by it.
	mu         sync.Mutex
	generation uint64
}

// Option configures a Listing.
type Option func(*Listing)

// WithDependentKeys registers extra keys derived from the listing (for example
// cached aggregates) that are dropped together with it.
func WithDependentKeys(keys ...string) Option {
	return func(l *Listing) { l.dependent = append(l.dependent, keys...) }
}

func NewListing(backend Backend, lister Lister, ttl time.Duration, log *zap.Logger, m *metrics.Metrics, opts ...Option) *Listing {
	l := &Listing{
		backend: backend,
		lister:  lister,
		ttl:     ttl,
		log:     log,
		metrics: m,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Get returns the serialized listing, from the cache when live and from the
// store otherwise. Concurrent misses share one fetch.
func (l *Listing) Get(ctx context.Context) ([]byte, error) {
	payload, err := l.backend.Get(ctx, ListingKey)
	switch {
	case err == nil:
		l.metrics.CacheRequests.WithLabelValues("hit").Inc()
		return payload, nil
	case errors.Is(err, ErrMiss):
		l.metrics.CacheRequests.WithLabelValues("miss").Inc()
	default:
		l.metrics.CacheRequests.WithLabelValues("error").Inc()
		l.log.Warn("cache read failed, falling back to store", zap.String("backend", l.backend.Name()), zap.Error(err))
	}

	v, err, _ := l.group.Do(ListingKey, func() (any, error) {
		return l.fill(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (l *Listing) fill(ctx context.Context) ([]byte, error) {
	l.mu.Lock()
	gen := l.generation
	l.mu.Unlock()

	locations, err := l.lister.List(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(locations)
	if err != nil {
		return nil, fmt.Errorf("failed to encode listing: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// An invalidation that raced this fetch wins; the next reader refetches.
	if l.generation != gen {
		return payload, nil
	}
	if err := l.backend.Set(ctx, ListingKey, payload, l.ttl); err != nil {
		l.log.Warn("cache write failed", zap.String("backend", l.backend.Name()), zap.Error(err))
	}
	return payload, nil
}

// Invalidate drops the listing and its dependent keys.
func (l *Listing) Invalidate(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
	l.group.Forget(ListingKey)
	keys := append([]string{ListingKey}, l.dependent...)
	return l.backend.Delete(ctx, keys...)
}

// Backend exposes the underlying backend for health reporting.
func (l *Listing) Backend() Backend { return l.backend }
