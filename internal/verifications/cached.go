package verifications

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/cache"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/metrics"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/status"
)

const cacheKeyPrefix = "verifications:"

// CachedStore serves buckets from a cache in front of another Store. Recording
// an outcome drops the key's cached window. Cache failures fall through to the
// underlying store.
type CachedStore struct {
	store   Store
	cache   cache.Client
	ttl     time.Duration
	logger  *logger.Logger
	metrics *metrics.Metrics
}

var _ Store = (*CachedStore)(nil)

type cachedWindow struct {
	Start       time.Time       `json:"start"`
	Granularity time.Duration   `json:"granularity"`
	Buckets     []status.Bucket `json:"buckets"`
}

func NewCachedStore(log *logger.Logger, store Store, c cache.Client, ttl time.Duration, m *metrics.Metrics) *CachedStore {
	if log == nil {
		log = logger.Production()
	}
	return &CachedStore{store: store, cache: c, ttl: ttl, logger: log, metrics: m}
}

func (s *CachedStore) Record(ctx context.Context, keyID string, outcome Outcome, at time.Time) error {
	if err := s.store.Record(ctx, keyID, outcome, at); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cacheKeyPrefix+keyID); err != nil {
		s.logger.Warn("Failed to invalidate cached verification buckets", "keyId", keyID, "error", err)
	}
	return nil
}

// Buckets returns the cached window when it starts at the same bucket and has
// the same granularity; the bucket set only changes when a new bucket begins.
func (s *CachedStore) Buckets(ctx context.Context, keyID string, since, until time.Time, granularity time.Duration) ([]status.Bucket, error) {
	start, want, err := emptyBuckets(since, until, granularity)
	if err != nil {
		return nil, err
	}

	if window, ok := s.lookup(ctx, keyID); ok &&
		window.Start.Equal(start) && window.Granularity == granularity && len(window.Buckets) == len(want) {
		s.metrics.ObserveCache(true)
		return window.Buckets, nil
	}
	s.metrics.ObserveCache(false)

	buckets, err := s.store.Buckets(ctx, keyID, since, until, granularity)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(cachedWindow{Start: start, Granularity: granularity, Buckets: buckets})
	if err == nil {
		err = s.cache.Set(ctx, cacheKeyPrefix+keyID, payload, s.ttl)
	}
	if err != nil {
		s.logger.Warn("Failed to cache verification buckets", "keyId", keyID, "error", err)
	}
	return buckets, nil
}

func (s *CachedStore) lookup(ctx context.Context, keyID string) (cachedWindow, bool) {
	var window cachedWindow

	raw, err := s.cache.Get(ctx, cacheKeyPrefix+keyID)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			s.logger.Warn("Failed to read cached verification buckets", "keyId", keyID, "error", err)
		}
		return window, false
	}
	if err := json.Unmarshal(raw, &window); err != nil {
		s.logger.Warn("Discarding unreadable cached verification buckets", "keyId", keyID, "error", err)
		return window, false
	}
	return window, true
}

func (s *CachedStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	return s.store.Prune(ctx, before)
}
