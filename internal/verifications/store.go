package verifications

import (
	"context"
	"errors"
	"time"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/status"
)

var (
	ErrInvalidGranularity = errors.New("bucket granularity must be at least one second")
	ErrEmptyKeyID         = errors.New("key id is required")
)

// Recorder persists verification outcomes.
type Recorder interface {
	Record(ctx context.Context, keyID string, outcome Outcome, at time.Time) error
}

// Source returns the contiguous, time-ordered buckets of a key covering
// [since truncated to granularity, until]. Buckets without events are zero.
type Source interface {
	Buckets(ctx context.Context, keyID string, since, until time.Time, granularity time.Duration) ([]status.Bucket, error)
}

type Store interface {
	Recorder
	Source

	// Prune deletes events that occurred before before.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// emptyBuckets lays out the zero-valued buckets of a window.
func emptyBuckets(since, until time.Time, granularity time.Duration) (time.Time, []status.Bucket, error) {
	if granularity < time.Second {
		return time.Time{}, nil, ErrInvalidGranularity
	}
	start := since.UTC().Truncate(granularity)
	if until.Before(start) {
		return start, []status.Bucket{}, nil
	}

	n := int(until.Sub(start)/granularity) + 1
	buckets := make([]status.Bucket, n)
	for i := range buckets {
		buckets[i].Start = start.Add(time.Duration(i) * granularity)
	}
	return start, buckets, nil
}
