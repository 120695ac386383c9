// Package keystatus joins key metadata with verification history and evaluates
// the health statuses of keys.
package keystatus

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/api_keys"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/constant"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/metrics"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/status"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/verifications"
)

// KeyReader is the part of the key metadata store read by the service.
type KeyReader interface {
	Get(ctx context.Context, owner, id string) (*api_keys.APIKey, error)
	List(ctx context.Context, owner string) ([]api_keys.APIKey, error)
}

// KeyStatus is the evaluated status of one key.
type KeyStatus struct {
	KeyID string `json:"keyId"`
	// Fallback is set when verification data was unavailable and only the
	// enabled flag was considered.
	Fallback bool `json:"fallback"`
	status.Result

	EvaluatedAt time.Time `json:"evaluatedAt"`
}

type Service struct {
	keys        KeyReader
	source      verifications.Source
	granularity time.Duration
	logger      *logger.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewService(log *logger.Logger, keys KeyReader, source verifications.Source, granularity time.Duration, m *metrics.Metrics) *Service {
	if log == nil {
		log = logger.Production()
	}
	if granularity == 0 {
		granularity = constant.DefaultBucketSize
	}
	return &Service{
		keys:        keys,
		source:      source,
		granularity: granularity,
		logger:      log,
		metrics:     m,
		now:         time.Now,
	}
}

// Status evaluates one key of owner. Metadata and buckets are fetched in
// parallel; a missing key is an error, unavailable buckets are not.
func (s *Service) Status(ctx context.Context, owner, keyID string) (*KeyStatus, error) {
	start := time.Now()
	now := s.now().UTC()

	var (
		key        *api_keys.APIKey
		buckets    []status.Bucket
		bucketsErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		key, err = s.keys.Get(gctx, owner, keyID)
		return err
	})
	g.Go(func() error {
		buckets, bucketsErr = s.buckets(gctx, keyID, now)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ks := s.evaluate(key, buckets, bucketsErr, now)
	s.metrics.ObserveEvaluation(ks.AllApplicable[0].Kind.String(), time.Since(start).Seconds())
	return ks, nil
}

// StatusAll evaluates every key of owner, newest first.
func (s *Service) StatusAll(ctx context.Context, owner string) ([]KeyStatus, error) {
	now := s.now().UTC()

	keys, err := s.keys.List(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}

	statuses := make([]KeyStatus, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constant.StatusConcurrency)
	for i := range keys {
		g.Go(func() error {
			start := time.Now()
			buckets, bucketsErr := s.buckets(gctx, keys[i].ID, now)
			statuses[i] = *s.evaluate(&keys[i], buckets, bucketsErr, now)
			s.metrics.ObserveEvaluation(statuses[i].AllApplicable[0].Kind.String(), time.Since(start).Seconds())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return statuses, nil
}

func (s *Service) buckets(ctx context.Context, keyID string, now time.Time) ([]status.Bucket, error) {
	return s.source.Buckets(ctx, keyID, now.Add(-constant.VerificationWindow), now, s.granularity)
}

// evaluate never runs the evaluator on partial data: without buckets the
// result only reflects whether the key is enabled.
func (s *Service) evaluate(key *api_keys.APIKey, buckets []status.Bucket, bucketsErr error, now time.Time) *KeyStatus {
	ks := &KeyStatus{KeyID: key.ID, EvaluatedAt: now}

	if bucketsErr != nil {
		s.logger.Warn("Verification data unavailable, using fallback status",
			"keyId", key.ID, "error", bucketsErr)
		s.metrics.IncFallback()
		ks.Fallback = true
		ks.Result = status.Fallback(key.Enabled)
		return ks
	}

	ks.Result = status.Evaluate(now, key.Metadata(), buckets)
	return ks
}
