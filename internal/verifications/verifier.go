package verifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/api_keys"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/metrics"
)

// KeyStore is the part of the key metadata store used by this package.
type KeyStore interface {
	Get(ctx context.Context, owner, id string) (*api_keys.APIKey, error)
	Lookup(ctx context.Context, id string) (*api_keys.APIKey, error)
	FindByHash(ctx context.Context, hash string) (*api_keys.APIKey, error)
	ConsumeCredit(ctx context.Context, id string) error
}

// RateLimit configures per-key verification throttling. A zero Limit disables it.
type RateLimit struct {
	Limit float64
	Burst int
}

// Result is the answer to a verification request.
type Result struct {
	Valid   bool    `json:"valid"`
	KeyID   string  `json:"keyId,omitempty"`
	Outcome Outcome `json:"outcome"`
}

// Verifier checks presented secrets against stored keys and records the outcome.
type Verifier struct {
	keys     KeyStore
	recorder Recorder
	limiter  *keyRateLimiter
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewVerifier(log *logger.Logger, keys KeyStore, recorder Recorder, limit RateLimit, m *metrics.Metrics) *Verifier {
	if log == nil {
		log = logger.Production()
	}
	v := &Verifier{
		keys:     keys,
		recorder: recorder,
		logger:   log,
		metrics:  m,
		now:      time.Now,
	}
	if limit.Limit > 0 {
		v.limiter = newKeyRateLimiter(rate.Limit(limit.Limit), max(limit.Burst, 1))
	}
	return v
}

// Verify checks secret. Checks run in order: unknown, disabled, expired,
// rate limited, out of credits. Unknown secrets are not recorded because
// they belong to no key.
func (v *Verifier) Verify(ctx context.Context, secret string) (Result, error) {
	now := v.now().UTC()

	secret = strings.TrimSpace(secret)
	if secret == "" {
		return Result{Outcome: OutcomeInvalid}, nil
	}

	key, err := v.keys.FindByHash(ctx, api_keys.HashSecret(secret))
	if err != nil {
		if errors.Is(err, api_keys.ErrKeyNotFound) {
			v.metrics.IncVerification(string(OutcomeInvalid))
			return Result{Outcome: OutcomeInvalid}, nil
		}
		return Result{}, fmt.Errorf("failed to look up key: %w", err)
	}

	outcome, err := v.decide(ctx, key, now)
	if err != nil {
		return Result{}, err
	}

	if err := v.Record(ctx, key.ID, outcome, now); err != nil {
		// The decision stands even if it could not be stored.
		v.logger.Error("Failed to record verification", "keyId", key.ID, "outcome", outcome, "error", err)
	}

	return Result{Valid: outcome == OutcomeValid, KeyID: key.ID, Outcome: outcome}, nil
}

func (v *Verifier) decide(ctx context.Context, key *api_keys.APIKey, now time.Time) (Outcome, error) {
	switch {
	case !key.Enabled:
		return OutcomeDisabled, nil
	case key.Expired(now):
		return OutcomeExpired, nil
	case v.limiter != nil && !v.limiter.Allow(key.ID, now):
		return OutcomeRateLimited, nil
	}

	if err := v.keys.ConsumeCredit(ctx, key.ID); err != nil {
		if errors.Is(err, api_keys.ErrNoCredits) {
			return OutcomeUsageExceeded, nil
		}
		return "", fmt.Errorf("failed to consume credit: %w", err)
	}
	return OutcomeValid, nil
}

// Record stores an outcome reported for a known key.
func (v *Verifier) Record(ctx context.Context, keyID string, outcome Outcome, at time.Time) error {
	if err := v.recorder.Record(ctx, keyID, outcome, at); err != nil {
		return err
	}
	v.metrics.IncVerification(string(outcome))
	return nil
}

// Sweep drops rate limiters of keys not seen recently.
func (v *Verifier) Sweep() {
	if v.limiter != nil {
		v.limiter.sweep(v.now())
	}
}
