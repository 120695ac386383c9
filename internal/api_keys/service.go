package api_keys

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/constant"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
)

// ErrInvalidRequest wraps every validation failure of a create or update request.
var ErrInvalidRequest = errors.New("invalid api key request")

// KeyDefaults controls how secrets are generated when a request does not say.
type KeyDefaults struct {
	Prefix     string
	ByteLength int
}

// CreateParams describes a key to create.
type CreateParams struct {
	Name        string
	Description string
	Prefix      string
	ByteLength  int
	ExpiresAt   *time.Time
	// Credits nil means unlimited.
	Credits  *Credits
	Disabled bool
}

// UpdateParams describes a partial update. Nil fields are left untouched.
type UpdateParams struct {
	Name         *string
	Description  *string
	Enabled      *bool
	ExpiresAt    *time.Time
	NeverExpires bool
	Credits      *Credits
	Unlimited    bool
}

type Service struct {
	store    MetadataStore
	logger   *logger.Logger
	defaults KeyDefaults
	now      func() time.Time
}

func NewService(log *logger.Logger, store MetadataStore, defaults KeyDefaults) *Service {
	if log == nil {
		log = logger.Production()
	}
	if defaults.Prefix == "" {
		defaults.Prefix = constant.DefaultKeyPrefix
	}
	if defaults.ByteLength == 0 {
		defaults.ByteLength = constant.DefaultKeyByteLength
	}
	return &Service{
		store:    store,
		logger:   log,
		defaults: defaults,
		now:      time.Now,
	}
}

func (s *Service) CreateAPIKey(ctx context.Context, owner string, params CreateParams) (*CreatedKey, error) {
	now := s.now().UTC()

	if strings.TrimSpace(params.Name) == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, ErrEmptyName)
	}
	if err := validateExpiry(params.ExpiresAt, now); err != nil {
		return nil, err
	}
	if err := validateCredits(params.Credits); err != nil {
		return nil, err
	}

	prefix := params.Prefix
	if prefix == "" {
		prefix = s.defaults.Prefix
	}
	if strings.Contains(prefix, keySeparator) {
		return nil, fmt.Errorf("%w: prefix must not contain %q", ErrInvalidRequest, keySeparator)
	}
	byteLength := params.ByteLength
	if byteLength == 0 {
		byteLength = s.defaults.ByteLength
	}
	if byteLength < constant.MinKeyByteLength || byteLength > constant.MaxKeyByteLength {
		return nil, fmt.Errorf("%w: byte length must be between %d and %d",
			ErrInvalidRequest, constant.MinKeyByteLength, constant.MaxKeyByteLength)
	}

	secret, err := GenerateSecret(prefix, byteLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate api key: %w", err)
	}

	key := APIKey{
		ID:          uuid.NewString(),
		Owner:       owner,
		Name:        strings.TrimSpace(params.Name),
		Description: strings.TrimSpace(params.Description),
		Start:       SecretStart(secret),
		Hash:        HashSecret(secret),
		Enabled:     !params.Disabled,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   params.ExpiresAt,
	}
	if params.Credits != nil {
		credits := *params.Credits
		if credits.RefillAmount > 0 {
			credits.RefilledAt = &now
		}
		key.Credits = &credits
	}

	if err := s.store.Add(ctx, &key); err != nil {
		return nil, fmt.Errorf("failed to persist api key: %w", err)
	}

	s.logger.Info("Created api key", "owner", owner, "id", key.ID, "start", key.Start)
	return &CreatedKey{APIKey: key, Key: secret}, nil
}

func (s *Service) ListAPIKeys(ctx context.Context, owner string) ([]APIKey, error) {
	return s.store.List(ctx, owner)
}

func (s *Service) GetAPIKey(ctx context.Context, owner, id string) (*APIKey, error) {
	return s.store.Get(ctx, owner, id)
}

func (s *Service) UpdateAPIKey(ctx context.Context, owner, id string, params UpdateParams) (*APIKey, error) {
	key, err := s.store.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		if strings.TrimSpace(*params.Name) == "" {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, ErrEmptyName)
		}
		key.Name = *params.Name
	}
	if params.Description != nil {
		key.Description = *params.Description
	}
	if params.Enabled != nil {
		key.Enabled = *params.Enabled
	}

	switch {
	case params.NeverExpires:
		key.ExpiresAt = nil
	case params.ExpiresAt != nil:
		if err := validateExpiry(params.ExpiresAt, s.now()); err != nil {
			return nil, err
		}
		key.ExpiresAt = params.ExpiresAt
	}

	switch {
	case params.Unlimited:
		key.Credits = nil
	case params.Credits != nil:
		if err := validateCredits(params.Credits); err != nil {
			return nil, err
		}
		credits := *params.Credits
		if key.Credits != nil && credits.RefilledAt == nil {
			credits.RefilledAt = key.Credits.RefilledAt
		}
		if credits.RefillAmount > 0 && credits.RefilledAt == nil {
			now := s.now().UTC()
			credits.RefilledAt = &now
		}
		key.Credits = &credits
	}

	if err := s.store.Update(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// SetEnabled enables or disables a key. Re-enabling is the remediation offered
// for keys reported as disabled.
func (s *Service) SetEnabled(ctx context.Context, owner, id string, enabled bool) (*APIKey, error) {
	key, err := s.UpdateAPIKey(ctx, owner, id, UpdateParams{Enabled: &enabled})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Changed api key state", "owner", owner, "id", id, "enabled", enabled)
	return key, nil
}

func (s *Service) DeleteAPIKey(ctx context.Context, owner, id string) error {
	if err := s.store.Delete(ctx, owner, id); err != nil {
		return err
	}
	s.logger.Info("Deleted api key", "owner", owner, "id", id)
	return nil
}

// RefillCredits restores the allowance of keys whose last refill is at least a day old.
func (s *Service) RefillCredits(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	return s.store.RefillCredits(ctx, now.Add(-24*time.Hour), now)
}

func validateExpiry(expiresAt *time.Time, now time.Time) error {
	if expiresAt != nil && !expiresAt.After(now) {
		return fmt.Errorf("%w: expiration must be in the future", ErrInvalidRequest)
	}
	return nil
}

func validateCredits(c *Credits) error {
	if c == nil {
		return nil
	}
	if c.Remaining < 0 {
		return fmt.Errorf("%w: remaining credits must not be negative", ErrInvalidRequest)
	}
	if c.RefillAmount < 0 {
		return fmt.Errorf("%w: refill amount must not be negative", ErrInvalidRequest)
	}
	return nil
}
