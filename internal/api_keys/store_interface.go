package api_keys

import (
	"context"
	"errors"
	"time"
)

var (
	ErrKeyNotFound = errors.New("api key not found")
	ErrEmptyID     = errors.New("api key id is required and cannot be empty")
	ErrEmptyName   = errors.New("api key name is required and cannot be empty")
	ErrEmptyOwner  = errors.New("api key owner is required and cannot be empty")
	// ErrNoCredits is returned by ConsumeCredit when a limited key has none left.
	ErrNoCredits = errors.New("api key has no remaining credits")
)

type MetadataStore interface {
	Add(ctx context.Context, key *APIKey) error

	// Get returns a key owned by owner.
	Get(ctx context.Context, owner, id string) (*APIKey, error)

	// Lookup returns a key regardless of owner.
	Lookup(ctx context.Context, id string) (*APIKey, error)

	// FindByHash returns the key whose secret hashes to hash.
	FindByHash(ctx context.Context, hash string) (*APIKey, error)

	List(ctx context.Context, owner string) ([]APIKey, error)

	// Update persists name, description, enabled, expiry and credits.
	Update(ctx context.Context, key *APIKey) error

	Delete(ctx context.Context, owner, id string) error

	// ConsumeCredit decrements a limited key's remaining credits by one.
	// Unlimited keys are left untouched.
	ConsumeCredit(ctx context.Context, id string) error

	// RefillCredits restores remaining credits of keys last refilled before cutoff.
	RefillCredits(ctx context.Context, cutoff, now time.Time) (int64, error)
}
