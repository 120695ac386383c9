package api_keys

import (
	"time"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/status"
)

// APIKey is the stored metadata of an API key. The secret itself is never
// stored; only its hash and a short visible start.
type APIKey struct {
	ID          string     `json:"id"`
	Owner       string     `json:"owner"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Start       string     `json:"start"`
	Hash        string     `json:"-"`
	Enabled     bool       `json:"enabled"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Credits     *Credits   `json:"credits,omitempty"`
}

// Credits is the consumable allowance of a key. A key without Credits is unlimited.
type Credits struct {
	Remaining    int64      `json:"remaining"`
	RefillAmount int64      `json:"refillAmount,omitempty"` // restored daily when non-zero
	RefilledAt   *time.Time `json:"refilledAt,omitempty"`
}

// Metadata returns the fields the status evaluator reads.
func (k *APIKey) Metadata() status.KeyMetadata {
	meta := status.KeyMetadata{
		Enabled:   k.Enabled,
		ExpiresAt: k.ExpiresAt,
		Credits:   status.Unlimited{},
	}
	if k.Credits != nil {
		meta.Credits = status.Limited{
			Remaining:    k.Credits.Remaining,
			RefillAmount: k.Credits.RefillAmount,
		}
	}
	return meta
}

// Expired reports whether the key is past its expiry at now.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// CreatedKey is returned once on creation and carries the plaintext secret.
type CreatedKey struct {
	APIKey

	Key string `json:"key"`
}
