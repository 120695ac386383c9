package status

import "time"

// KeyMetadata is the static part of an API key that the evaluator reads.
type KeyMetadata struct {
	Enabled bool
	// ExpiresAt is nil for keys that never expire.
	ExpiresAt *time.Time
	// Credits is nil or Unlimited for keys without a usage allowance.
	Credits Credits
}

// Credits is either Unlimited or Limited.
type Credits interface {
	isCredits()
}

// Unlimited marks a key without a consumable allowance.
type Unlimited struct{}

// Limited marks a key with a consumable allowance.
type Limited struct {
	Remaining int64
	// RefillAmount is zero when no refill is configured.
	RefillAmount int64
}

func (Unlimited) isCredits() {}
func (Limited) isCredits()   {}

// Bucket holds verification counts for one sub-interval of the observation window.
// Error and RateLimited never exceed Total.
type Bucket struct {
	Start       time.Time `json:"start"`
	Total       int64     `json:"total"`
	Error       int64     `json:"error"`
	RateLimited int64     `json:"rateLimited"`
}

// Counts is the sum of a sequence of buckets.
type Counts struct {
	Total       int64 `json:"total"`
	Error       int64 `json:"error"`
	RateLimited int64 `json:"rateLimited"`
}

// Badge is the part of a Definition shown prominently.
type Badge struct {
	Label      string `json:"label"`
	ColorToken string `json:"colorToken"`
	Icon       string `json:"icon"`
}

// Result is the outcome of one evaluation. Primary always equals AllApplicable[0].
type Result struct {
	Primary       Badge        `json:"primary"`
	OtherCount    int          `json:"otherCount"`
	AllApplicable []Definition `json:"allApplicable"`
}
