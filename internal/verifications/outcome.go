// Package verifications records key verification outcomes and serves them as
// fixed-width buckets over the status observation window.
package verifications

import (
	"errors"
	"fmt"
	"strings"
)

// Outcome is the result of one key verification.
type Outcome string

const (
	OutcomeValid                   Outcome = "valid"
	OutcomeRateLimited             Outcome = "rate_limited"
	OutcomeUsageExceeded           Outcome = "usage_exceeded"
	OutcomeExpired                 Outcome = "expired"
	OutcomeDisabled                Outcome = "disabled"
	OutcomeForbidden               Outcome = "forbidden"
	OutcomeInsufficientPermissions Outcome = "insufficient_permissions"
	OutcomeInvalid                 Outcome = "invalid"
)

var ErrUnknownOutcome = errors.New("unknown verification outcome")

var outcomes = map[Outcome]struct{}{
	OutcomeValid:                   {},
	OutcomeRateLimited:             {},
	OutcomeUsageExceeded:           {},
	OutcomeExpired:                 {},
	OutcomeDisabled:                {},
	OutcomeForbidden:               {},
	OutcomeInsufficientPermissions: {},
	OutcomeInvalid:                 {},
}

// ParseOutcome accepts outcome names case-insensitively.
func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := outcomes[o]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOutcome, s)
	}
	return o, nil
}

// IsError reports whether the outcome counts toward a bucket's error count.
// Rate limiting is tracked separately and is not an error.
func (o Outcome) IsError() bool {
	return o != OutcomeValid && o != OutcomeRateLimited
}
