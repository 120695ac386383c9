// Package status turns a key's metadata and recent verification counts into
// a prioritized list of health statuses.
package status

import (
	"sort"
	"time"
)

const (
	RateLimitThreshold       = 0.10
	ValidationIssueThreshold = 0.10
	LowCreditsAbsolute       = 0
	LowCreditsRefillFraction = 0.10
	ExpiryWindow             = 24 * time.Hour
)

// Aggregate sums every bucket. An empty sequence yields zero counts.
func Aggregate(buckets []Bucket) Counts {
	var c Counts
	for _, b := range buckets {
		c.Total += b.Total
		c.Error += b.Error
		c.RateLimited += b.RateLimited
	}
	return c
}

// Evaluate computes the statuses that apply to a key at the given instant.
//
// A disabled key reports only KindDisabled. Otherwise every condition is checked
// independently and the applicable ones are ordered by priority; with none
// applicable the key is operational. Evaluate has no side effects.
func Evaluate(now time.Time, meta KeyMetadata, buckets []Bucket) Result {
	if !meta.Enabled {
		return resultOf(definitions[KindDisabled])
	}

	counts := Aggregate(buckets)

	var applicable []Definition
	if exceeds(counts.RateLimited, counts.Total, RateLimitThreshold) {
		applicable = append(applicable, definitions[KindRateLimited])
	}
	if exceeds(counts.Error, counts.Total, ValidationIssueThreshold) {
		applicable = append(applicable, definitions[KindValidationIssues])
	}
	if lowCredits(meta.Credits) {
		applicable = append(applicable, definitions[KindLowCredits])
	}
	if expiresSoon(now, meta.ExpiresAt) {
		applicable = append(applicable, definitions[KindExpiresSoon])
	}

	if len(applicable) == 0 {
		return resultOf(definitions[KindOperational])
	}

	sort.SliceStable(applicable, func(i, j int) bool {
		return applicable[i].Priority < applicable[j].Priority
	})

	return resultOf(applicable...)
}

// Fallback is the result reported when verification data could not be loaded.
func Fallback(enabled bool) Result {
	if enabled {
		return resultOf(definitions[KindOperational])
	}
	return resultOf(definitions[KindDisabled])
}

func resultOf(applicable ...Definition) Result {
	return Result{
		Primary:       applicable[0].Badge(),
		OtherCount:    len(applicable) - 1,
		AllApplicable: applicable,
	}
}

// exceeds reports part/total > threshold, strictly.
func exceeds(part, total int64, threshold float64) bool {
	if total <= 0 {
		return false
	}
	return float64(part)/float64(total) > threshold
}

func lowCredits(credits Credits) bool {
	var limited Limited
	switch c := credits.(type) {
	case Limited:
		limited = c
	case *Limited:
		if c == nil {
			return false
		}
		limited = *c
	default:
		return false
	}
	if limited.Remaining == LowCreditsAbsolute {
		return true
	}
	return limited.RefillAmount > 0 &&
		float64(limited.Remaining) < float64(limited.RefillAmount)*LowCreditsRefillFraction
}

// expiresSoon excludes keys that have already expired.
func expiresSoon(now time.Time, expiresAt *time.Time) bool {
	if expiresAt == nil {
		return false
	}
	left := expiresAt.Sub(now)
	return left > 0 && left <= ExpiryWindow
}
