package status

import (
	"encoding/json"
	"fmt"
)

// Kind identifies one status a key can be in.
type Kind int

const (
	KindOperational Kind = iota
	KindDisabled
	KindRateLimited
	KindValidationIssues
	KindLowCredits
	KindExpiresSoon
)

var kindNames = map[Kind]string{
	KindOperational:      "operational",
	KindDisabled:         "disabled",
	KindRateLimited:      "rate_limited",
	KindValidationIssues: "validation_issues",
	KindLowCredits:       "low_credits",
	KindExpiresSoon:      "expires_soon",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for kind, name := range kindNames {
		if name == s {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown status kind %q", s)
}

// Definition describes how a status is presented and how urgent it is.
// Lower Priority is more urgent.
type Definition struct {
	Kind       Kind   `json:"kind"`
	Label      string `json:"label"`
	ColorToken string `json:"colorToken"`
	Icon       string `json:"icon"`
	Priority   int    `json:"priority"`
	Tooltip    string `json:"tooltip"`
}

// Badge returns the prominent part of the definition.
func (d Definition) Badge() Badge {
	return Badge{Label: d.Label, ColorToken: d.ColorToken, Icon: d.Icon}
}

// definitions is read-only after package initialization. Priorities form a total order:
// disabled < rate_limited < low_credits < validation_issues < expires_soon < operational.
var definitions = map[Kind]Definition{
	KindDisabled: {
		Kind:       KindDisabled,
		Label:      "Disabled",
		ColorToken: "neutral",
		Icon:       "circle-pause",
		Priority:   0,
		Tooltip:    "This key has been manually disabled and cannot be used for any requests.",
	},
	KindRateLimited: {
		Kind:       KindRateLimited,
		Label:      "Ratelimited",
		ColorToken: "warning",
		Icon:       "gauge",
		Priority:   1,
		Tooltip:    "More than 10% of recent verifications were rejected by a rate limit.",
	},
	KindLowCredits: {
		Kind:       KindLowCredits,
		Label:      "Low credits",
		ColorToken: "error",
		Icon:       "coins",
		Priority:   2,
		Tooltip:    "This key has run out of credits or is close to running out before its next refill.",
	},
	KindValidationIssues: {
		Kind:       KindValidationIssues,
		Label:      "Potential issues",
		ColorToken: "error",
		Icon:       "triangle-warning",
		Priority:   3,
		Tooltip:    "More than 10% of recent verifications failed validation.",
	},
	KindExpiresSoon: {
		Kind:       KindExpiresSoon,
		Label:      "Expires soon",
		ColorToken: "orange",
		Icon:       "clock",
		Priority:   4,
		Tooltip:    "This key will expire within the next 24 hours.",
	},
	KindOperational: {
		Kind:       KindOperational,
		Label:      "Operational",
		ColorToken: "success",
		Icon:       "circle-check",
		Priority:   5,
		Tooltip:    "This key is enabled and working as expected.",
	},
}

// Lookup returns the definition for a kind.
func Lookup(k Kind) (Definition, bool) {
	d, ok := definitions[k]
	return d, ok
}
