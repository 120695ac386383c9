package api_keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration is a relative lifetime in API requests. Strings accept Go units plus
// whole days ("30d"); numbers are seconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

var allowedUnits = regexp.MustCompile(`^(\d+(?:\.\d+)?[hms])+$`)

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case string:
		dur, err := parseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = dur
	case float64:
		// JSON numbers are unmarshaled as float64.
		d.Duration = time.Duration(value * float64(time.Second))
	default:
		return fmt.Errorf("json: cannot unmarshal %T into Go value of type Duration", value)
	}

	if d.Duration <= 0 {
		return errors.New("duration must be positive")
	}
	return nil
}

func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: days must be a whole number", value)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	if !allowedUnits.MatchString(value) {
		return 0, fmt.Errorf("invalid duration %q: must be a positive number ending in d, h, m or s (e.g. \"30d\", \"12h\")", value)
	}
	return time.ParseDuration(value)
}
