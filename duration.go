package ratelimit

import (
	"fmt"
	"time"
)

// ParseWindow parses a human duration expression such as "10s", "1m" or
// "30m" into a duration of whole, positive milliseconds. All windows and
// intervals in this package use this grammar.
func ParseWindow(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse window %q: %w", s, err)
	}
	if d < time.Millisecond {
		return 0, fmt.Errorf("window %q must be at least one millisecond", s)
	}
	if d%time.Millisecond != 0 {
		return 0, fmt.Errorf("window %q must be whole milliseconds", s)
	}
	return d, nil
}
