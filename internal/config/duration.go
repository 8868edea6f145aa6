package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string taken from a config field.
// Empty means "unset" and yields zero; negative values are rejected. path
// names the field in errors, e.g. "scheduler.grace_window".
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for unset
// fields. Used for the timeouts that carry service defaults: the executor
// request timeout, server read/write/idle timeouts, sqlite busy_timeout.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
