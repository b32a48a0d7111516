package helpers

import "time"

// ParseDuration parses a duration string, falling back to def on empty
// or malformed input.
func ParseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
