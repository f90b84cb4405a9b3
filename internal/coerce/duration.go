package coerce

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/paveg/lazybridge/internal/errors"
)

var durationUnits = map[string]time.Duration{
	"ns": time.Nanosecond,
	"us": time.Microsecond,
	"µs": time.Microsecond,
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
	"w":  7 * 24 * time.Hour,
}

// ParseDuration parses a fixed-length duration string made of integer and
// unit pairs such as "2h", "1d12h", "500ms" or "1w". Calendar units (months,
// years) have no fixed length and are rejected.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	var total time.Duration
	for i := 0; i < len(s); {
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if start == i {
			return 0, fmt.Errorf("duration %q: expected a number at offset %d", s, start)
		}
		n, err := strconv.ParseInt(s[start:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("duration %q: %w", s, err)
		}

		unitStart := i
		for i < len(s) && (s[i] < '0' || s[i] > '9') {
			i++
		}
		unit, ok := durationUnits[s[unitStart:i]]
		if !ok {
			return 0, fmt.Errorf("duration %q: unknown unit %q", s, s[unitStart:i])
		}
		if n > math.MaxInt64/int64(unit) {
			return 0, fmt.Errorf("duration %q overflows", s)
		}
		step := time.Duration(n) * unit
		if total > math.MaxInt64-step {
			return 0, fmt.Errorf("duration %q overflows", s)
		}
		total += step
	}
	return total, nil
}

// Duration accepts a duration string understood by ParseDuration
func Duration(param string, v any) (time.Duration, error) {
	s, err := String(param, v)
	if err != nil {
		return 0, err
	}
	d, err := ParseDuration(s)
	if err != nil {
		e := errors.NewCoercionError(param, "a duration string such as \"2h\" or \"1d12h\"", v)
		e.Cause = err
		return 0, e
	}
	return d, nil
}
