/**
 * @description
 * TTL policy for ephemeral databases: parsing the user-facing textual form
 * ("30m", "24h") and clamping requested lifetimes into the allowed range.
 * These are pure functions with no side effects.
 */
package domain

import (
	"strconv"
	"strings"
)

const (
	// MinTTLMs is the shortest lifetime an ephemeral database may have (30 minutes).
	MinTTLMs int64 = 30 * 60 * 1000
	// MaxTTLMs is the longest lifetime an ephemeral database may have (24 hours).
	MaxTTLMs int64 = 24 * 60 * 60 * 1000
)

// ParseTTL parses a textual TTL such as "30m", "1h" or "24h" (case-insensitive)
// into milliseconds. It returns ok=false for anything that does not parse or
// falls outside the [MinTTLMs, MaxTTLMs] range.
func ParseTTL(input string) (int64, bool) {
	return ParseTTLBounded(input, MinTTLMs, MaxTTLMs)
}

// ParseTTLBounded is ParseTTL with caller-supplied bounds, letting deployments
// tighten the allowed range below the platform defaults.
func ParseTTLBounded(input string, minMs, maxMs int64) (int64, bool) {
	minMs, maxMs = ttlBounds(minMs, maxMs)

	s := strings.ToLower(strings.TrimSpace(input))
	if len(s) < 2 {
		return 0, false
	}

	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, false
	}

	var ms int64
	switch s[len(s)-1] {
	case 'm':
		ms = int64(value) * 60 * 1000
	case 'h':
		ms = int64(value) * 60 * 60 * 1000
	default:
		return 0, false
	}

	if ms < minMs || ms > maxMs {
		return 0, false
	}
	return ms, true
}

// ClampTTL forces a requested TTL into the allowed range. A missing or
// non-positive value defaults to the maximum, which is the safe choice for a
// resource that will be deleted when the TTL elapses.
func ClampTTL(ms int64) int64 {
	return ClampTTLBounded(ms, MinTTLMs, MaxTTLMs)
}

// ClampTTLBounded is ClampTTL with caller-supplied bounds.
func ClampTTLBounded(ms, minMs, maxMs int64) int64 {
	minMs, maxMs = ttlBounds(minMs, maxMs)
	if ms <= 0 {
		return maxMs
	}
	if ms < minMs {
		return minMs
	}
	if ms > maxMs {
		return maxMs
	}
	return ms
}

// ttlBounds sanitizes caller-supplied bounds. Configured bounds may tighten
// the range but never widen it past the platform [MinTTLMs, MaxTTLMs] limits
// that the stale sweeper enforces; unset or inverted bounds fall back to the
// defaults.
func ttlBounds(minMs, maxMs int64) (int64, int64) {
	if minMs < MinTTLMs {
		minMs = MinTTLMs
	}
	if maxMs <= 0 || maxMs > MaxTTLMs {
		maxMs = MaxTTLMs
	}
	if maxMs < minMs {
		minMs = MinTTLMs
		maxMs = MaxTTLMs
	}
	return minMs, maxMs
}
