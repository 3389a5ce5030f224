// Package spendwindow keeps a delegation's rolling 24-hour spend counter
// within its daily limit.
//
// The window is reset lazily: a stale counter is only zeroed when something
// reads or writes it. There is no background expiry.
package spendwindow

import (
	"math"
	"time"

	"treasury/internal/types"
)

// Window is the length of one spend accounting window.
const Window = 24 * time.Hour

// Result is the output of Normalize.
type Result struct {
	Caveats types.DelegationCaveats
	// Changed is false when the input was already normalized and a write
	// back to storage can be skipped.
	Changed bool
}

// Clamp bounds value to [min, max]. NaN maps to min.
func Clamp(value, min, max float64) float64 {
	if math.IsNaN(value) {
		return min
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ShouldReset reports whether the spend counter belongs to an expired window.
// A missing or unparseable timestamp always resets. A timestamp in the future
// does not.
func ShouldReset(caveats types.DelegationCaveats, now time.Time) bool {
	updatedAt, ok := parseTimestamp(caveats.Spent24hUpdatedAt)
	if !ok {
		return true
	}
	return now.Sub(updatedAt) >= Window
}

// Normalize applies the window reset and the limit clamp. Applying it twice
// with the same now yields Changed=false on the second call.
func Normalize(caveats types.DelegationCaveats, dailyLimit float64, now time.Time) Result {
	limit := Clamp(dailyLimit, 0, math.Inf(1))

	if ShouldReset(caveats, now) {
		next := caveats
		next.Spent24h = 0
		next.Spent24hUpdatedAt = formatTimestamp(now)
		return Result{Caveats: next, Changed: next != caveats}
	}

	next := caveats
	next.Spent24h = Clamp(caveats.Spent24h, 0, limit)
	// NaN != NaN, so compare on the bit pattern.
	changed := math.Float64bits(next.Spent24h) != math.Float64bits(caveats.Spent24h)
	return Result{Caveats: next, Changed: changed}
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
