package timer

import (
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultDuration is the session length selected at startup.
	DefaultDuration = 5 * time.Minute

	// MaxCustomMinutes caps the minutes part of a custom duration.
	MaxCustomMinutes = 999
	// MaxCustomSeconds caps the seconds part of a custom duration.
	MaxCustomSeconds = 59
)

// Presets are the quick-pick session lengths in minutes.
var Presets = []int{1, 3, 5, 10, 15, 20, 30}

// ClampDuration maps negative durations to zero.
func ClampDuration(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// Custom builds a duration from minutes and seconds, clamping minutes to
// [0, 999] and seconds to [0, 59].
func Custom(minutes, seconds int) time.Duration {
	minutes = clampInt(minutes, 0, MaxCustomMinutes)
	seconds = clampInt(seconds, 0, MaxCustomSeconds)
	return time.Duration(minutes*60+seconds) * time.Second
}

// ParseCustom is Custom for raw form input. Empty or non-numeric fields
// count as zero; fractional values are truncated.
func ParseCustom(minutes, seconds string) time.Duration {
	return Custom(parseField(minutes), parseField(seconds))
}

// Preset returns the duration of a quick-pick entry given in minutes.
// Unknown values fall back to DefaultDuration.
func Preset(minutes int) time.Duration {
	for _, p := range Presets {
		if p == minutes {
			return time.Duration(p) * time.Minute
		}
	}
	return DefaultDuration
}

func parseField(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != f {
		return 0
	}
	if f > MaxCustomMinutes*60 {
		return MaxCustomMinutes * 60
	}
	if f < 0 {
		return 0
	}
	return int(f)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
