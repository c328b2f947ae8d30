package timer

import (
	"fmt"
	"math"
	"time"
)

// Format renders d as mm:ss. Seconds are floored, both parts are padded to
// two digits and minutes are not capped, so 61 minutes render as "61:01".
// Negative durations render as "00:00".
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// Progress returns the elapsed fraction 1 - clamp(left/total, 0, 1).
// A non-positive total counts as finished.
func Progress(left, total time.Duration) float64 {
	if total <= 0 {
		return 1
	}
	frac := float64(left) / float64(total)
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	return 1 - frac
}

// Degrees scales a progress fraction to a whole number of degrees.
func Degrees(frac float64) int {
	return int(math.Floor(frac * 360))
}

func newTick(left, total time.Duration, st State) Tick {
	frac := Progress(left, total)
	return Tick{
		Remaining: left,
		Total:     total,
		Text:      Format(left),
		Fraction:  frac,
		Degrees:   Degrees(frac),
		State:     st,
	}
}
