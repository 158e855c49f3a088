// Package clock converts between run-time clock strings and whole seconds.
package clock

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NoData is the display placeholder shown when a player has no recorded
// time. It is not a duration and must never be passed to Parse.
const NoData = "8:88"

// ErrMalformedTime is returned by Parse for text that is not a clock string.
var ErrMalformedTime = errors.New("malformed time")

// Parse converts H:MM:SS, M:SS or plain seconds into whole seconds.
// Empty text means no time was recorded and yields 0.
func Parse(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}
	parts := strings.Split(text, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, text)
	}

	total := 0
	for i, p := range parts {
		if !allDigits(p) {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTime, text)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTime, text)
		}
		// minutes and seconds after the leading field are bounded
		if i > 0 && n > 59 {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTime, text)
		}
		if total > (math.MaxInt-n)/60 {
			return 0, fmt.Errorf("%w: %q out of range", ErrMalformedTime, text)
		}
		total = total*60 + n
	}
	return total, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ParseOrZero is like Parse but returns 0 for malformed input.
func ParseOrZero(text string) int {
	n, err := Parse(text)
	if err != nil {
		return 0
	}
	return n
}

// Format renders seconds as H:MM:SS when at least an hour, otherwise M:SS.
// Fractional seconds are floored and negative input renders as 0:00.
func Format(secs float64) string {
	if math.IsNaN(secs) || secs < 0 {
		secs = 0
	}
	total := int64(math.Floor(secs))
	hours := total / 3600
	minutes := total / 60 % 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
