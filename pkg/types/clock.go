package types

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidTime is returned when a clock time string cannot be parsed.
var ErrInvalidTime = errors.New("invalid time of day")

// ParseHours converts a clock time string to decimal hours. Accepted forms
// are "HH", "HH:MM" and "HH:MM:SS", e.g. "01:30" becomes 1.5.
func ParseHours(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	divisors := []float64{1, 60, 3600}
	var h float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
		h += v / divisors[i]
	}
	return h, nil
}

// FormatHours converts decimal hours to "HH:MM".
func FormatHours(h float64) string {
	return fmt.Sprintf("%02d:%02d", int(h), int(h*60)%60)
}

// FormatHoursSec converts decimal hours to "HH:MM:SS".
func FormatHoursSec(h float64) string {
	return fmt.Sprintf("%02d:%02d:%02d", int(h), int(h*60)%60, int(h*3600)%60)
}

// RoundHours wraps an hour-of-day past midnight onto the next day's clock
// and rounds it to the nearest minute.
func RoundHours(h float64) float64 {
	if h > 24 {
		h -= 24
	}
	whole := math.Trunc(h)
	return whole + math.Round(60*(h-whole))/60
}

// HourMinute splits decimal hours into whole hours and minutes.
func HourMinute(h float64) (int, int) {
	return int(h), int(math.Round(60 * (h - math.Trunc(h))))
}

// Round1 rounds to 1 decimal place, the precision used for all kWh figures.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Round3 rounds to 3 decimal places, the precision used for summary
// statistics.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
