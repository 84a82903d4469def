package energy

import (
	"time"

	"github.com/gridpilot/gridpilot/pkg/types"
)

// PruneReport truncates report values to completed sub-intervals so a period
// that includes "now" never reports noise from the interval in progress:
// a day report for today keeps only completed hours, a month report for the
// current month only days up to today, a year report for the current year
// only completed months.
func PruneReport(values []float64, period types.Span, date, now time.Time) []float64 {
	switch period {
	case types.SpanDay:
		if sameDay(date, now) {
			values = clip(values, now.Hour())
		}
	case types.SpanMonth:
		if date.Year() == now.Year() && date.Month() == now.Month() {
			values = clip(values, now.Day())
		}
	case types.SpanYear:
		if date.Year() == now.Year() {
			values = clip(values, int(now.Month()))
		}
	}
	return values
}

// ReshapeWeek builds the 7 daily values ending on date from a month report,
// splicing in the previous month's report when the window straddles a month
// boundary. side holds the previous month's values (nil when the whole week
// falls inside one month) and sideDate is the date 7 days earlier.
func ReshapeWeek(main, side []float64, date, sideDate time.Time) []float64 {
	values := clip(main, date.Day())
	if side != nil {
		values = append(clipFrom(side, sideDate.Day()), values...)
	}
	if len(values) > 7 {
		values = values[len(values)-7:]
	}
	return values
}

// SummarizeReport fills in the summary statistics for a report series.
// For day reports the caller supplies the authoritative total taken from the
// month-level side report; otherwise the total is the sum of the values.
func SummarizeReport(r *types.ReportSeries, dayTotal *float64) {
	stats := &types.SeriesStats{}
	for i, v := range r.Values {
		stats.Count++
		stats.Sum += v
		if stats.Max == nil || v > stats.Max.Value {
			stats.Max = &types.Extreme{Value: v, Index: i}
		}
		if stats.Min == nil || v < stats.Min.Value {
			stats.Min = &types.Extreme{Value: v, Index: i}
		}
	}
	stats.Sum = types.Round3(stats.Sum)
	if dayTotal != nil {
		r.Total = *dayTotal
	} else {
		r.Total = stats.Sum
	}
	if stats.Count > 0 {
		avg := types.Round3(r.Total / float64(stats.Count))
		stats.Average = &avg
		stats.Max.Value = types.Round3(stats.Max.Value)
		stats.Min.Value = types.Round3(stats.Min.Value)
	}
	r.Stats = stats
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func clip(values []float64, n int) []float64 {
	if n < len(values) {
		return values[:n]
	}
	return values
}

func clipFrom(values []float64, n int) []float64 {
	if n < len(values) {
		return values[n:]
	}
	return nil
}
