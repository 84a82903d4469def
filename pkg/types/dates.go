package types

import (
	"fmt"
	"time"
)

// DateFormat is the calendar date layout used throughout the module.
const DateFormat = "2006-01-02"

// DateRange describes the dates to generate with DateList.
type DateRange struct {
	// Start and End are inclusive bounds in "YYYY-MM-DD" form. Either or
	// both may be empty.
	Start string
	End   string
	// Span widens a single bound to a day, 2days, week, month or year.
	Span Span
	// Today allows the range to end today; otherwise it ends no later than
	// yesterday.
	Today bool
	// Limit caps the number of dates returned. Zero selects the default
	// (200, or 366 when a span is given).
	Limit int
}

// DateList generates an inclusive list of consecutive calendar dates per the
// range description. With Span set to SpanWeek the result is always exactly
// 7 consecutive dates.
func DateList(r DateRange) ([]string, error) {
	return dateListAt(time.Now(), r)
}

func dateListAt(now time.Time, r DateRange) ([]string, error) {
	latest := truncateDay(now)
	if !r.Today {
		latest = latest.AddDate(0, 0, -1)
	}

	var first, last time.Time
	if r.Start != "" {
		t, err := time.ParseInLocation(DateFormat, r.Start, now.Location())
		if err != nil {
			return nil, fmt.Errorf("invalid start date %q: %w", r.Start, err)
		}
		first = t
	}
	if r.End != "" {
		t, err := time.ParseInLocation(DateFormat, r.End, now.Location())
		if err != nil {
			return nil, fmt.Errorf("invalid end date %q: %w", r.End, err)
		}
		last = t
	}
	if first.IsZero() && last.IsZero() {
		last = latest
	}

	limit := r.Limit
	if r.Span != "" {
		if limit <= 0 {
			limit = 366
		}
		switch r.Span {
		case SpanDay:
			limit = 1
		case SpanTwoDays:
			// e.g. yesterday and today
			if !first.IsZero() {
				last = first.AddDate(0, 0, 1)
			} else {
				first = last.AddDate(0, 0, -1)
			}
		case SpanWeek:
			// 7 consecutive days
			if !first.IsZero() {
				last = first.AddDate(0, 0, 6)
			} else {
				first = last.AddDate(0, 0, -6)
			}
		case SpanMonth:
			if !first.IsZero() {
				last = first.AddDate(0, 1, 0).AddDate(0, 0, -1)
			} else {
				first = last.AddDate(0, -1, 0).AddDate(0, 0, 1)
			}
		case SpanYear:
			if !first.IsZero() {
				last = first.AddDate(1, 0, 0).AddDate(0, 0, -1)
			} else {
				first = last.AddDate(-1, 0, 0).AddDate(0, 0, 1)
			}
		default:
			return nil, fmt.Errorf("unknown span %q", r.Span)
		}
	} else if limit <= 0 {
		limit = 200
	}

	if last.IsZero() || last.After(latest) {
		last = latest
	}
	d := first
	if d.IsZero() || d.After(latest) {
		d = latest
	}
	if d.After(last) {
		d, last = last, d
	}

	dates := []string{d.Format(DateFormat)}
	for d.Before(last) && len(dates) < limit {
		d = d.AddDate(0, 0, 1)
		dates = append(dates, d.Format(DateFormat))
	}
	return dates, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
