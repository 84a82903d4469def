package types

import (
	"fmt"
	"time"
)

// Span identifies the length of a telemetry or report window.
type Span string

const (
	SpanHour    Span = "hour"
	SpanDay     Span = "day"
	SpanTwoDays Span = "2days"
	SpanWeek    Span = "week"
	SpanMonth   Span = "month"
	SpanYear    Span = "year"
)

// Sample is a single telemetry reading. Raw power samples arrive at a
// 5 minute cadence, forecast samples at 30 minutes.
type Sample struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Extreme records an extremal value and where it first occurred. Time is
// filled for raw series ("HH:MM"), Index for report series.
type Extreme struct {
	Value float64 `json:"value"`
	Time  string  `json:"time,omitempty"`
	Index int     `json:"index,omitempty"`
}

// SeriesStats holds summary statistics for a series. Average, Max and Min
// are nil for an empty series rather than zero.
type SeriesStats struct {
	Count   int      `json:"count"`
	Sum     float64  `json:"sum"`
	Average *float64 `json:"average,omitempty"`
	Max     *Extreme `json:"max,omitempty"`
	Min     *Extreme `json:"min,omitempty"`
}

// EnergySummary holds integrated energy totals in kWh, split into the
// active tariff's buckets.
type EnergySummary struct {
	TotalKWh   float64 `json:"kwh"`
	OffPeakKWh float64 `json:"kwhOffPeak"`
	PeakKWh    float64 `json:"kwhPeak"`
}

// StatePoint is a cumulative energy checkpoint emitted at an hour boundary.
type StatePoint struct {
	Time string  `json:"time"`
	KWh  float64 `json:"kwh"`
}

// Series is a named sequence of samples for one telemetry channel over a
// date window, plus summary fields derived by the energy package. A series
// is computed once per request and never partially updated.
type Series struct {
	Variable string   `json:"variable"`
	Name     string   `json:"name,omitempty"`
	Unit     string   `json:"unit"`
	Date     string   `json:"date,omitempty"`
	Data     []Sample `json:"data,omitempty"`

	Energy *EnergySummary `json:"energy,omitempty"`
	Stats  *SeriesStats   `json:"stats,omitempty"`
	State  []StatePoint   `json:"state,omitempty"`
}

// ReportSeries is aggregated energy report data for one variable, one value
// per completed sub-interval (hour of day, day of month, month of year).
type ReportSeries struct {
	Variable string    `json:"variable"`
	Date     string    `json:"date,omitempty"`
	Values   []float64 `json:"values"`

	// Total is the authoritative period total. For day reports it comes from
	// the month-level side report rather than summing partial hours.
	Total float64      `json:"total"`
	Stats *SeriesStats `json:"stats,omitempty"`
}

// Device describes a resolved inverter.
type Device struct {
	ID           string `json:"deviceID"`
	SerialNumber string `json:"deviceSN"`
	DeviceType   string `json:"deviceType"`
	Model        string `json:"model,omitempty"`
	Phases       int    `json:"phases,omitempty"`
	RatedPowerKW float64 `json:"power,omitempty"`
	HasEPS       bool   `json:"eps,omitempty"`
}

// BatteryState is the battery state reported by the cloud.
type BatteryState struct {
	SoCPercent float64 `json:"soc"`
	ResidualWh float64 `json:"residual"`
	// MinSoCPercent is the minimum state of charge the battery discharges to.
	MinSoCPercent float64 `json:"minSoc"`
	// MinGridSoCPercent is the minimum state of charge kept while on grid.
	MinGridSoCPercent float64 `json:"minGridSoc"`
}

// BatteryEnergy holds the kWh figures derived from a BatteryState. All
// values are rounded to 1 decimal place and recomputed fresh per scheduling
// run.
type BatteryEnergy struct {
	ResidualKWh  float64
	CapacityKWh  float64
	ReserveKWh   float64
	AvailableKWh float64
}

// Energy derives the battery's kWh figures. Capacity falls back to the
// residual itself when the state of charge is zero.
func (b BatteryState) Energy() BatteryEnergy {
	var e BatteryEnergy
	e.ResidualKWh = Round1(b.ResidualWh / 1000)
	if b.SoCPercent > 0 {
		e.CapacityKWh = Round1(e.ResidualKWh * 100 / b.SoCPercent)
	} else {
		e.CapacityKWh = e.ResidualKWh
	}
	e.ReserveKWh = Round1(e.CapacityKWh * b.MinGridSoCPercent / 100)
	e.AvailableKWh = Round1(e.ResidualKWh - e.ReserveKWh)
	return e
}

// ChargePeriod is one battery charging window in decimal hours.
// Start == End means the period is disabled.
type ChargePeriod struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	GridCharge bool    `json:"gridCharge"`
}

// Disabled reports whether the period is collapsed to "no charging".
func (p ChargePeriod) Disabled() bool {
	return p.Start == p.End
}

// Normalize collapses a zero-length period to the disabled form with the
// grid-charge flag cleared.
func (p ChargePeriod) Normalize() ChargePeriod {
	if p.Start == p.End {
		return ChargePeriod{}
	}
	return p
}

func (p ChargePeriod) String() string {
	s := fmt.Sprintf("%s - %s", FormatHours(p.Start), FormatHours(p.End))
	if p.GridCharge {
		s += " Charge from grid"
	}
	return s
}

// ChargePlan is the pair of charging windows a device accepts.
type ChargePlan struct {
	Periods [2]ChargePeriod `json:"periods"`
}

// Normalize collapses zero-length periods in both slots.
func (p ChargePlan) Normalize() ChargePlan {
	p.Periods[0] = p.Periods[0].Normalize()
	p.Periods[1] = p.Periods[1].Normalize()
	return p
}
