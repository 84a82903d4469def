// Package tariff holds the time-of-use templates used to bucket energy into
// peak and off-peak totals and to pick the default charging window.
package tariff

import (
	"fmt"
	"strings"
)

// HourWindow is a clock-hour range in decimal hours. Membership is half-open:
// start <= h < end. A window with Start == End == 0 is unused.
type HourWindow struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Contains reports whether the given hour of day falls inside the window.
func (w HourWindow) Contains(h float64) bool {
	return h >= w.Start && h < w.End
}

// ChargeWindow is the tariff's cheap-rate charging window. Force is consumed
// only by the scheduler: when set, the remainder of the window is filled
// with a forced grid charge.
type ChargeWindow struct {
	HourWindow
	Force bool `json:"force"`
}

// Tariff is a named set of time-of-use windows. Only the charge window may
// wrap past midnight. Exactly one tariff is active per scheduling run,
// selected by caller configuration.
type Tariff struct {
	Name     string       `json:"name"`
	Charge   ChargeWindow `json:"charge"`
	OffPeak1 HourWindow   `json:"offPeak1"`
	OffPeak2 HourWindow   `json:"offPeak2"`
	Peak     HourWindow   `json:"peak"`
	Peak2    HourWindow   `json:"peak2"`
}

// OffPeak reports whether the hour falls in either off-peak window.
func (t Tariff) OffPeak(h float64) bool {
	return t.OffPeak1.Contains(h) || t.OffPeak2.Contains(h)
}

// PeakTime reports whether the hour falls in either peak window.
func (t Tariff) PeakTime(h float64) bool {
	return t.Peak.Contains(h) || t.Peak2.Contains(h)
}

var (
	// OctopusFlux charges cheaply overnight and rewards export 16:00-19:00.
	OctopusFlux = Tariff{
		Name:     "Octopus Flux",
		Charge:   ChargeWindow{HourWindow: HourWindow{Start: 2.0, End: 5.0}},
		OffPeak1: HourWindow{Start: 2.0, End: 5.0},
		Peak:     HourWindow{Start: 16.0, End: 19.0},
	}

	// IntelligentOctopus has a cheap window that wraps past midnight.
	IntelligentOctopus = Tariff{
		Name:     "Intelligent Octopus",
		Charge:   ChargeWindow{HourWindow: HourWindow{Start: 23.5, End: 5.5}},
		OffPeak1: HourWindow{Start: 23.5, End: 24.0},
		OffPeak2: HourWindow{Start: 0.0, End: 5.5},
	}

	OctopusCosy = Tariff{
		Name:     "Octopus Cosy",
		Charge:   ChargeWindow{HourWindow: HourWindow{Start: 4.0, End: 7.0}},
		OffPeak1: HourWindow{Start: 4.0, End: 7.0},
		OffPeak2: HourWindow{Start: 13.0, End: 16.0},
		Peak:     HourWindow{Start: 16.0, End: 19.0},
	}

	OctopusGo = Tariff{
		Name:     "Octopus Go",
		Charge:   ChargeWindow{HourWindow: HourWindow{Start: 0.5, End: 4.5}},
		OffPeak1: HourWindow{Start: 0.5, End: 4.5},
	}

	// Custom is a template for user-defined periods.
	Custom = Tariff{
		Name:   "Custom",
		Charge: ChargeWindow{HourWindow: HourWindow{Start: 2.0, End: 5.0}},
	}
)

// All lists the built-in tariffs.
var All = []Tariff{OctopusFlux, IntelligentOctopus, OctopusCosy, OctopusGo, Custom}

// ByName finds a built-in tariff by its name, case-insensitively, matching
// on a prefix the same way devices are selected by serial prefix.
func ByName(name string) (Tariff, error) {
	for _, t := range All {
		if strings.HasPrefix(strings.ToLower(t.Name), strings.ToLower(name)) {
			return t, nil
		}
	}
	return Tariff{}, fmt.Errorf("unknown tariff: %s", name)
}
