// Package energy converts raw power samples into energy totals and summary
// statistics, and reshapes periodic report data.
package energy

import (
	"github.com/gridpilot/gridpilot/pkg/tariff"
	"github.com/gridpilot/gridpilot/pkg/types"
)

// Level selects how much summary data to derive from a raw series.
type Level int

const (
	// LevelRaw returns the samples untouched.
	LevelRaw Level = iota
	// LevelStats adds energy totals and statistics, keeping the samples.
	LevelStats
	// LevelStatsOnly drops the samples, renames power variables to their
	// energy names and switches the unit to kWh.
	LevelStatsOnly
	// LevelHourlyState additionally emits a cumulative-energy checkpoint per
	// hour boundary crossed.
	LevelHourlyState
)

// SamplesPerHour is the raw power cadence: 5 minute samples, 12 per hour.
const SamplesPerHour = 12

// PowerVars are the inverter power channels. GenerationVar must be first.
var PowerVars = []string{
	"generationPower", "feedinPower", "loadsPower", "gridConsumptionPower",
	"batChargePower", "batDischargePower", "pvPower", "meterPower2",
}

// EnergyNames are the variable names after integrating power to energy,
// in the same order as PowerVars.
var EnergyNames = []string{
	"output_daily", "feedin_daily", "load_daily", "grid_daily",
	"bat_charge_daily", "bat_discharge_daily", "pv_energy_daily", "ct2_daily",
}

const (
	// GenerationVar is the primary generation power channel.
	GenerationVar = "generationPower"
	// CT2Var is the secondary meter channel. Correct polarity is positive
	// for generation and negative for load.
	CT2Var = "meterPower2"
	// InputEnergyName is the synthetic series capturing only backfeed into
	// the charging path, derived from GenerationVar.
	InputEnergyName = "input_daily"
)

// energyName maps a power variable to its integrated-energy name.
func energyName(variable string) string {
	for i, v := range PowerVars {
		if v == variable {
			return EnergyNames[i]
		}
	}
	return variable
}

// Options configures Summarize.
type Options struct {
	Level Level
	// Tariff buckets energy into off-peak and peak totals. Nil leaves both
	// buckets at zero.
	Tariff *tariff.Tariff
	// FlipCT2 inverts the secondary meter channel before aggregation, for
	// installations with the sensor wired reversed.
	FlipCT2 bool
}

// Summarize derives energy totals and statistics for each series per the
// options. A synthetic input-energy series is appended whenever the
// generation channel is present. The input slice is modified in place.
func Summarize(series []types.Series, opts Options) []types.Series {
	if opts.Level == LevelRaw {
		return series
	}

	for i := range series {
		if series[i].Variable == GenerationVar {
			series = append(series, deriveInput(series[i]))
			break
		}
	}
	if opts.FlipCT2 {
		for i := range series {
			if series[i].Variable == CT2Var {
				for j := range series[i].Data {
					series[i].Data[j].Value = -series[i].Data[j].Value
				}
			}
		}
	}

	for i := range series {
		summarizeOne(&series[i], opts)
	}
	return series
}

// deriveInput copies a generation series keeping only backfeed: positive
// values are zeroed, negative values negated.
func deriveInput(gen types.Series) types.Series {
	in := gen
	in.Name = InputEnergyName
	in.Data = make([]types.Sample, len(gen.Data))
	for i, s := range gen.Data {
		if s.Value < 0 {
			s.Value = -s.Value
		} else {
			s.Value = 0
		}
		in.Data[i] = s
	}
	return in
}

func summarizeOne(s *types.Series, opts Options) {
	isPower := s.Unit == "kW"

	stats := &types.SeriesStats{}
	var kwh, kwhOff, kwhPeak float64
	var state []types.StatePoint
	hour := 0
	if opts.Level == LevelHourlyState && isPower {
		state = []types.StatePoint{{}}
	}

	for _, sample := range s.Data {
		v := sample.Value
		h := float64(sample.Time.Hour()) + float64(sample.Time.Minute())/60 +
			float64(sample.Time.Second())/3600
		hhmm := sample.Time.Format("15:04")

		stats.Sum += v
		stats.Count++
		if stats.Max == nil || v > stats.Max.Value {
			stats.Max = &types.Extreme{Value: v, Time: hhmm}
		}
		if stats.Min == nil || v < stats.Min.Value {
			stats.Min = &types.Extreme{Value: v, Time: hhmm}
		}

		// negative power is reverse flow (export); it is excluded from the
		// energy integration but still counts toward the statistics above
		if isPower && v >= 0 {
			e := v / SamplesPerHour
			kwh += e
			if opts.Tariff != nil {
				if opts.Tariff.OffPeak(h) {
					kwhOff += e
				} else if opts.Tariff.PeakTime(h) {
					kwhPeak += e
				}
			}
		}
		if state != nil {
			if int(h) > hour {
				state = append(state, types.StatePoint{})
				hour++
			}
			state[hour] = types.StatePoint{Time: hhmm, KWh: types.Round3(kwh)}
		}
	}

	if stats.Count > 0 {
		avg := types.Round3(stats.Sum / float64(stats.Count))
		stats.Average = &avg
		stats.Max.Value = types.Round3(stats.Max.Value)
		stats.Min.Value = types.Round3(stats.Min.Value)
	}
	stats.Sum = types.Round3(stats.Sum)
	s.Stats = stats
	s.State = state

	if isPower {
		s.Energy = &types.EnergySummary{
			TotalKWh:   types.Round3(kwh),
			OffPeakKWh: types.Round3(kwhOff),
			PeakKWh:    types.Round3(kwhPeak),
		}
	}

	if opts.Level >= LevelStatsOnly {
		if isPower {
			if s.Name != InputEnergyName {
				s.Name = energyName(s.Variable)
			}
			s.Unit = "kWh"
		}
		s.Data = nil
	}
}
