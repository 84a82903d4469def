// Package scheduler decides how much grid charge the battery needs
// overnight and programs the inverter's charging windows accordingly.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gridpilot/gridpilot/pkg/cloud"
	"github.com/gridpilot/gridpilot/pkg/energy"
	"github.com/gridpilot/gridpilot/pkg/forecast"
	"github.com/gridpilot/gridpilot/pkg/log"
	"github.com/gridpilot/gridpilot/pkg/tariff"
	"github.com/gridpilot/gridpilot/pkg/types"
)

// seasonality scales annual consumption into a per-month daily estimate.
// The twelve factors sum to 12.0 so a flat year stays flat.
var seasonality = [12]float64{1.1, 1.1, 1.0, 1.0, 0.9, 0.9, 0.9, 0.9, 1.0, 1.0, 1.1, 1.1}

const (
	defaultContingency = 1.25
	defaultEfficiency  = 0.92
	defaultRunAfter    = 22
	// fallbackChargePowerKW is used when the device doesn't report a rating.
	fallbackChargePowerKW = 3.7
	// minChargeHours is the shortest worthwhile charging window.
	minChargeHours = 0.25
	historyDays    = 7
)

// Config holds one run's options. Pointer fields distinguish "not set" from
// an explicit zero; nil falls back to the documented default.
type Config struct {
	// ForecastKWh overrides tomorrow's expected generation.
	ForecastKWh *float64
	// AnnualConsumptionKWh estimates consumption via the seasonality table
	// instead of the trailing 7 day load history.
	AnnualConsumptionKWh *float64
	// Contingency divides expected generation to keep headroom. Default 1.25.
	Contingency float64
	// StartAt and EndBy bound the first charging window in decimal hours.
	// Defaults come from the tariff's charge window.
	StartAt *float64
	EndBy   *float64
	// ForceCharge keeps the battery held for the whole cheap window even
	// after charging finishes. Default comes from the tariff.
	ForceCharge *bool
	// ChargePowerKW defaults to the device rating, then 3.7.
	ChargePowerKW float64
	// Efficiency is the AC to battery conversion ratio. Default 0.92.
	Efficiency float64
	// RunAfter gates the run until this hour of day. Default 22; set a
	// negative value to run at any time.
	RunAfter *int
	// Update commits the computed plan to the inverter.
	Update bool

	// Now overrides the clock.
	Now func() time.Time
}

// Validate rejects malformed options before any network call is made.
func (c *Config) Validate() error {
	if c.Contingency < 0 {
		return errors.New("contingency must not be negative")
	}
	if c.Efficiency < 0 || c.Efficiency > 1 {
		return errors.New("efficiency must be between 0 and 1")
	}
	if c.ChargePowerKW < 0 {
		return errors.New("charge power must not be negative")
	}
	for _, p := range []*float64{c.StartAt, c.EndBy} {
		if p != nil && (*p < 0 || *p > 24) {
			return fmt.Errorf("%w: hours must be between 0 and 24", types.ErrInvalidTime)
		}
	}
	if c.RunAfter != nil && *c.RunAfter > 23 {
		return errors.New("run-after must be an hour of day")
	}
	if c.AnnualConsumptionKWh != nil && *c.AnnualConsumptionKWh <= 0 {
		return errors.New("annual consumption must be positive")
	}
	return nil
}

// GenerationSource identifies where the expected generation figure came from.
type GenerationSource string

const (
	SourceManual   GenerationSource = "manual"
	SourceForecast GenerationSource = "forecast"
	SourceHistory  GenerationSource = "history"
)

// Result reports what a run decided. Nothing is changed on the inverter
// unless Committed is true.
type Result struct {
	// Skipped is true when the run happened before the RunAfter hour.
	Skipped bool

	Battery           types.BatteryEnergy
	SoCPercent        float64
	MinGridSoCPercent float64

	ExpectedKWh    float64
	Source         GenerationSource
	ConsumptionKWh float64

	// ChargeKWh is the energy to add, floored at zero. SurplusKWh is the
	// excess generation when no charge is needed.
	ChargeKWh  float64
	SurplusKWh float64
	// OverflowKWh warns that the needed charge exceeds remaining battery
	// capacity. Advisory only.
	OverflowKWh float64

	ChargePowerKW float64
	ChargeHours   float64
	// Clipped is true when the first window was cut short at EndBy.
	Clipped bool

	Plan      types.ChargePlan
	Committed bool
}

// Scheduler wires the decision logic to a device accessor, a tariff and an
// optional forecast source.
type Scheduler struct {
	accessor cloud.Accessor
	tariff   *tariff.Tariff
	solcast  *forecast.Solcast
}

// New returns a Scheduler. solcast may be nil, in which case expected
// generation falls back to the trailing PV history.
func New(accessor cloud.Accessor, trf *tariff.Tariff, solcast *forecast.Solcast) *Scheduler {
	return &Scheduler{accessor: accessor, tariff: trf, solcast: solcast}
}

// Run executes one scheduling pass. The returned Result is fully populated
// even on a dry run; the plan is only committed when cfg.Update is set.
func (s *Scheduler) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	now := time.Now()
	if cfg.Now != nil {
		now = cfg.Now()
	}

	runAfter := defaultRunAfter
	if cfg.RunAfter != nil {
		runAfter = *cfg.RunAfter
	}
	if now.Hour() < runAfter {
		log.Ctx(ctx).Info("not time to run yet",
			"time", now.Format("15:04"), "runAfter", runAfter)
		return &Result{Skipped: true}, nil
	}

	startAt, endBy, force := s.windowDefaults(cfg)
	res := &Result{}

	battery, err := s.accessor.GetBatteryState(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading battery state: %w", err)
	}
	res.Battery = battery.Energy()
	res.SoCPercent = battery.SoCPercent
	res.MinGridSoCPercent = battery.MinGridSoCPercent
	log.Ctx(ctx).Info("battery",
		"capacityKWh", res.Battery.CapacityKWh,
		"soc", battery.SoCPercent,
		"minGridSoc", battery.MinGridSoCPercent,
		"residualKWh", res.Battery.ResidualKWh,
		"availableKWh", res.Battery.AvailableKWh)

	if err := s.expectedGeneration(ctx, cfg, res); err != nil {
		return nil, err
	}
	if err := s.expectedConsumption(ctx, cfg, now, res); err != nil {
		return nil, err
	}

	contingency := cfg.Contingency
	if contingency == 0 {
		contingency = defaultContingency
	}
	charge := types.Round1(res.ConsumptionKWh - res.Battery.AvailableKWh -
		res.ExpectedKWh/contingency)
	if charge < 0 {
		res.SurplusKWh = -charge
		charge = 0
		log.Ctx(ctx).Info("generation surplus, no charge needed",
			"surplusKWh", res.SurplusKWh)
	} else if res.Battery.ResidualKWh+charge > res.Battery.CapacityKWh {
		res.OverflowKWh = types.Round1(charge - res.Battery.CapacityKWh +
			res.Battery.ResidualKWh)
		log.Ctx(ctx).Warn("charge needed exceeds battery capacity",
			"chargeKWh", charge, "overflowKWh", res.OverflowKWh)
	}
	res.ChargeKWh = charge

	res.ChargePowerKW = cfg.ChargePowerKW
	if res.ChargePowerKW <= 0 {
		device, err := s.accessor.ResolveDevice(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("resolving device: %w", err)
		}
		res.ChargePowerKW = device.RatedPowerKW
		if res.ChargePowerKW <= 0 {
			res.ChargePowerKW = fallbackChargePowerKW
		}
	}

	efficiency := cfg.Efficiency
	if efficiency == 0 {
		efficiency = defaultEfficiency
	}
	hours := types.RoundHours(charge / res.ChargePowerKW / efficiency)
	if hours > 0 && hours < minChargeHours {
		hours = minChargeHours
	}
	res.ChargeHours = hours
	if hours > 0 {
		log.Ctx(ctx).Info("charge time needed",
			"hours", hours, "chargePowerKW", res.ChargePowerKW)
	} else {
		log.Ctx(ctx).Info("no charging needed")
	}

	res.Plan = s.buildPlan(ctx, res, startAt, endBy, force)

	if cfg.Update {
		if err := s.accessor.SetChargePlan(ctx, res.Plan); err != nil {
			return nil, fmt.Errorf("setting charge plan: %w", err)
		}
		res.Committed = true
	} else {
		log.Ctx(ctx).Info("dry run, no changes made to inverter settings")
	}
	return res, nil
}

// windowDefaults resolves the charge window bounds and the force flag from
// the options, falling back to the tariff's charge window.
func (s *Scheduler) windowDefaults(cfg Config) (startAt, endBy float64, force bool) {
	startAt, endBy = 2.0, 5.0
	if s.tariff != nil {
		startAt = s.tariff.Charge.Start
		endBy = s.tariff.Charge.End
		force = s.tariff.Charge.Force
	}
	if cfg.StartAt != nil {
		startAt = *cfg.StartAt
	}
	if cfg.EndBy != nil {
		endBy = *cfg.EndBy
	}
	if cfg.ForceCharge != nil {
		force = *cfg.ForceCharge
	}
	return startAt, endBy, force
}

// expectedGeneration picks tomorrow's generation estimate: an explicit
// override, then the solar forecast, then the trailing 7 day history. The
// history is always fetched since a forecast miss falls back to it.
func (s *Scheduler) expectedGeneration(ctx context.Context, cfg Config, res *Result) error {
	if cfg.ForecastKWh != nil {
		res.ExpectedKWh = types.Round1(*cfg.ForecastKWh)
		res.Source = SourceManual
		log.Ctx(ctx).Info("manual forecast for tomorrow", "kwh", res.ExpectedKWh)
		return nil
	}

	forecastKWh := -1.0
	if s.solcast != nil {
		yield, err := s.solcast.Fetch(ctx, historyDays, forecast.ReloadIfStale)
		if err != nil {
			log.Ctx(ctx).Warn("forecast unavailable, falling back to history",
				"error", err)
		} else if v, ok := yield.ForecastTomorrow(); ok {
			forecastKWh = v
			log.Ctx(ctx).Info("solar forecast",
				"next", yield.ForecastNext(5), "tomorrowKWh", v)
		}
	}

	efficiency := cfg.Efficiency
	if efficiency == 0 {
		efficiency = defaultEfficiency
	}
	history, err := s.accessor.GetRawSeries(ctx,
		[]string{"pvPower", energy.CT2Var}, types.SpanWeek, "",
		energy.Options{Level: energy.LevelStatsOnly})
	if err != nil {
		return fmt.Errorf("reading generation history: %w", err)
	}
	var sumPV, sumCT2 float64
	for _, h := range history {
		if h.Energy == nil {
			continue
		}
		switch h.Variable {
		case "pvPower":
			sumPV += types.Round1(h.Energy.TotalKWh)
		case energy.CT2Var:
			sumCT2 += types.Round1(h.Energy.TotalKWh / efficiency)
		}
	}
	generation := types.Round1(sumPV/historyDays + sumCT2/historyDays)
	log.Ctx(ctx).Info("generation history",
		"days", historyDays, "averageKWh", generation)

	if forecastKWh >= 0 {
		res.ExpectedKWh = forecastKWh
		res.Source = SourceForecast
	} else {
		res.ExpectedKWh = generation
		res.Source = SourceHistory
	}
	log.Ctx(ctx).Info("forecast generation tomorrow",
		"kwh", res.ExpectedKWh, "source", res.Source)
	return nil
}

// expectedConsumption estimates tomorrow's load from the annual figure and
// the seasonality table, or from the trailing 7 day load report.
func (s *Scheduler) expectedConsumption(ctx context.Context, cfg Config, now time.Time, res *Result) error {
	if cfg.AnnualConsumptionKWh != nil {
		res.ConsumptionKWh = types.Round1(*cfg.AnnualConsumptionKWh / 365 *
			seasonality[now.Month()-1])
		log.Ctx(ctx).Info("estimated consumption", "kwh", res.ConsumptionKWh)
		return nil
	}
	reports, err := s.accessor.GetReport(ctx, []string{"loads"}, types.SpanWeek, "")
	if err != nil {
		return fmt.Errorf("reading consumption history: %w", err)
	}
	if len(reports) == 0 {
		return errors.New("no load report data")
	}
	var sum float64
	for _, v := range reports[0].Values {
		sum += types.Round1(v)
	}
	res.ConsumptionKWh = types.Round1(sum / historyDays)
	log.Ctx(ctx).Info("consumption history",
		"days", historyDays, "averageKWh", res.ConsumptionKWh)
	return nil
}

// buildPlan lays the charge time into window 1 starting at startAt and,
// when forcing, holds the battery for the rest of the cheap window.
func (s *Scheduler) buildPlan(ctx context.Context, res *Result, startAt, endBy float64, force bool) types.ChargePlan {
	start1 := startAt
	end1 := types.RoundHours(start1 + res.ChargeHours)
	if end1 > endBy {
		log.Ctx(ctx).Warn("charge end time exceeds end by",
			"end", types.FormatHours(end1), "endBy", types.FormatHours(endBy))
		end1 = endBy
		res.Clipped = true
	}
	var start2, end2 float64
	if force {
		start2 = types.RoundHours(end1 + 1.0/60)
		if start2 > endBy {
			start2 = endBy
		}
		end2 = endBy
	}
	plan := types.ChargePlan{Periods: [2]types.ChargePeriod{
		{Start: start1, End: end1, GridCharge: true},
		{Start: start2, End: end2},
	}}
	return plan.Normalize()
}
