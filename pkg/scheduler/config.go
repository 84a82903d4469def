package scheduler

import (
	"fmt"
	"strconv"

	"github.com/gridpilot/gridpilot/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// Configured sets up a run Config based on flags. String flags left empty
// mean "use the default" so the tariff and device can fill them in.
func Configured() *Config {
	cfg := &Config{}

	forecastKWh := lflag.String("forecast", "", "Expected generation for tomorrow in kWh (overrides the solar forecast)")
	annual := lflag.String("annual-consumption", "", "Annual consumption in kWh, estimated by month instead of load history")
	contingency := lflag.String("contingency", "1.25", "Divider applied to expected generation for headroom")
	startAt := lflag.String("start-at", "", "Charge window start as HH:MM (default from tariff)")
	endBy := lflag.String("end-by", "", "Charge window end as HH:MM (default from tariff)")
	force := lflag.String("force-charge", "", "Hold the battery for the whole cheap window: true/false (default from tariff)")
	power := lflag.String("charge-power", "", "Charge power in kW (default device rating)")
	efficiency := lflag.String("efficiency", "0.92", "AC to battery conversion ratio")
	runAfter := lflag.String("run-after", "22", "Only run at or after this hour of day, negative for any time")
	update := lflag.Bool("update", false, "Commit the computed charge plan to the inverter")

	lflag.Do(func() {
		cfg.ForecastKWh = optFloat("forecast", *forecastKWh)
		cfg.AnnualConsumptionKWh = optFloat("annual-consumption", *annual)
		cfg.Contingency = mustFloat("contingency", *contingency)
		cfg.StartAt = optHours("start-at", *startAt)
		cfg.EndBy = optHours("end-by", *endBy)
		if *force != "" {
			b, err := strconv.ParseBool(*force)
			if err != nil {
				panic(fmt.Sprintf("invalid force-charge %q", *force))
			}
			cfg.ForceCharge = &b
		}
		if p := optFloat("charge-power", *power); p != nil {
			cfg.ChargePowerKW = *p
		}
		cfg.Efficiency = mustFloat("efficiency", *efficiency)
		h, err := strconv.Atoi(*runAfter)
		if err != nil {
			panic(fmt.Sprintf("invalid run-after %q", *runAfter))
		}
		cfg.RunAfter = &h
		cfg.Update = *update
		if err := cfg.Validate(); err != nil {
			panic(fmt.Sprintf("invalid options: %v", err))
		}
	})

	return cfg
}

func optFloat(name, s string) *float64 {
	if s == "" {
		return nil
	}
	v := mustFloat(name, s)
	return &v
}

func mustFloat(name, s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		panic(fmt.Sprintf("invalid %s %q", name, s))
	}
	return v
}

func optHours(name, s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := types.ParseHours(s)
	if err != nil {
		panic(fmt.Sprintf("invalid %s %q", name, s))
	}
	return &v
}
