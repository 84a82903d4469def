package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/gridpilot/gridpilot/pkg/cloud"
	"github.com/gridpilot/gridpilot/pkg/energy"
	"github.com/gridpilot/gridpilot/pkg/tariff"
	"github.com/gridpilot/gridpilot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func lateEvening() time.Time {
	return time.Date(2023, 1, 10, 23, 0, 0, 0, time.UTC)
}

// testMock returns a mock with a half-full 10kWh battery (2kWh reserved,
// 3kWh available), 7 days of 4kWh/day PV and 10kWh/day load history.
func testMock() *cloud.Mock {
	m := &cloud.Mock{
		DeviceVal: types.Device{SerialNumber: "ABC123", RatedPowerKW: 5.0},
		BatteryVal: types.BatteryState{
			SoCPercent: 50, ResidualWh: 5000, MinGridSoCPercent: 20,
		},
	}
	m.RawFn = func(vars []string, span types.Span, date string, opts energy.Options) ([]types.Series, error) {
		var out []types.Series
		for day := 0; day < 7; day++ {
			out = append(out, types.Series{
				Variable: "pvPower", Unit: "kWh",
				Energy: &types.EnergySummary{TotalKWh: 4.0},
			})
		}
		return out, nil
	}
	m.ReportFn = func(vars []string, period types.Span, date string) ([]types.ReportSeries, error) {
		return []types.ReportSeries{{
			Variable: "loads",
			Values:   []float64{10, 10, 10, 10, 10, 10, 10},
		}}, nil
	}
	return m
}

func TestRunBeforeRunAfter(t *testing.T) {
	m := testMock()
	m.FailWith = assert.AnError // any network call would fail the test
	s := New(m, &tariff.OctopusFlux, nil)

	res, err := s.Run(context.Background(), Config{
		Now: func() time.Time { return time.Date(2023, 1, 10, 14, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestRunChargeNeeded(t *testing.T) {
	m := testMock()
	s := New(m, &tariff.OctopusFlux, nil)

	res, err := s.Run(context.Background(), Config{Now: lateEvening})
	require.NoError(t, err)

	assert.False(t, res.Skipped)
	assert.Equal(t, 10.0, res.Battery.CapacityKWh)
	assert.Equal(t, 3.0, res.Battery.AvailableKWh)
	assert.Equal(t, SourceHistory, res.Source)
	assert.Equal(t, 4.0, res.ExpectedKWh)
	assert.Equal(t, 10.0, res.ConsumptionKWh)
	// 10 - 3 - 4/1.25 = 3.8
	assert.Equal(t, 3.8, res.ChargeKWh)
	assert.Equal(t, 5.0, res.ChargePowerKW)
	// 3.8 / 5 / 0.92 = 0.826 hours, rounds to 50 minutes
	assert.InDelta(t, 50.0/60, res.ChargeHours, 0.0001)

	// Flux charges from 02:00, no force
	assert.Equal(t, 2.0, res.Plan.Periods[0].Start)
	assert.InDelta(t, 2+50.0/60, res.Plan.Periods[0].End, 0.0001)
	assert.True(t, res.Plan.Periods[0].GridCharge)
	assert.True(t, res.Plan.Periods[1].Disabled())

	// dry run: nothing committed
	assert.False(t, res.Committed)
	assert.Empty(t, m.SetPlans)
}

func TestRunChargeFloorsAtZero(t *testing.T) {
	m := testMock()
	s := New(m, &tariff.OctopusFlux, nil)

	res, err := s.Run(context.Background(), Config{
		Now:         lateEvening,
		ForecastKWh: ptr(20.0),
	})
	require.NoError(t, err)

	assert.Equal(t, SourceManual, res.Source)
	assert.Equal(t, 0.0, res.ChargeKWh)
	// 20/1.25 + 3 - 10 = 9
	assert.Equal(t, 9.0, res.SurplusKWh)
	assert.Equal(t, 0.0, res.ChargeHours)
	assert.True(t, res.Plan.Periods[0].Disabled())
}

func TestRunMinimumChargeWindow(t *testing.T) {
	m := testMock()
	s := New(m, &tariff.OctopusFlux, nil)

	// tiny charge: 10 - 3 - 8.6/1.25 = 0.1 kWh -> 1.3 min, clamped to 15
	res, err := s.Run(context.Background(), Config{
		Now:         lateEvening,
		ForecastKWh: ptr(8.6),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.1, res.ChargeKWh)
	assert.Equal(t, 0.25, res.ChargeHours)
	assert.Equal(t, 2.25, res.Plan.Periods[0].End)
}

func TestRunClipsAtEndBy(t *testing.T) {
	m := testMock()
	m.BatteryVal = types.BatteryState{SoCPercent: 10, ResidualWh: 2000, MinGridSoCPercent: 20}
	s := New(m, &tariff.OctopusFlux, nil)

	// capacity 20, available -2, charge = 10 + 2 - 3.2 = 8.8 kWh
	// at 2kW that is 4.78h, past the 05:00 end
	res, err := s.Run(context.Background(), Config{
		Now:           lateEvening,
		ChargePowerKW: 2.0,
	})
	require.NoError(t, err)
	assert.Equal(t, 8.8, res.ChargeKWh)
	assert.True(t, res.Clipped)
	assert.Equal(t, 5.0, res.Plan.Periods[0].End)
}

func TestRunOverflowAdvisory(t *testing.T) {
	m := testMock()
	m.BatteryVal = types.BatteryState{SoCPercent: 80, ResidualWh: 4000, MinGridSoCPercent: 20}
	s := New(m, &tariff.OctopusFlux, nil)

	// capacity 5, residual 4, available 3; charge = 10 - 3 - 0 = 7 kWh but
	// only 1 kWh fits
	res, err := s.Run(context.Background(), Config{
		Now:         lateEvening,
		ForecastKWh: ptr(0.0),
	})
	require.NoError(t, err)
	assert.Equal(t, 7.0, res.ChargeKWh)
	assert.Equal(t, 6.0, res.OverflowKWh)
	// advisory only, the plan is still produced
	assert.False(t, res.Plan.Periods[0].Disabled())
}

func TestRunForceCharge(t *testing.T) {
	m := testMock()
	s := New(m, &tariff.OctopusGo, nil)

	res, err := s.Run(context.Background(), Config{
		Now:         lateEvening,
		ForceCharge: ptr(true),
		Update:      true,
	})
	require.NoError(t, err)

	// Go charges from 00:30; 3.8kWh at 5kW/0.92 is 50 min
	assert.Equal(t, 0.5, res.Plan.Periods[0].Start)
	assert.InDelta(t, 0.5+50.0/60, res.Plan.Periods[0].End, 0.0001)
	// window 2 holds the battery until 04:30 without grid charge
	assert.InDelta(t, 1.35, res.Plan.Periods[1].Start, 0.0001)
	assert.Equal(t, 4.5, res.Plan.Periods[1].End)
	assert.False(t, res.Plan.Periods[1].GridCharge)

	assert.True(t, res.Committed)
	require.Len(t, m.SetPlans, 1)
	assert.Equal(t, res.Plan, m.SetPlans[0])
}

func TestRunAnnualConsumption(t *testing.T) {
	m := testMock()
	m.ReportFn = nil // the report must not be needed
	s := New(m, &tariff.OctopusFlux, nil)

	res, err := s.Run(context.Background(), Config{
		Now:                  lateEvening, // January
		AnnualConsumptionKWh: ptr(3650.0),
	})
	require.NoError(t, err)
	// 3650/365 * 1.1 = 11.0
	assert.Equal(t, 11.0, res.ConsumptionKWh)
}

func TestRunWithoutTariffUsesDefaults(t *testing.T) {
	m := testMock()
	s := New(m, nil, nil)

	res, err := s.Run(context.Background(), Config{Now: lateEvening})
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.Plan.Periods[0].Start)
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  Config
	}{
		{"negative contingency", Config{Contingency: -1}},
		{"efficiency above 1", Config{Efficiency: 1.5}},
		{"negative charge power", Config{ChargePowerKW: -3.7}},
		{"start past midnight", Config{StartAt: ptr(25.0)}},
		{"run-after not an hour", Config{RunAfter: ptr(24)}},
		{"zero annual consumption", Config{AnnualConsumptionKWh: ptr(0.0)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.cfg.Validate())
		})
	}
	assert.NoError(t, (&Config{}).Validate())
}
