package cloud

import (
	"context"
	"errors"

	"github.com/gridpilot/gridpilot/pkg/energy"
	"github.com/gridpilot/gridpilot/pkg/types"
)

// Mock is an in-memory Accessor. This is primarily used for testing and for
// dry runs without cloud credentials.
type Mock struct {
	DeviceVal  types.Device
	BatteryVal types.BatteryState
	PlanVal    types.ChargePlan

	// RawFn and ReportFn override the telemetry calls; unset they fail.
	RawFn    func(vars []string, span types.Span, date string, opts energy.Options) ([]types.Series, error)
	ReportFn func(vars []string, period types.Span, date string) ([]types.ReportSeries, error)

	// SetPlans records every committed plan, newest last.
	SetPlans []types.ChargePlan

	// FailWith makes every call return this error.
	FailWith error
}

var _ Accessor = (*Mock)(nil)

func (m *Mock) ResolveDevice(ctx context.Context, serialPrefix string) (types.Device, error) {
	if m.FailWith != nil {
		return types.Device{}, m.FailWith
	}
	return m.DeviceVal, nil
}

func (m *Mock) GetBatteryState(ctx context.Context) (types.BatteryState, error) {
	if m.FailWith != nil {
		return types.BatteryState{}, m.FailWith
	}
	return m.BatteryVal, nil
}

func (m *Mock) GetChargePlan(ctx context.Context) (types.ChargePlan, error) {
	if m.FailWith != nil {
		return types.ChargePlan{}, m.FailWith
	}
	return m.PlanVal, nil
}

func (m *Mock) SetChargePlan(ctx context.Context, plan types.ChargePlan) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	m.PlanVal = plan.Normalize()
	m.SetPlans = append(m.SetPlans, m.PlanVal)
	return nil
}

func (m *Mock) GetRawSeries(ctx context.Context, vars []string, span types.Span, date string, opts energy.Options) ([]types.Series, error) {
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	if m.RawFn == nil {
		return nil, errors.New("mock: no raw series configured")
	}
	return m.RawFn(vars, span, date, opts)
}

func (m *Mock) GetReport(ctx context.Context, vars []string, period types.Span, date string) ([]types.ReportSeries, error) {
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	if m.ReportFn == nil {
		return nil, errors.New("mock: no report configured")
	}
	return m.ReportFn(vars, period, date)
}
