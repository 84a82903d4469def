// Package cloud talks to the inverter vendor's cloud API. It resolves
// site/logger/device identity, fetches telemetry and reports, and persists
// battery charge settings.
package cloud

import (
	"context"

	"github.com/gridpilot/gridpilot/pkg/energy"
	"github.com/gridpilot/gridpilot/pkg/types"
)

// Accessor is the telemetry interface the scheduler and exporters consume.
// All calls block on network I/O and return before the next call starts;
// failures are terminal for the call, never retried here.
type Accessor interface {
	// ResolveDevice returns the inverter matching the serial prefix. With an
	// empty prefix a sole device is selected automatically. Identity resolved
	// once is reused for the life of the accessor; pass a different prefix to
	// switch devices.
	ResolveDevice(ctx context.Context, serialPrefix string) (types.Device, error)

	// GetBatteryState returns the battery state of charge, residual energy
	// and the minimum-SoC-on-grid setting.
	GetBatteryState(ctx context.Context) (types.BatteryState, error)

	// GetChargePlan returns the two configured charging windows.
	GetChargePlan(ctx context.Context) (types.ChargePlan, error)

	// SetChargePlan writes the two charging windows to the device. The write
	// is idempotent: resubmitting the same plan produces the same device
	// configuration.
	SetChargePlan(ctx context.Context, plan types.ChargePlan) error

	// GetRawSeries fetches raw power samples for the variables over the span
	// ending at date ("YYYY-MM-DD", empty for the default anchor) and applies
	// the requested summary. A week span returns one per-day series per
	// variable, ending no later than yesterday.
	GetRawSeries(ctx context.Context, vars []string, span types.Span, date string, opts energy.Options) ([]types.Series, error)

	// GetReport fetches aggregated report data, pruned to completed
	// sub-intervals.
	GetReport(ctx context.Context, vars []string, period types.Span, date string) ([]types.ReportSeries, error)
}

// ReportVars are the default report variables.
var ReportVars = []string{
	"generation", "feedin", "loads", "gridConsumption",
	"chargeEnergyToTal", "dischargeEnergyToTal",
}

// WorkModes are the operating modes a device accepts.
var WorkModes = []string{"SelfUse", "Feedin", "Backup", "PowerStation", "PeakShaving"}
