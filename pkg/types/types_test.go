package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatteryEnergy(t *testing.T) {
	t.Run("derived figures", func(t *testing.T) {
		b := BatteryState{SoCPercent: 50, ResidualWh: 5000, MinGridSoCPercent: 20}
		e := b.Energy()
		assert.Equal(t, 5.0, e.ResidualKWh)
		assert.Equal(t, 10.0, e.CapacityKWh)
		assert.Equal(t, 2.0, e.ReserveKWh)
		assert.Equal(t, 3.0, e.AvailableKWh)
	})

	t.Run("zero soc falls back to residual", func(t *testing.T) {
		b := BatteryState{SoCPercent: 0, ResidualWh: 1200, MinGridSoCPercent: 10}
		e := b.Energy()
		assert.Equal(t, 1.2, e.CapacityKWh)
		assert.Equal(t, 0.1, e.ReserveKWh)
		assert.Equal(t, 1.1, e.AvailableKWh)
	})
}

func TestChargePeriod(t *testing.T) {
	t.Run("disabled when start equals end", func(t *testing.T) {
		p := ChargePeriod{Start: 3, End: 3, GridCharge: true}
		assert.True(t, p.Disabled())
		norm := p.Normalize()
		assert.Equal(t, ChargePeriod{}, norm, "normalize should clear the grid flag")
	})

	t.Run("string", func(t *testing.T) {
		p := ChargePeriod{Start: 2, End: 4.5, GridCharge: true}
		assert.Equal(t, "02:00 - 04:30 Charge from grid", p.String())
		assert.Equal(t, "02:00 - 04:30", ChargePeriod{Start: 2, End: 4.5}.String())
	})
}
