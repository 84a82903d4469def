package energy

import (
	"testing"
	"time"

	"github.com/gridpilot/gridpilot/pkg/tariff"
	"github.com/gridpilot/gridpilot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplesAt(day time.Time, startHour float64, values ...float64) []types.Sample {
	out := make([]types.Sample, len(values))
	for i, v := range values {
		offset := time.Duration(startHour*float64(time.Hour)) + time.Duration(i)*5*time.Minute
		out[i] = types.Sample{Time: day.Add(offset), Value: v}
	}
	return out
}

func TestSummarizeIntegration(t *testing.T) {
	day := time.Date(2023, 8, 20, 0, 0, 0, 0, time.UTC)

	t.Run("kwh is sum over 12", func(t *testing.T) {
		s := []types.Series{{
			Variable: "pvPower",
			Unit:     "kW",
			Data:     samplesAt(day, 10, 1.2, 2.4, 3.6, 0, 1.2),
		}}
		out := Summarize(s, Options{Level: LevelStats})
		require.NotNil(t, out[0].Energy)
		assert.InDelta(t, (1.2+2.4+3.6+1.2)/12, out[0].Energy.TotalKWh, 1e-9)
		assert.Equal(t, 5, out[0].Stats.Count)
	})

	t.Run("negative samples excluded from energy but not stats", func(t *testing.T) {
		s := []types.Series{{
			Variable: "feedinPower",
			Unit:     "kW",
			Data:     samplesAt(day, 12, 2.4, -1.2, 2.4),
		}}
		out := Summarize(s, Options{Level: LevelStats})
		assert.InDelta(t, 4.8/12, out[0].Energy.TotalKWh, 1e-9)
		require.NotNil(t, out[0].Stats.Min)
		assert.Equal(t, -1.2, out[0].Stats.Min.Value)
		assert.InDelta(t, 3.6, out[0].Stats.Sum, 1e-9)
	})

	t.Run("empty series has nil stats values", func(t *testing.T) {
		s := []types.Series{{Variable: "loadsPower", Unit: "kW"}}
		out := Summarize(s, Options{Level: LevelStats})
		assert.Nil(t, out[0].Stats.Average)
		assert.Nil(t, out[0].Stats.Max)
		assert.Nil(t, out[0].Stats.Min)
		assert.Zero(t, out[0].Energy.TotalKWh)
	})

	t.Run("extremes keep first occurrence", func(t *testing.T) {
		s := []types.Series{{
			Variable: "pvPower",
			Unit:     "kW",
			Data:     samplesAt(day, 9, 1.0, 3.0, 3.0, 0.5),
		}}
		out := Summarize(s, Options{Level: LevelStats})
		assert.Equal(t, "09:05", out[0].Stats.Max.Time)
		assert.Equal(t, "09:15", out[0].Stats.Min.Time)
	})
}

func TestSummarizeTariffBuckets(t *testing.T) {
	day := time.Date(2023, 8, 20, 0, 0, 0, 0, time.UTC)
	tt := tariff.OctopusFlux

	// 12 samples in the off-peak charge window, 12 in the peak window,
	// 12 outside both
	data := append(samplesAt(day, 3, repeat(1.2, 12)...), samplesAt(day, 17, repeat(1.2, 12)...)...)
	data = append(data, samplesAt(day, 10, repeat(1.2, 12)...)...)

	s := []types.Series{{Variable: "loadsPower", Unit: "kW", Data: data}}
	out := Summarize(s, Options{Level: LevelStats, Tariff: &tt})

	assert.InDelta(t, 3.6, out[0].Energy.TotalKWh, 1e-9)
	assert.InDelta(t, 1.2, out[0].Energy.OffPeakKWh, 1e-9)
	assert.InDelta(t, 1.2, out[0].Energy.PeakKWh, 1e-9)
	// buckets are disjoint and each no greater than the total
	assert.LessOrEqual(t, out[0].Energy.OffPeakKWh+out[0].Energy.PeakKWh, out[0].Energy.TotalKWh)

	t.Run("all-zero windows bucket nothing", func(t *testing.T) {
		empty := tariff.Custom
		s := []types.Series{{Variable: "loadsPower", Unit: "kW", Data: samplesAt(day, 3, repeat(1.2, 24)...)}}
		out := Summarize(s, Options{Level: LevelStats, Tariff: &empty})
		assert.Zero(t, out[0].Energy.OffPeakKWh)
		assert.Zero(t, out[0].Energy.PeakKWh)
	})
}

func TestSummarizeInputSeries(t *testing.T) {
	day := time.Date(2023, 8, 20, 0, 0, 0, 0, time.UTC)
	s := []types.Series{{
		Variable: "generationPower",
		Unit:     "kW",
		Data:     samplesAt(day, 8, 1.2, -2.4, 3.6, -1.2),
	}}
	out := Summarize(s, Options{Level: LevelStatsOnly})
	require.Len(t, out, 2, "synthetic input series should be appended")

	gen, in := out[0], out[1]
	assert.Equal(t, "output_daily", gen.Name)
	assert.Equal(t, "kWh", gen.Unit)
	assert.Nil(t, gen.Data, "stats-only drops samples")
	// generation integrates only the positive samples
	assert.InDelta(t, 4.8/12, gen.Energy.TotalKWh, 1e-9)

	// input captures only the backfeed, negated
	assert.Equal(t, InputEnergyName, in.Name)
	assert.InDelta(t, 3.6/12, in.Energy.TotalKWh, 1e-9)
}

func TestSummarizeFlipCT2(t *testing.T) {
	day := time.Date(2023, 8, 20, 0, 0, 0, 0, time.UTC)
	s := []types.Series{{
		Variable: CT2Var,
		Unit:     "kW",
		Data:     samplesAt(day, 11, -1.2, -2.4),
	}}
	out := Summarize(s, Options{Level: LevelStats, FlipCT2: true})
	assert.InDelta(t, 3.6/12, out[0].Energy.TotalKWh, 1e-9)
}

func TestSummarizeHourlyState(t *testing.T) {
	day := time.Date(2023, 8, 20, 0, 0, 0, 0, time.UTC)
	data := append(samplesAt(day, 0, repeat(1.2, 12)...), samplesAt(day, 1, repeat(2.4, 12)...)...)
	s := []types.Series{{Variable: "pvPower", Unit: "kW", Data: data}}
	out := Summarize(s, Options{Level: LevelHourlyState})

	require.Len(t, out[0].State, 2)
	assert.InDelta(t, 1.2, out[0].State[0].KWh, 1e-9)
	assert.InDelta(t, 3.6, out[0].State[1].KWh, 1e-9)
	assert.Equal(t, "01:55", out[0].State[1].Time)
	assert.Nil(t, out[0].Data, "hourly state drops samples")
}

func TestSummarizeRawLevel(t *testing.T) {
	day := time.Date(2023, 8, 20, 0, 0, 0, 0, time.UTC)
	s := []types.Series{{Variable: "pvPower", Unit: "kW", Data: samplesAt(day, 8, 1.0)}}
	out := Summarize(s, Options{Level: LevelRaw})
	assert.Nil(t, out[0].Energy)
	assert.Nil(t, out[0].Stats)
	assert.Len(t, out[0].Data, 1)
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
