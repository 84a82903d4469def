package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHours(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"02:00", 2.0},
		{"01:30", 1.5},
		{"23:45", 23.75},
		{"5", 5.0},
		{"00:00:30", 30.0 / 3600},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got, err := ParseHours(c.in)
			require.NoError(t, err)
			assert.InDelta(t, c.want, got, 1e-9)
		})
	}

	t.Run("invalid", func(t *testing.T) {
		for _, in := range []string{"", "abc", "1:2:3:4", "12:xx"} {
			_, err := ParseHours(in)
			assert.ErrorIs(t, err, ErrInvalidTime, "input %q", in)
		}
	})
}

func TestFormatHours(t *testing.T) {
	assert.Equal(t, "02:00", FormatHours(2.0))
	assert.Equal(t, "01:30", FormatHours(1.5))
	assert.Equal(t, "23:45", FormatHours(23.75))
	assert.Equal(t, "04:30:00", FormatHoursSec(4.5))
}

func TestRoundHours(t *testing.T) {
	// wraps past midnight
	assert.InDelta(t, 1.5, RoundHours(25.5), 1e-9)
	// rounds to the nearest minute
	assert.InDelta(t, 2.25, RoundHours(2.2501), 1e-9)
	assert.InDelta(t, 3.0+7.0/60, RoundHours(3.11), 1e-9)
}

func TestHourMinute(t *testing.T) {
	h, m := HourMinute(5.5)
	assert.Equal(t, 5, h)
	assert.Equal(t, 30, m)

	h, m = HourMinute(0.25)
	assert.Equal(t, 0, h)
	assert.Equal(t, 15, m)
}
