package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateList(t *testing.T) {
	now := time.Date(2023, 8, 30, 14, 5, 0, 0, time.UTC)

	t.Run("week ends yesterday by default", func(t *testing.T) {
		dates, err := dateListAt(now, DateRange{Span: SpanWeek})
		require.NoError(t, err)
		require.Len(t, dates, 7)
		assert.Equal(t, "2023-08-23", dates[0])
		assert.Equal(t, "2023-08-29", dates[6])
		// consecutive
		for i := 1; i < len(dates); i++ {
			prev, _ := time.Parse(DateFormat, dates[i-1])
			cur, _ := time.Parse(DateFormat, dates[i])
			assert.Equal(t, 24*time.Hour, cur.Sub(prev))
		}
	})

	t.Run("week ends today when requested", func(t *testing.T) {
		dates, err := dateListAt(now, DateRange{Span: SpanWeek, Today: true})
		require.NoError(t, err)
		require.Len(t, dates, 7)
		assert.Equal(t, "2023-08-30", dates[6])
	})

	t.Run("week anchored to a start date", func(t *testing.T) {
		dates, err := dateListAt(now, DateRange{Start: "2023-08-01", Span: SpanWeek})
		require.NoError(t, err)
		require.Len(t, dates, 7)
		assert.Equal(t, "2023-08-01", dates[0])
		assert.Equal(t, "2023-08-07", dates[6])
	})

	t.Run("2days for upload", func(t *testing.T) {
		dates, err := dateListAt(now, DateRange{Span: SpanTwoDays, Today: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"2023-08-29", "2023-08-30"}, dates)
	})

	t.Run("day", func(t *testing.T) {
		dates, err := dateListAt(now, DateRange{Span: SpanDay})
		require.NoError(t, err)
		assert.Equal(t, []string{"2023-08-29"}, dates)
	})

	t.Run("month spanning boundary", func(t *testing.T) {
		dates, err := dateListAt(now, DateRange{Start: "2023-07-15", Span: SpanMonth})
		require.NoError(t, err)
		assert.Equal(t, "2023-07-15", dates[0])
		assert.Equal(t, "2023-08-14", dates[len(dates)-1])
	})

	t.Run("explicit range", func(t *testing.T) {
		dates, err := dateListAt(now, DateRange{Start: "2023-08-01", End: "2023-08-03"})
		require.NoError(t, err)
		assert.Equal(t, []string{"2023-08-01", "2023-08-02", "2023-08-03"}, dates)
	})

	t.Run("end is clamped to yesterday", func(t *testing.T) {
		dates, err := dateListAt(now, DateRange{Start: "2023-08-28", End: "2023-09-15"})
		require.NoError(t, err)
		assert.Equal(t, []string{"2023-08-28", "2023-08-29"}, dates)
	})

	t.Run("limit", func(t *testing.T) {
		dates, err := dateListAt(now, DateRange{Start: "2023-01-01", End: "2023-08-01", Limit: 5})
		require.NoError(t, err)
		assert.Len(t, dates, 5)
	})

	t.Run("bad span", func(t *testing.T) {
		_, err := dateListAt(now, DateRange{Span: Span("fortnight")})
		assert.Error(t, err)
	})

	t.Run("bad date", func(t *testing.T) {
		_, err := dateListAt(now, DateRange{Start: "08/01/2023"})
		assert.Error(t, err)
	})
}
