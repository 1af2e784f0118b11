package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldvine/fieldvine/pkg/subscriptions"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextDate(t *testing.T) {
	tests := []struct {
		name string
		freq subscriptions.Frequency
		from time.Time
		want time.Time
	}{
		{"weekly", subscriptions.FrequencyWeekly, date(2024, time.January, 15), date(2024, time.January, 22)},
		{"biweekly", subscriptions.FrequencyBiweekly, date(2024, time.January, 15), date(2024, time.January, 29)},
		{"monthly", subscriptions.FrequencyMonthly, date(2024, time.January, 15), date(2024, time.February, 15)},
		{"quarterly", subscriptions.FrequencyQuarterly, date(2024, time.January, 15), date(2024, time.April, 15)},
		{"semiannual", subscriptions.FrequencySemiannual, date(2024, time.January, 15), date(2024, time.July, 15)},
		{"annual", subscriptions.FrequencyAnnual, date(2024, time.January, 15), date(2025, time.January, 15)},
		// AddDate normalizes Feb 31 to early March in a leap year
		{"monthly from jan 31", subscriptions.FrequencyMonthly, date(2024, time.January, 31), date(2024, time.March, 2)},
		{"monthly from jan 31 non-leap", subscriptions.FrequencyMonthly, date(2023, time.January, 31), date(2023, time.March, 3)},
		{"weekly across year boundary", subscriptions.FrequencyWeekly, date(2024, time.December, 30), date(2025, time.January, 6)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextDate(tt.freq, tt.from))
		})
	}
}

func TestProjectDates_Weekly(t *testing.T) {
	start := date(2024, time.January, 15)
	windowEnd := date(2024, time.February, 12)

	dates := ProjectDates(subscriptions.FrequencyWeekly, start, start, windowEnd)

	require.Len(t, dates, 4)
	assert.Equal(t, date(2024, time.January, 22), dates[0])
	assert.Equal(t, date(2024, time.January, 29), dates[1])
	assert.Equal(t, date(2024, time.February, 5), dates[2])
	assert.Equal(t, date(2024, time.February, 12), dates[3])
}

func TestProjectDates_ExcludesLastDate(t *testing.T) {
	start := date(2024, time.January, 15)

	dates := ProjectDates(subscriptions.FrequencyMonthly, start, start, date(2024, time.April, 15))

	require.Len(t, dates, 3)
	for _, d := range dates {
		assert.NotEqual(t, start, d, "the last known date must not be regenerated")
	}
}

func TestProjectDates_SkipsDatesBeforeStart(t *testing.T) {
	// Resuming after a long pause: the last entry is far in the past but
	// nothing may be generated before the resume point.
	last := date(2024, time.January, 1)
	start := date(2024, time.March, 1)
	windowEnd := date(2024, time.March, 31)

	dates := ProjectDates(subscriptions.FrequencyWeekly, last, start, windowEnd)

	require.NotEmpty(t, dates)
	for _, d := range dates {
		assert.False(t, d.Before(start), "projected %s before start %s", d, start)
		assert.False(t, d.After(windowEnd), "projected %s after window end %s", d, windowEnd)
	}
}

func TestProjectDates_EmptyWindow(t *testing.T) {
	start := date(2024, time.June, 1)

	// Window ends before the first step lands.
	dates := ProjectDates(subscriptions.FrequencyMonthly, start, start, date(2024, time.June, 15))
	assert.Empty(t, dates)

	// Window end before start yields nothing.
	dates = ProjectDates(subscriptions.FrequencyWeekly, start, start, date(2024, time.May, 1))
	assert.Empty(t, dates)
}

func TestProjectDates_ThreeMonthWindowScenario(t *testing.T) {
	// A monthly subscription starting Jan 15 with a three month window gets
	// entries through mid-April.
	start := date(2024, time.January, 15)
	windowEnd := start.AddDate(0, 3, 0)

	// Seed date one step before start, mirroring how generation synthesizes
	// the anchor for a brand new subscription.
	last := start.AddDate(0, -1, 0)

	dates := ProjectDates(subscriptions.FrequencyMonthly, last, start, windowEnd)

	require.Len(t, dates, 4)
	assert.Equal(t, date(2024, time.January, 15), dates[0])
	assert.Equal(t, date(2024, time.April, 15), dates[3])
}

func TestLoadLocation(t *testing.T) {
	assert.Equal(t, time.UTC, loadLocation(""))
	assert.Equal(t, time.UTC, loadLocation("Not/AZone"))

	ny := loadLocation("America/New_York")
	require.NotNil(t, ny)
	assert.Equal(t, "America/New_York", ny.String())

	// Second lookup is served from the cache
	assert.Same(t, ny, loadLocation("America/New_York"))
}

func TestWindowClock(t *testing.T) {
	pref := "09:30"
	h, m := windowClock(&pref, 8, 0)
	assert.Equal(t, 9, h)
	assert.Equal(t, 30, m)

	h, m = windowClock(nil, 8, 0)
	assert.Equal(t, 8, h)
	assert.Equal(t, 0, m)

	bad := "half past nine"
	h, m = windowClock(&bad, 17, 0)
	assert.Equal(t, 17, h)
	assert.Equal(t, 0, m)
}
