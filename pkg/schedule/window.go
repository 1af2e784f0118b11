package schedule

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/fieldvine/fieldvine/pkg/subscriptions"
)

// NextDate advances one recurrence step from the given date. Month-based
// frequencies use calendar-month advance with Go's normalization, so Jan 31
// plus one month lands on Mar 2/3 rather than a phantom Feb 31.
func NextDate(freq subscriptions.Frequency, from time.Time) time.Time {
	days, months := freq.Step()
	return from.AddDate(0, months, days)
}

// ProjectDates walks forward from the last known entry date by the
// frequency's step and returns every date within [start, windowEnd]. It is a
// pure function of its inputs so window generation is testable without a
// database. The last date itself is never included.
func ProjectDates(freq subscriptions.Frequency, last, start, windowEnd time.Time) []time.Time {
	var dates []time.Time
	for d := NextDate(freq, last); !d.After(windowEnd); d = NextDate(freq, d) {
		if d.Before(start) {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

// locationCache memoizes timezone lookups; subscriptions across a business
// share a handful of zones.
var locationCache, _ = lru.New[string, *time.Location](64)

// loadLocation resolves an IANA timezone name, falling back to UTC on
// unknown names so a bad stored zone never blocks materialization.
func loadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	if loc, ok := locationCache.Get(name); ok {
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	locationCache.Add(name, loc)
	return loc
}

// windowClock parses an "HH:MM" preference, defaulting on bad input
func windowClock(pref *string, defaultHour, defaultMinute int) (int, int) {
	if pref == nil {
		return defaultHour, defaultMinute
	}
	t, err := time.Parse("15:04", *pref)
	if err != nil {
		return defaultHour, defaultMinute
	}
	return t.Hour(), t.Minute()
}
