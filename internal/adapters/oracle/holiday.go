// Package oracle provides built-in, network-free implementations of
// the HolidayResolver and SolarOracle collaborators, plus an optional
// process-plugin-backed implementation of each for operators who want
// a custom date oracle (internal/oracleplugin).
package oracle

import (
	"fmt"
	"strings"

	"github.com/gcssync/gcs/internal/core/civil"
)

// FixedHolidayTable resolves the US federal holiday set plus Easter
// (computed, not tabulated, since it is the one common holiday that
// moves by a full lunar-cycle margin year to year). It implements
// intent.HolidayResolver.
type FixedHolidayTable struct{}

// NewFixedHolidayTable returns the built-in holiday resolver.
func NewFixedHolidayTable() FixedHolidayTable {
	return FixedHolidayTable{}
}

// Resolve maps a holiday name to its concrete date in year. Matching
// is case-insensitive; an unrecognized name is an error, since
// IntentNormalizer's step 2 has no sensible default to fall back to.
func (FixedHolidayTable) Resolve(name string, year int) (civil.Date, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "new year's day", "new years day", "newyear":
		return civil.NewDate(year, 1, 1), nil
	case "mlk day", "martin luther king jr day":
		return nthWeekdayOfMonth(year, 1, 1, 3), nil // 3rd Monday of January
	case "presidents day", "washington's birthday":
		return nthWeekdayOfMonth(year, 2, 1, 3), nil // 3rd Monday of February
	case "memorial day":
		return lastWeekdayOfMonth(year, 5, 1), nil // last Monday of May
	case "juneteenth":
		return civil.NewDate(year, 6, 19), nil
	case "independence day":
		return civil.NewDate(year, 7, 4), nil
	case "labor day":
		return nthWeekdayOfMonth(year, 9, 1, 1), nil // 1st Monday of September
	case "columbus day", "indigenous peoples' day":
		return nthWeekdayOfMonth(year, 10, 1, 2), nil // 2nd Monday of October
	case "veterans day":
		return civil.NewDate(year, 11, 11), nil
	case "thanksgiving":
		return nthWeekdayOfMonth(year, 11, 4, 4), nil // 4th Thursday of November
	case "christmas", "christmas day":
		return civil.NewDate(year, 12, 25), nil
	case "easter":
		return easterSunday(year), nil
	default:
		return civil.Date{}, fmt.Errorf("oracle: unrecognized holiday %q", name)
	}
}

// nthWeekdayOfMonth returns the nth occurrence (1-indexed) of weekday
// (0=Sunday..6=Saturday) within month of year.
func nthWeekdayOfMonth(year, month int, weekday int, n int) civil.Date {
	first := civil.NewDate(year, month, 1)
	offset := (weekday - int(first.Weekday()) + 7) % 7
	return first.AddDays(offset + 7*(n-1))
}

// lastWeekdayOfMonth returns the final occurrence of weekday within
// month of year.
func lastWeekdayOfMonth(year, month int, weekday int) civil.Date {
	nextMonth := month + 1
	nextYear := year
	if nextMonth > 12 {
		nextMonth = 1
		nextYear++
	}
	lastDay := civil.NewDate(nextYear, nextMonth, 1).AddDays(-1)
	offset := (int(lastDay.Weekday()) - weekday + 7) % 7
	return lastDay.AddDays(-offset)
}

// easterSunday computes the Gregorian Easter date via the anonymous
// Gregorian algorithm (Meeus/Jones/Butcher).
func easterSunday(year int) civil.Date {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return civil.NewDate(year, month, day)
}
