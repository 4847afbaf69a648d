// Package calendar answers trading-day questions for US equity exchanges:
// weekends plus the observed NYSE holiday schedule, including Good Friday.
package calendar

import (
	"errors"
	"time"
)

// ErrNoPriorTradingDay is returned when no trading day exists in the
// two-week lookback window, which does not happen on a real calendar.
var ErrNoPriorTradingDay = errors.New("no prior trading day within lookback window")

// lookbackDays bounds the search for a previous trading day.
const lookbackDays = 14

// IsTradingDay reports whether the NYSE is open on the given date.
func IsTradingDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !isHoliday(d)
}

// PreviousTradingDay returns the last trading day strictly before d.
func PreviousTradingDay(d time.Time) (time.Time, error) {
	for i := 1; i <= lookbackDays; i++ {
		prev := d.AddDate(0, 0, -i)
		if IsTradingDay(prev) {
			return prev, nil
		}
	}
	return time.Time{}, ErrNoPriorTradingDay
}

// KthPreviousTradingDay walks back k trading days from d.
func KthPreviousTradingDay(d time.Time, k int) (time.Time, error) {
	if k <= 0 {
		return time.Time{}, errors.New("k must be positive")
	}
	cur := d
	for i := 0; i < k; i++ {
		prev, err := PreviousTradingDay(cur)
		if err != nil {
			return time.Time{}, err
		}
		cur = prev
	}
	return cur, nil
}

// isHoliday reports whether d is an observed NYSE holiday.
func isHoliday(d time.Time) bool {
	y, m, day := d.Date()

	for _, h := range fixedHolidays(y) {
		if observed(h) == dateOnly(d) {
			return true
		}
	}

	// Floating holidays.
	switch {
	case m == time.January && d.Weekday() == time.Monday && nthWeekdayOfMonth(day) == 3:
		return true // Martin Luther King Jr. Day
	case m == time.February && d.Weekday() == time.Monday && nthWeekdayOfMonth(day) == 3:
		return true // Presidents' Day
	case m == time.May && d.Weekday() == time.Monday && day > 24:
		return true // Memorial Day, last Monday of May
	case m == time.September && d.Weekday() == time.Monday && nthWeekdayOfMonth(day) == 1:
		return true // Labor Day
	case m == time.November && d.Weekday() == time.Thursday && nthWeekdayOfMonth(day) == 4:
		return true // Thanksgiving
	}

	return dateOnly(d) == goodFriday(y)
}

// fixedHolidays returns the date-certain NYSE holidays of a year.
func fixedHolidays(year int) []time.Time {
	return []time.Time{
		time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),   // New Year's Day
		time.Date(year, time.June, 19, 0, 0, 0, 0, time.UTC),     // Juneteenth
		time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC),      // Independence Day
		time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC), // Christmas
	}
}

// observed shifts a date-certain holiday falling on a weekend to the nearest
// weekday, per NYSE observance rules.
func observed(h time.Time) time.Time {
	switch h.Weekday() {
	case time.Saturday:
		return dateOnly(h.AddDate(0, 0, -1))
	case time.Sunday:
		return dateOnly(h.AddDate(0, 0, 1))
	}
	return dateOnly(h)
}

// goodFriday computes Good Friday (two days before Easter Sunday) using the
// Anonymous Gregorian computus.
func goodFriday(year int) time.Time {
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
	easter := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return dateOnly(easter.AddDate(0, 0, -2))
}

// nthWeekdayOfMonth says which occurrence of its weekday the day-of-month is.
func nthWeekdayOfMonth(day int) int {
	return (day-1)/7 + 1
}

func dateOnly(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}
