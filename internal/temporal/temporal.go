// Package temporal derives the calendar coordinates of an instant on the
// local clock: day-of-week index, ISO week and the surrounding midnights.
package temporal

import "time"

// Context is the temporal view of a single instant.
type Context struct {
	Now          time.Time
	Week         int // ISO-8601 week number
	Day          int // 0 = Monday .. 6 = Sunday
	Midnight     time.Time
	NextMidnight time.Time
}

// At builds the Context for now, in now's location.
func At(now time.Time) Context {
	return Context{
		Now:          now,
		Week:         ISOWeek(now),
		Day:          DayOfWeekIndex(now),
		Midnight:     MidnightToday(now),
		NextMidnight: MidnightTomorrow(now),
	}
}

// DayOfWeekIndex maps the calendar day to 0 = Monday .. 6 = Sunday, the
// same order as timegrid.Days.
func DayOfWeekIndex(now time.Time) int {
	return (int(now.Weekday()) + 6) % 7
}

// ISOWeek returns the ISO-8601 week number. Around new year this may belong
// to the neighbouring year (e.g. 2021-01-01 is in week 53).
func ISOWeek(now time.Time) int {
	_, w := now.ISOWeek()
	return w
}

// MidnightToday is 00:00 of now's calendar day.
func MidnightToday(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// MidnightTomorrow is 00:00 of the following calendar day. On DST
// transition days this is 23 or 25 hours after MidnightToday.
func MidnightTomorrow(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}
