// Package refresh computes when the "current/next event" view can change
// next. It only produces hints; it never wakes anything by itself.
package refresh

import (
	"time"

	"timetable/internal/temporal"
	"timetable/internal/timegrid"
)

// Next returns the earliest instant after which the view may differ:
//   - the start of the next timeslot that has not started yet,
//   - the end of the last timeslot if that is the next one to start or
//     the one running now,
//   - nextMidnight once the last slot has ended.
func Next(grid *timegrid.Grid, now, midnight, nextMidnight time.Time) time.Time {
	slots := grid.Slots()
	for i, ts := range slots {
		start := ts.Start.From(midnight)
		if start.Before(now) {
			continue
		}
		if i == len(slots)-1 {
			return ts.End.From(midnight)
		}
		return start
	}
	if end := grid.Last().End.From(midnight); now.Before(end) {
		return end
	}
	return nextMidnight
}

// At is Next with the midnights derived from now.
func At(grid *timegrid.Grid, now time.Time) time.Time {
	return Next(grid, now, temporal.MidnightToday(now), temporal.MidnightTomorrow(now))
}

// Schedule adapts the refresh hints to cron.Schedule, so a cron runner
// fires exactly when the view can change.
type Schedule struct {
	Grid *timegrid.Grid
}

// Next implements cron.Schedule. It always returns an instant strictly
// after t, which cron requires to make progress.
func (s Schedule) Next(t time.Time) time.Time {
	grid := s.Grid
	if grid == nil {
		grid = timegrid.Default()
	}
	// Hints equal to t would refire immediately; look just past it.
	next := At(grid, t)
	if !next.After(t) {
		next = At(grid, t.Add(time.Millisecond))
	}
	return next
}
