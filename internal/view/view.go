package view

import (
	"time"

	"timetable/internal/model"
)

// Status summarizes what the view has to show.
type Status string

const (
	// StatusNoEvents means nothing is scheduled today at all.
	StatusNoEvents Status = "no_events"
	// StatusNoMoreEvents means everything scheduled today has ended.
	StatusNoMoreEvents Status = "no_more_events"
	// StatusUpcoming means at least one event is running or still to come.
	StatusUpcoming Status = "upcoming"
)

// Item is a visible event together with its absolute times.
type Item struct {
	Event      model.Event `json:"event"`
	Start      time.Time   `json:"start"`
	End        time.Time   `json:"end"`
	InProgress bool        `json:"in_progress"`
}

// View is the bounded "right now" selection handed to presentation.
type View struct {
	Status  Status `json:"status"`
	Visible []Item `json:"visible"`
	// Hidden is the number of future events that did not fit.
	Hidden int          `json:"hidden"`
	Next   *model.Event `json:"next,omitempty"`
}

// EndingInFuture returns the events that have not ended yet, keeping
// their order.
func EndingInFuture(events []model.Event, now, midnight time.Time) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if !ev.End(midnight).Before(now) {
			out = append(out, ev)
		}
	}
	return out
}

// NextUpcoming returns the first event that has not started yet.
func NextUpcoming(events []model.Event, now, midnight time.Time) (*model.Event, bool) {
	for i := range events {
		if !events[i].Start(midnight).Before(now) {
			ev := events[i]
			return &ev, true
		}
	}
	return nil, false
}

// InProgress reports whether ev has started at now.
func InProgress(ev model.Event, now, midnight time.Time) bool {
	return !now.Before(ev.Start(midnight))
}

// Select builds the view for now, showing at most limit events. events are
// expected in start order, as produced by normalize.Normalize.
func Select(events []model.Event, now, midnight time.Time, limit int) View {
	if limit < 0 {
		limit = 0
	}
	future := EndingInFuture(events, now, midnight)

	v := View{Visible: []Item{}}
	switch {
	case len(events) == 0:
		v.Status = StatusNoEvents
	case len(future) == 0:
		v.Status = StatusNoMoreEvents
	default:
		v.Status = StatusUpcoming
	}

	shown := future
	if len(shown) > limit {
		shown = shown[:limit]
		v.Hidden = len(future) - limit
	}
	for _, ev := range shown {
		v.Visible = append(v.Visible, Item{
			Event:      ev,
			Start:      ev.Start(midnight),
			End:        ev.End(midnight),
			InProgress: InProgress(ev, now, midnight),
		})
	}

	if next, ok := NextUpcoming(events, now, midnight); ok {
		v.Next = next
	}
	return v
}
