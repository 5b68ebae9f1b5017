package normalize

import (
	"sort"

	appLog "timetable/internal/log"
	"timetable/internal/model"
	"timetable/internal/timegrid"
)

// Span is the start/end pair derived from an event's timeslot codes.
type Span struct {
	StartOffset model.Offset
	StartSlot   int
	EndOffset   model.Offset
	EndSlot     int
}

// FilterRelevant keeps the raw events that can be shown on day: the day
// code must map to day, and the event needs a short name, at least one
// timeslot and at least one lecturer id.
func FilterRelevant(raw []model.RawEvent, day int) []model.RawEvent {
	out := make([]model.RawEvent, 0, len(raw))
	for _, ev := range raw {
		idx, ok := timegrid.DayIndex(ev.Day)
		if !ok || idx != day {
			continue
		}
		if ev.ShortName == "" || len(ev.Timeslots) == 0 || len(ev.Lecturers) == 0 {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// ResolveTimeslots maps the first code to the start of the span and the
// last code to its end. The codes are taken in the order received; they
// are not sorted by slot number. Every code must resolve, otherwise the
// *timegrid.UnknownSlotError of the first bad code is returned.
func ResolveTimeslots(grid *timegrid.Grid, codes []string) (Span, error) {
	var span Span
	for i, code := range codes {
		ts, err := grid.Resolve(code)
		if err != nil {
			return Span{}, err
		}
		if i == 0 {
			span.StartOffset = ts.Start
			span.StartSlot = ts.Slot
		}
		if i == len(codes)-1 {
			span.EndOffset = ts.End
			span.EndSlot = ts.Slot
		}
	}
	return span, nil
}

// ResolveLecturers looks up each id in available. Unknown ids produce a
// nil entry at the same position.
func ResolveLecturers(ids []model.ID, available []model.Lecturer) []*model.Lecturer {
	byID := index(available)
	out := make([]*model.Lecturer, len(ids))
	for i, id := range ids {
		out[i] = byID[id]
	}
	return out
}

// Normalize filters raw down to the events of day and converts them into
// model.Event, sorted by start offset (stable). Events whose timeslots
// cannot be resolved are logged and dropped; the rest of the batch is kept.
//
// The returned events point into available for their lecturers.
func Normalize(grid *timegrid.Grid, raw []model.RawEvent, available []model.Lecturer, day int) []model.Event {
	relevant := FilterRelevant(raw, day)
	events := make([]model.Event, 0, len(relevant))

	for _, ev := range relevant {
		span, err := ResolveTimeslots(grid, ev.Timeslots)
		if err != nil {
			appLog.Warn("dropping event with unresolvable timeslot", "id", ev.ID, "name", ev.ShortName, "err", err)
			continue
		}
		events = append(events, model.Event{
			ID:          ev.ID,
			DayOfWeek:   day,
			Name:        ev.ShortName,
			Note:        ev.Note,
			Rooms:       ev.Rooms,
			Lecturers:   ResolveLecturers(ev.Lecturers, available),
			StartOffset: span.StartOffset,
			EndOffset:   span.EndOffset,
			StartSlot:   span.StartSlot,
			EndSlot:     span.EndSlot,
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartOffset < events[j].StartOffset
	})

	appLog.Debug("normalize completed", "day", day, "raw_count", len(raw), "relevant_count", len(relevant), "event_count", len(events))
	return events
}

// Relink points the lecturers of events at the matching records of
// available, so events read back from the cache share lecturer records
// with the current directory again. Lecturers not present in available
// keep their own copy; nil entries stay nil.
func Relink(events []model.Event, available []model.Lecturer) {
	byID := index(available)
	for i := range events {
		for j, l := range events[i].Lecturers {
			if l == nil {
				continue
			}
			if shared, ok := byID[l.ID]; ok {
				events[i].Lecturers[j] = shared
			}
		}
	}
}

// index maps lecturer ids to records of available; the first record wins
// on duplicate ids.
func index(available []model.Lecturer) map[model.ID]*model.Lecturer {
	byID := make(map[model.ID]*model.Lecturer, len(available))
	for i := range available {
		if _, dup := byID[available[i].ID]; !dup {
			byID[available[i].ID] = &available[i]
		}
	}
	return byID
}
