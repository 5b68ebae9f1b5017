package ics

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "timetable/internal/log"
	"timetable/internal/model"
)

// uidSpace namespaces the stable event UIDs.
var uidSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://mm.dcsm.info/timetable"))

// Linker builds web links for exported events. remote.Client satisfies it.
type Linker interface {
	EventLink(program string, semester, week int, id model.ID) string
}

// Options describe the day being exported.
type Options struct {
	Program  string
	Semester int
	Week     int
	// Midnight is the start of the exported day in local time.
	Midnight time.Time
	// Stamp is used for DTSTAMP; zero means time.Now.
	Stamp time.Time
	Links Linker
}

// UID returns the stable calendar UID of an event occurrence.
func UID(o Options, id model.ID) string {
	name := fmt.Sprintf("%s%d/%s/%s", o.Program, o.Semester, o.Midnight.Format("2006-01-02"), id)
	return uuid.NewSHA1(uidSpace, []byte(name)).String() + "@timetable"
}

// Export writes events as a PUBLISH calendar to w.
func Export(w io.Writer, events []model.Event, o Options) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//timetable//today//EN")
	cal.SetName(fmt.Sprintf("%s%d", o.Program, o.Semester))

	stamp := o.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	for _, ev := range events {
		vev := cal.AddEvent(UID(o, ev.ID))
		vev.SetDtStampTime(stamp)
		vev.SetStartAt(ev.Start(o.Midnight))
		vev.SetEndAt(ev.End(o.Midnight))
		vev.SetSummary(ev.Name)
		if len(ev.Rooms) > 0 {
			vev.SetLocation(strings.Join(ev.Rooms, ", "))
		}
		if desc := description(ev); desc != "" {
			vev.SetDescription(desc)
		}
		if o.Links != nil {
			vev.SetURL(o.Links.EventLink(o.Program, o.Semester, o.Week, ev.ID))
		}
	}

	appLog.Debug("ics export", "program", o.Program, "semester", o.Semester, "event_count", len(events))
	return cal.SerializeTo(w)
}

func description(ev model.Event) string {
	var lines []string
	var names []string
	for _, l := range ev.Lecturers {
		if l != nil && l.Name != "" {
			names = append(names, l.Name)
		}
	}
	if len(names) > 0 {
		lines = append(lines, "Lecturers: "+strings.Join(names, ", "))
	}
	if ev.Note != "" {
		lines = append(lines, ev.Note)
	}
	return strings.Join(lines, "\n")
}
