package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// ID is an identifier assigned by the timetable API. The API is not
// consistent about quoting ids, so both JSON strings and numbers decode
// into the same value. It always encodes as a string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Offset is a point in the day expressed as milliseconds since local midnight.
type Offset int64

// Duration converts the offset into a time.Duration.
func (o Offset) Duration() time.Duration {
	return time.Duration(o) * time.Millisecond
}

// From anchors the offset at the given midnight.
func (o Offset) From(midnight time.Time) time.Time {
	return midnight.Add(o.Duration())
}

func (o Offset) String() string {
	return strconv.FormatInt(int64(o), 10) + "ms"
}

// RawEvent is a single event as returned by the events endpoint, before
// filtering and timeslot resolution.
type RawEvent struct {
	ID        ID       `json:"id"`
	Day       string   `json:"day"`       // mon..sun
	ShortName string   `json:"shortname"` // display name; events without one are dropped
	Note      string   `json:"note"`
	Rooms     []string `json:"rooms"`
	Lecturers []ID     `json:"lecturers"`
	Timeslots []string `json:"timeslots"` // "<prefix>-<slot>"
}

// Lecturer is an entry of the lecturer directory. Only id and name are used.
type Lecturer struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// Event is the normalized representation of a RawEvent for one day.
//
// Lecturers holds one entry per lecturer id of the raw event, in the same
// order; an id that could not be resolved is kept as a nil entry.
type Event struct {
	ID        ID          `json:"id"`
	DayOfWeek int         `json:"dayOfWeek"` // 0 = Monday
	Name      string      `json:"name"`
	Note      string      `json:"note"`
	Rooms     []string    `json:"rooms"`
	Lecturers []*Lecturer `json:"lecturers"`

	StartOffset Offset `json:"startOffset"`
	EndOffset   Offset `json:"endOffset"`
	StartSlot   int    `json:"startSlot"`
	EndSlot     int    `json:"endSlot"`
}

// Start returns the absolute start time of the event on the day of midnight.
func (e Event) Start(midnight time.Time) time.Time {
	return e.StartOffset.From(midnight)
}

// End returns the absolute end time of the event on the day of midnight.
func (e Event) End(midnight time.Time) time.Time {
	return e.EndOffset.From(midnight)
}

// FirstLecturer returns the first resolved lecturer, if any.
func (e Event) FirstLecturer() (*Lecturer, bool) {
	for _, l := range e.Lecturers {
		if l != nil {
			return l, true
		}
	}
	return nil, false
}

// Credentials are supplied per invocation and never persisted.
type Credentials struct {
	Username string
	Password string
}
