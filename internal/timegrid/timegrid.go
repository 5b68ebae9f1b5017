package timegrid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"timetable/internal/model"
)

// Timeslot is one fixed period of the teaching day.
type Timeslot struct {
	Slot  int          `json:"slot"`
	Start model.Offset `json:"startOffset"`
	End   model.Offset `json:"endOffset"`
}

// Days lists the day codes used by the timetable API, Monday first. The
// index of a code is its day-of-week index.
var Days = [7]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// DayIndex returns the 0-based (Monday = 0) index of a day code.
func DayIndex(code string) (int, bool) {
	for i, d := range Days {
		if d == code {
			return i, true
		}
	}
	return -1, false
}

var defaultSlots = []Timeslot{
	{Slot: 1, Start: 29700000, End: 32400000},
	{Slot: 2, Start: 32400000, End: 35100000},
	{Slot: 3, Start: 36000000, End: 38700000},
	{Slot: 4, Start: 38700000, End: 41400000},
	{Slot: 5, Start: 42300000, End: 45000000},
	{Slot: 6, Start: 45000000, End: 47700000},
	{Slot: 7, Start: 47700000, End: 51300000},
	{Slot: 8, Start: 51300000, End: 54000000},
	{Slot: 9, Start: 54000000, End: 56700000},
	{Slot: 10, Start: 57600000, End: 60300000},
	{Slot: 11, Start: 60300000, End: 63000000},
	{Slot: 12, Start: 63900000, End: 66600000},
	{Slot: 13, Start: 66600000, End: 69300000},
}

// Grid is an immutable, slot-ordered table of timeslots.
type Grid struct {
	slots []Timeslot
}

// Default returns the 13-slot daily grid.
func Default() *Grid {
	g, _ := New(defaultSlots)
	return g
}

// New validates and copies slots into a Grid. Slots must be numbered
// 1..n in order and each must start before it ends.
func New(slots []Timeslot) (*Grid, error) {
	if len(slots) == 0 {
		return nil, errors.New("timegrid: no slots")
	}
	out := make([]Timeslot, len(slots))
	for i, s := range slots {
		if s.Slot != i+1 {
			return nil, fmt.Errorf("timegrid: slot at index %d is numbered %d", i, s.Slot)
		}
		if s.Start >= s.End {
			return nil, fmt.Errorf("timegrid: slot %d starts at or after its end", s.Slot)
		}
		out[i] = s
	}
	return &Grid{slots: out}, nil
}

// Slots returns a copy of the grid in slot order.
func (g *Grid) Slots() []Timeslot {
	out := make([]Timeslot, len(g.slots))
	copy(out, g.slots)
	return out
}

func (g *Grid) Len() int { return len(g.slots) }

// Last returns the final slot of the day.
func (g *Grid) Last() Timeslot {
	return g.slots[len(g.slots)-1]
}

// Lookup finds a slot by its number.
func (g *Grid) Lookup(slot int) (Timeslot, bool) {
	if slot < 1 || slot > len(g.slots) {
		return Timeslot{}, false
	}
	return g.slots[slot-1], true
}

// UnknownSlotError reports a timeslot code whose slot number is not part
// of the grid (or could not be read at all).
type UnknownSlotError struct {
	Code string
	Slot int // 0 if the code did not contain a number
	Err  error
}

func (e *UnknownSlotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unknown timeslot %q: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("unknown timeslot %q: no slot %d in grid", e.Code, e.Slot)
}

func (e *UnknownSlotError) Unwrap() error { return e.Err }

// ParseSlotCode extracts the slot number from a "<prefix>-<slot>" code.
// The number is taken after the last '-', so prefixes may contain dashes.
func ParseSlotCode(code string) (int, error) {
	i := strings.LastIndexByte(code, '-')
	if i < 0 || i == len(code)-1 {
		return 0, fmt.Errorf("timeslot code %q has no slot number", code)
	}
	n, err := strconv.Atoi(code[i+1:])
	if err != nil {
		return 0, fmt.Errorf("timeslot code %q: %w", code, err)
	}
	return n, nil
}

// Resolve parses a timeslot code and looks it up in the grid.
func (g *Grid) Resolve(code string) (Timeslot, error) {
	n, err := ParseSlotCode(code)
	if err != nil {
		return Timeslot{}, &UnknownSlotError{Code: code, Err: err}
	}
	ts, ok := g.Lookup(n)
	if !ok {
		return Timeslot{}, &UnknownSlotError{Code: code, Slot: n}
	}
	return ts, nil
}
