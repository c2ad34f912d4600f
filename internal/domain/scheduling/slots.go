package scheduling

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// ClinicWindow is the daily bookable range. Start is inclusive, End
// exclusive, both as minutes after midnight.
type ClinicWindow struct {
	Start    int
	End      int
	Interval int
}

// DefaultClinicWindow is 09:00-12:00 in 10 minute steps.
func DefaultClinicWindow() ClinicWindow {
	return ClinicWindow{Start: 9 * 60, End: 12 * 60, Interval: 10}
}

// ParseClinicWindow builds a window from "HH:mm" bounds.
func ParseClinicWindow(start, end string, intervalMinutes int) (ClinicWindow, error) {
	s, err := parseClock(start)
	if err != nil {
		return ClinicWindow{}, ErrInvalidWindow
	}
	e, err := parseClock(end)
	if err != nil {
		return ClinicWindow{}, ErrInvalidWindow
	}
	if e <= s || intervalMinutes <= 0 {
		return ClinicWindow{}, ErrInvalidWindow
	}
	return ClinicWindow{Start: s, End: e, Interval: intervalMinutes}, nil
}

// Contains reports whether slot is one of the window's grid values.
func (w ClinicWindow) Contains(slot string) bool {
	m, err := parseClock(slot)
	if err != nil || w.Interval <= 0 {
		return false
	}
	return m >= w.Start && m < w.End && (m-w.Start)%w.Interval == 0
}

func (w ClinicWindow) String() string {
	return fmt.Sprintf("%s-%s/%dm", formatClock(w.Start), formatClock(w.End), w.Interval)
}

// Slot is one bookable interval of a clinic day.
type Slot struct {
	Time        string `json:"time"`
	DisplayTime string `json:"display_time"`
	Available   bool   `json:"available"`
}

// GenerateSlots lays out the window for date. When date is the same
// calendar day as now, slots starting before now are unavailable. The
// result depends only on its arguments.
func GenerateSlots(date, now time.Time, w ClinicWindow) []Slot {
	if w.Interval <= 0 || w.End <= w.Start {
		return nil
	}
	loc := date.Location()
	y, m, d := date.Date()
	ny, nm, nd := now.In(loc).Date()
	today := y == ny && m == nm && d == nd

	slots := make([]Slot, 0, (w.End-w.Start+w.Interval-1)/w.Interval)
	for at := w.Start; at < w.End; at += w.Interval {
		start := time.Date(y, m, d, at/60, at%60, 0, 0, loc)
		slots = append(slots, Slot{
			Time:        formatClock(at),
			DisplayTime: start.Format("03:04 PM"),
			Available:   !(today && start.Before(now)),
		})
	}
	return slots
}

// ResolveAvailability marks every slot whose time appears in booked as
// unavailable. The input is not modified.
func ResolveAvailability(slots []Slot, booked []string) []Slot {
	taken := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		taken[b] = struct{}{}
	}
	out := make([]Slot, len(slots))
	for i, s := range slots {
		_, isBooked := taken[s.Time]
		s.Available = s.Available && !isBooked
		out[i] = s
	}
	return out
}

// Unavailable returns a copy of slots with every flag cleared.
func Unavailable(slots []Slot) []Slot {
	out := make([]Slot, len(slots))
	for i, s := range slots {
		s.Available = false
		out[i] = s
	}
	return out
}

func findSlot(slots []Slot, t string) (Slot, bool) {
	for _, s := range slots {
		if s.Time == t {
			return s, true
		}
	}
	return Slot{}, false
}

// parseClock accepts the zero-padded "HH:mm" form only.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	m := t.Hour()*60 + t.Minute()
	if formatClock(m) != s {
		return 0, fmt.Errorf("clock %q is not HH:mm", s)
	}
	return m, nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// CivilDate returns midnight of t's calendar day in loc, keeping t's own
// year, month and day.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// ParseDate reads a YYYY-MM-DD date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}
