package scheduling

import (
	"reflect"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestGenerateSlots_DefaultWindow(t *testing.T) {
	slots := GenerateSlots(day(2024, 6, 2), at(2024, 6, 1, 10, 0), DefaultClinicWindow())
	if len(slots) != 18 {
		t.Fatalf("expected 18 slots, got %d", len(slots))
	}
	if slots[0].Time != "09:00" || slots[len(slots)-1].Time != "11:50" {
		t.Errorf("unexpected bounds %s..%s", slots[0].Time, slots[len(slots)-1].Time)
	}
	if slots[0].DisplayTime != "09:00 AM" {
		t.Errorf("expected display 09:00 AM, got %q", slots[0].DisplayTime)
	}
	for _, s := range slots {
		if !s.Available {
			t.Errorf("future date slot %s should be available", s.Time)
		}
	}
}

func TestGenerateSlots_Deterministic(t *testing.T) {
	d, now := day(2024, 6, 1), at(2024, 6, 1, 9, 25)
	first := GenerateSlots(d, now, DefaultClinicWindow())
	for i := 0; i < 5; i++ {
		if again := GenerateSlots(d, now, DefaultClinicWindow()); !reflect.DeepEqual(first, again) {
			t.Fatal("slot grid changed between calls")
		}
	}
}

func TestGenerateSlots_PastSlotsToday(t *testing.T) {
	slots := GenerateSlots(day(2024, 6, 1), at(2024, 6, 1, 9, 20), DefaultClinicWindow())
	want := map[string]bool{"09:00": false, "09:10": false, "09:20": true, "09:30": true}
	for _, s := range slots {
		if exp, ok := want[s.Time]; ok && s.Available != exp {
			t.Errorf("slot %s: expected available=%v", s.Time, exp)
		}
	}
}

func TestGenerateSlots_AfternoonDisplay(t *testing.T) {
	w, err := ParseClinicWindow("13:00", "14:00", 30)
	if err != nil {
		t.Fatalf("parse window: %v", err)
	}
	slots := GenerateSlots(day(2024, 6, 2), at(2024, 6, 1, 8, 0), w)
	if len(slots) != 2 || slots[1].Time != "13:30" || slots[1].DisplayTime != "01:30 PM" {
		t.Fatalf("unexpected slots %+v", slots)
	}
}

func TestGenerateSlots_InvalidWindow(t *testing.T) {
	if slots := GenerateSlots(day(2024, 6, 1), at(2024, 6, 1, 8, 0), ClinicWindow{}); slots != nil {
		t.Errorf("expected no slots, got %v", slots)
	}
}

func TestParseClinicWindow(t *testing.T) {
	tests := []struct {
		start, end string
		interval   int
		ok         bool
	}{
		{"09:00", "12:00", 10, true},
		{"09:00", "09:00", 10, false},
		{"12:00", "09:00", 10, false},
		{"9am", "12:00", 10, false},
		{"9:00", "12:00", 10, false},
		{"09:00", "12:0", 10, false},
		{"09:00", "25:00", 10, false},
		{"09:00", "12:00", 0, false},
	}
	for _, tt := range tests {
		_, err := ParseClinicWindow(tt.start, tt.end, tt.interval)
		if (err == nil) != tt.ok {
			t.Errorf("ParseClinicWindow(%s, %s, %d): err=%v", tt.start, tt.end, tt.interval, err)
		}
	}
}

func TestClinicWindow_Contains(t *testing.T) {
	w := DefaultClinicWindow()
	for slot, want := range map[string]bool{
		"09:00": true, "11:50": true, "09:05": false, "12:00": false, "08:50": false, "": false, "9:00": false,
	} {
		if got := w.Contains(slot); got != want {
			t.Errorf("Contains(%q) = %v, want %v", slot, got, want)
		}
	}
}

func TestResolveAvailability(t *testing.T) {
	slots := GenerateSlots(day(2024, 6, 1), at(2024, 6, 1, 9, 5), DefaultClinicWindow())
	booked := []string{"09:30", "10:00"}
	resolved := ResolveAvailability(slots, booked)

	bookedSet := map[string]bool{"09:30": true, "10:00": true}
	for i, s := range resolved {
		past := !slots[i].Available
		// unavailable iff past or booked
		if s.Available == (past || bookedSet[s.Time]) {
			t.Errorf("slot %s: available=%v past=%v booked=%v", s.Time, s.Available, past, bookedSet[s.Time])
		}
	}
	if !slots[3].Available {
		t.Error("input slots must not be modified")
	}
}

func TestUnavailable(t *testing.T) {
	for _, s := range Unavailable(GenerateSlots(day(2024, 6, 2), at(2024, 6, 1, 8, 0), DefaultClinicWindow())) {
		if s.Available {
			t.Fatalf("slot %s should be unavailable", s.Time)
		}
	}
}

func TestParseDate(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	d, err := ParseDate("2024-06-01", loc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Location() != loc || d.Hour() != 0 || d.Day() != 1 {
		t.Errorf("unexpected date %v", d)
	}
	if _, err := ParseDate("01/06/2024", loc); err != ErrInvalidDate {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}
}

func TestCivilDate_KeepsCalendarDay(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	stored := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	got := CivilDate(stored, loc)
	if got.Day() != 1 || got.Location() != loc {
		t.Errorf("expected 2024-06-01 in EST, got %v", got)
	}
}
