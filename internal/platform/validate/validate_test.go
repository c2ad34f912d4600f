package validate

import (
	"strings"
	"testing"

	"github.com/Nishal77/QueueManagement-sub000/internal/platform/apperr"
)

type bookingBody struct {
	DoctorID string `json:"doctor_id" validate:"required,uuid"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot string `json:"time_slot" validate:"required,hhmm"`
	Notes    string `json:"notes" validate:"max=10"`
}

func TestValidate_OK(t *testing.T) {
	v := New()
	err := v.Validate(&bookingBody{
		DoctorID: "7f1c2a5e-3c7b-4e0c-9c53-6b2f2f1d9a10",
		Date:     "2024-06-01",
		TimeSlot: "09:10",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ReportsJSONFieldNames(t *testing.T) {
	v := New()
	err := v.Validate(&bookingBody{Date: "01/06/2024", TimeSlot: "9:10", Notes: "far too long for ten"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected validation kind, got %v", apperr.KindOf(err))
	}
	msg := err.Error()
	for _, want := range []string{"doctor_id is required", "date must match 2006-01-02", "time_slot must be a HH:mm time", "notes must be at most 10"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestHHMM(t *testing.T) {
	type slot struct {
		T string `json:"t" validate:"hhmm"`
	}
	v := New()
	for _, ok := range []string{"00:00", "09:50", "23:59"} {
		if err := v.Validate(&slot{T: ok}); err != nil {
			t.Errorf("%s: unexpected error %v", ok, err)
		}
	}
	for _, bad := range []string{"24:00", "9:00", "09:60", "0900", ""} {
		if err := v.Validate(&slot{T: bad}); err == nil {
			t.Errorf("%s: expected error", bad)
		}
	}
}
