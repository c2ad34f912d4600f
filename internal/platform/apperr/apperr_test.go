package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

var errSample = Conflict("time slot is not available")

func TestIs_MatchesWrappedSentinel(t *testing.T) {
	err := fmt.Errorf("book: %w", Wrap(errSample, errors.New("23505")))
	if !errors.Is(err, errSample) {
		t.Fatal("expected wrapped error to match sentinel")
	}
	if errors.Is(err, Conflict("other reason")) {
		t.Fatal("expected different reason not to match")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{Validation("bad"), KindValidation},
		{NotFound("missing"), KindNotFound},
		{fmt.Errorf("x: %w", State("done")), KindState},
		{Infrastructure(errors.New("conn refused")), KindInfrastructure},
		{errors.New("plain"), KindUnknown},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestHTTPError_Status(t *testing.T) {
	tests := []struct {
		err  error
		code int
		msg  string
	}{
		{Validation("invalid booking date"), http.StatusBadRequest, "invalid booking date"},
		{State("appointment already completed"), http.StatusBadRequest, "appointment already completed"},
		{NotFound("appointment not found"), http.StatusNotFound, "appointment not found"},
		{errSample, http.StatusConflict, "time slot is not available"},
		{Infrastructure(errors.New("dial tcp")), http.StatusInternalServerError, "internal server error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		he := HTTPError(tt.err)
		if he.Code != tt.code {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.code, he.Code)
		}
		if he.Message != tt.msg {
			t.Errorf("%v: expected message %q, got %v", tt.err, tt.msg, he.Message)
		}
	}
}
