package integration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Nishal77/QueueManagement-sub000/internal/domain/identity"
	"github.com/Nishal77/QueueManagement-sub000/internal/domain/scheduling"
)

func TestBooking_EndToEnd(t *testing.T) {
	pool := requireDB(t)
	e := newEnv(t, pool)
	ctx := context.Background()

	doc := e.doctor(t)
	p := e.patient(t, "+919800000001")
	day := e.today()

	appt, err := e.scheduling.BookAppointment(ctx, scheduling.BookingRequest{
		PatientID: p.ID, DoctorID: doc.ID, Date: day, TimeSlot: "09:00",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if appt.QueueNumber != 1 || appt.EstimatedWaitTime != 0 || appt.Status != scheduling.StatusWaiting {
		t.Errorf("unexpected appointment %+v", appt)
	}

	slots, err := e.scheduling.GetAvailableSlots(ctx, doc.ID, day)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 18 || slots[0].Available || !slots[1].Available {
		t.Errorf("expected 09:00 taken and 09:10 free, got %+v", slots[:2])
	}

	_, err = e.scheduling.BookAppointment(ctx, scheduling.BookingRequest{
		PatientID: p.ID, DoctorID: doc.ID, Date: day, TimeSlot: "09:10",
	})
	if !errors.Is(err, scheduling.ErrAlreadyBooked) {
		t.Errorf("expected ErrAlreadyBooked, got %v", err)
	}

	e.now = e.now.Add(time.Hour)
	if _, err := e.scheduling.UpdateStatus(ctx, scheduling.StatusUpdate{AppointmentID: appt.ID, Status: "in-progress"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	e.now = e.now.Add(12 * time.Minute)
	done, err := e.scheduling.UpdateStatus(ctx, scheduling.StatusUpdate{AppointmentID: appt.ID, Status: "completed"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.ActualStartTime == nil || done.ActualEndTime == nil {
		t.Fatal("expected both timestamps")
	}
	if _, err := e.scheduling.UpdateStatus(ctx, scheduling.StatusUpdate{AppointmentID: appt.ID, Status: "waiting"}); !errors.Is(err, scheduling.ErrAlreadyCompleted) {
		t.Errorf("expected ErrAlreadyCompleted, got %v", err)
	}

	stats, err := e.scheduling.GetDoctorStats(ctx, doc.ID, day, day)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 || stats.ByStatus[scheduling.StatusCompleted] != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.AverageConsultationMinutes != 12 {
		t.Errorf("expected 12 minute consultation, got %v", stats.AverageConsultationMinutes)
	}

	queue, err := e.scheduling.GetDoctorQueue(ctx, doc.ID, nil)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(queue) != 0 {
		t.Errorf("completed appointment must leave the live queue, got %d entries", len(queue))
	}
}

func TestBooking_ConcurrentSameSlot(t *testing.T) {
	pool := requireDB(t)
	e := newEnv(t, pool)
	doc := e.doctor(t)
	day := e.today()

	const n = 8
	patients := make([]*identity.Patient, n)
	for i := range patients {
		patients[i] = e.patient(t, fmt.Sprintf("+9198000001%02d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.scheduling.BookAppointment(context.Background(), scheduling.BookingRequest{
				PatientID: patients[i].ID, DoctorID: doc.ID, Date: day, TimeSlot: "10:00",
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, scheduling.ErrSlotUnavailable):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one booking, got %d", ok)
	}
}

func TestBooking_ConcurrentQueueNumbersAreUnique(t *testing.T) {
	pool := requireDB(t)
	e := newEnv(t, pool)
	doc := e.doctor(t)
	day := e.today()

	slots := []string{"09:00", "09:10", "09:20", "09:30", "09:40", "09:50", "10:00", "10:10", "10:20", "10:30"}
	patients := make([]*identity.Patient, len(slots))
	for i := range patients {
		patients[i] = e.patient(t, fmt.Sprintf("+9198000002%02d", i))
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		queued []int
	)
	for i := range slots {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := e.scheduling.BookAppointment(context.Background(), scheduling.BookingRequest{
				PatientID: patients[i].ID, DoctorID: doc.ID, Date: day, TimeSlot: slots[i],
			})
			if err != nil {
				t.Errorf("book %s: %v", slots[i], err)
				return
			}
			mu.Lock()
			queued = append(queued, a.QueueNumber)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	sort.Ints(queued)
	for i, q := range queued {
		if q != i+1 {
			t.Fatalf("expected queue numbers 1..%d, got %v", len(slots), queued)
		}
	}
}

func TestBooking_CancelFreesSlotKeepsNumbers(t *testing.T) {
	pool := requireDB(t)
	e := newEnv(t, pool)
	ctx := context.Background()
	doc := e.doctor(t)
	day := e.today()
	a := e.patient(t, "+919800000301")
	b := e.patient(t, "+919800000302")

	first, err := e.scheduling.BookAppointment(ctx, scheduling.BookingRequest{PatientID: a.ID, DoctorID: doc.ID, Date: day, TimeSlot: "11:00"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.scheduling.CancelAppointment(ctx, a.ID, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := e.scheduling.CancelAppointment(ctx, a.ID, first.ID); !errors.Is(err, scheduling.ErrAlreadyCancelled) {
		t.Errorf("expected ErrAlreadyCancelled, got %v", err)
	}

	second, err := e.scheduling.BookAppointment(ctx, scheduling.BookingRequest{PatientID: b.ID, DoctorID: doc.ID, Date: day, TimeSlot: "11:00"})
	if err != nil {
		t.Fatalf("rebook freed slot: %v", err)
	}
	if second.QueueNumber != 2 {
		t.Errorf("cancelled numbers are not reused: expected 2, got %d", second.QueueNumber)
	}

	again, err := e.scheduling.BookAppointment(ctx, scheduling.BookingRequest{PatientID: a.ID, DoctorID: doc.ID, Date: day, TimeSlot: "11:10"})
	if err != nil {
		t.Fatalf("patient may book again after cancelling: %v", err)
	}
	if again.QueueNumber != 3 {
		t.Errorf("expected queue number 3, got %d", again.QueueNumber)
	}

	st, err := e.scheduling.GetCurrentStatus(ctx, a.ID)
	if err != nil || st == nil {
		t.Fatalf("current status: %v %v", st, err)
	}
	if st.Position != 2 || st.PatientsAhead != 1 {
		t.Errorf("unexpected position %d ahead %d", st.Position, st.PatientsAhead)
	}
}

func TestBooking_TerminalStatusRace(t *testing.T) {
	pool := requireDB(t)
	e := newEnv(t, pool)
	ctx := context.Background()
	doc := e.doctor(t)
	p := e.patient(t, "+919800000401")

	for i, slot := range []string{"10:00", "10:10", "10:20", "10:30"} {
		appt, err := e.scheduling.BookAppointment(ctx, scheduling.BookingRequest{PatientID: p.ID, DoctorID: doc.ID, Date: e.today().AddDate(0, 0, i), TimeSlot: slot})
		if err != nil {
			t.Fatalf("book %s: %v", slot, err)
		}

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errs[0] = e.scheduling.UpdateStatus(ctx, scheduling.StatusUpdate{AppointmentID: appt.ID, Status: "completed"})
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = e.scheduling.CancelAppointment(ctx, p.ID, appt.ID)
		}()
		wg.Wait()

		if (errs[0] == nil) == (errs[1] == nil) {
			t.Fatalf("%s: expected exactly one winner, got %v", slot, errs)
		}
		var status string
		var trackerStatus string
		var active bool
		if err := pool.QueryRow(ctx, `
			SELECT a.status, t.status, t.is_active FROM appointment a
			JOIN live_tracker t ON t.appointment_id = a.id WHERE a.id = $1`, appt.ID).Scan(&status, &trackerStatus, &active); err != nil {
			t.Fatal(err)
		}
		want := "completed"
		if errs[0] != nil {
			want = "cancelled"
		}
		if status != want || trackerStatus != want || active {
			t.Errorf("%s: want %s, got appointment %s tracker %s active %v", slot, want, status, trackerStatus, active)
		}
	}
}

func TestSweepStaleTrackers(t *testing.T) {
	pool := requireDB(t)
	e := newEnv(t, pool)
	ctx := context.Background()
	doc := e.doctor(t)
	p := e.patient(t, "+919800000401")

	if _, err := e.scheduling.BookAppointment(ctx, scheduling.BookingRequest{PatientID: p.ID, DoctorID: doc.ID, Date: e.today(), TimeSlot: "09:30"}); err != nil {
		t.Fatal(err)
	}
	if n, err := e.scheduling.SweepStaleTrackers(ctx); err != nil || n != 0 {
		t.Fatalf("expected nothing to sweep today, got %d %v", n, err)
	}

	e.now = e.now.AddDate(0, 0, 1)
	n, err := e.scheduling.SweepStaleTrackers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 stale tracker, got %d", n)
	}
}

func TestPhoneUniqueness(t *testing.T) {
	pool := requireDB(t)
	repo := identity.NewPatientRepoPG(pool)
	ctx := context.Background()
	if err := repo.Create(ctx, &identity.Patient{Phone: "+919800000501"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, &identity.Patient{Phone: "+919800000501"}); !errors.Is(err, identity.ErrPhoneTaken) {
		t.Fatalf("expected ErrPhoneTaken, got %v", err)
	}
}
