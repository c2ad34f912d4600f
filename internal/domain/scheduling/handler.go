package scheduling

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Nishal77/QueueManagement-sub000/internal/platform/apperr"
	"github.com/Nishal77/QueueManagement-sub000/internal/platform/auth"
	"github.com/Nishal77/QueueManagement-sub000/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the slot lookup on public and everything else on
// api, which must already require authentication.
func (h *Handler) RegisterRoutes(public, api *echo.Group) {
	public.GET("/doctors/:id/slots", h.GetAvailableSlots)

	patient := api.Group("", auth.RequireRole(auth.RolePatient))
	patient.POST("/appointments", h.BookAppointment)
	patient.GET("/appointments", h.ListAppointments)
	patient.GET("/appointments/current", h.GetCurrentStatus)
	patient.GET("/appointments/:id", h.GetAppointment)
	patient.POST("/appointments/:id/cancel", h.CancelAppointment)

	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.PATCH("/appointments/:id/status", h.UpdateStatus)
	doctor.GET("/doctors/:id/queue", h.GetDoctorQueue)
	doctor.GET("/doctors/:id/queue/next", h.GetNextPatient)
	doctor.POST("/doctors/:id/queue/compact", h.CompactQueue)
	doctor.GET("/doctors/:id/stats", h.GetDoctorStats)
}

type bookRequest struct {
	DoctorID        string  `json:"doctor_id" validate:"required,uuid"`
	AppointmentDate string  `json:"appointment_date" validate:"required"`
	TimeSlot        string  `json:"time_slot" validate:"required,hhmm"`
	Notes           *string `json:"notes" validate:"omitempty,max=500"`
}

type statusRequest struct {
	Status string  `json:"status" validate:"required"`
	Notes  *string `json:"notes" validate:"omitempty,max=500"`
}

type compactRequest struct {
	RemovedQueueNumber int    `json:"removed_queue_number" validate:"required,min=1"`
	Date               string `json:"date"`
}

func bindValid(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return apperr.HTTPError(err)
	}
	return nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// doctorParam parses :id and checks that a doctor only reaches their own
// queue. Admins reach every queue.
func doctorParam(c echo.Context) (uuid.UUID, error) {
	id, err := parseID(c)
	if err != nil {
		return uuid.Nil, err
	}
	ctx := c.Request().Context()
	if auth.HasRole(ctx, auth.RoleAdmin) || auth.UserIDFromContext(ctx) == id.String() {
		return id, nil
	}
	return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "access to another doctor's queue")
}

// optionalDate parses v, returning nil when it is empty.
func (h *Handler) optionalDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	d, err := h.svc.ParseDate(v)
	if err != nil {
		return nil, apperr.HTTPError(err)
	}
	return &d, nil
}

func (h *Handler) GetAvailableSlots(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	date, err := h.optionalDate(c.QueryParam("date"))
	if err != nil {
		return err
	}
	day := h.svc.Today()
	if date != nil {
		day = *date
	}
	slots, err := h.svc.GetAvailableSlots(c.Request().Context(), id, day)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"doctor_id": id,
		"date":      day.Format(dateLayout),
		"slots":     slots,
	})
}

func (h *Handler) BookAppointment(c echo.Context) error {
	patientID, err := auth.SubjectUUID(c.Request().Context())
	if err != nil {
		return err
	}
	var req bookRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	date, err := h.svc.ParseDate(req.AppointmentDate)
	if err != nil {
		return apperr.HTTPError(err)
	}
	appt, err := h.svc.BookAppointment(c.Request().Context(), BookingRequest{
		PatientID: patientID,
		DoctorID:  uuid.MustParse(req.DoctorID),
		Date:      date,
		TimeSlot:  req.TimeSlot,
		Notes:     req.Notes,
	})
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	patientID, err := auth.SubjectUUID(c.Request().Context())
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatientAppointments(c.Request().Context(), patientID, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithNext(c.Request().URL.Path, c.QueryParams()))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	patientID, err := auth.SubjectUUID(c.Request().Context())
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.GetAppointment(c.Request().Context(), patientID, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) GetCurrentStatus(c echo.Context) error {
	patientID, err := auth.SubjectUUID(c.Request().Context())
	if err != nil {
		return err
	}
	st, err := h.svc.GetCurrentStatus(c.Request().Context(), patientID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"current": st})
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	patientID, err := auth.SubjectUUID(c.Request().Context())
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.CancelAppointment(c.Request().Context(), patientID, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	upd := StatusUpdate{AppointmentID: id, Status: req.Status, Notes: req.Notes}
	ctx := c.Request().Context()
	if !auth.HasRole(ctx, auth.RoleAdmin) {
		doctorID, err := auth.SubjectUUID(ctx)
		if err != nil {
			return err
		}
		upd.DoctorID = &doctorID
	}
	appt, err := h.svc.UpdateStatus(ctx, upd)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) GetDoctorQueue(c echo.Context) error {
	id, err := doctorParam(c)
	if err != nil {
		return err
	}
	date, err := h.optionalDate(c.QueryParam("date"))
	if err != nil {
		return err
	}
	entries, err := h.svc.GetDoctorQueue(c.Request().Context(), id, date)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"doctor_id": id,
		"count":     len(entries),
		"entries":   entries,
	})
}

func (h *Handler) GetNextPatient(c echo.Context) error {
	id, err := doctorParam(c)
	if err != nil {
		return err
	}
	date, err := h.optionalDate(c.QueryParam("date"))
	if err != nil {
		return err
	}
	next, err := h.svc.GetNextPatient(c.Request().Context(), id, date)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"next": next})
}

func (h *Handler) CompactQueue(c echo.Context) error {
	id, err := doctorParam(c)
	if err != nil {
		return err
	}
	var req compactRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	date, err := h.optionalDate(req.Date)
	if err != nil {
		return err
	}
	n, err := h.svc.CompactQueue(c.Request().Context(), id, date, req.RemovedQueueNumber)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"shifted": n})
}

func (h *Handler) GetDoctorStats(c echo.Context) error {
	id, err := doctorParam(c)
	if err != nil {
		return err
	}
	from, err := h.optionalDate(c.QueryParam("from"))
	if err != nil {
		return err
	}
	to, err := h.optionalDate(c.QueryParam("to"))
	if err != nil {
		return err
	}
	today := h.svc.Today()
	if from == nil {
		from = &today
	}
	if to == nil {
		to = from
	}
	st, err := h.svc.GetDoctorStats(c.Request().Context(), id, *from, *to)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}
