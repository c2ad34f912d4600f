package identity

import (
	"net/http"

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

// RegisterRoutes mounts the OTP flow and doctor directory on public and
// the profile and admin routes on api. otpMiddleware wraps only the OTP
// endpoints.
func (h *Handler) RegisterRoutes(public, api *echo.Group, otpMiddleware ...echo.MiddlewareFunc) {
	otp := public.Group("/auth/otp", otpMiddleware...)
	otp.POST("/request", h.RequestOTP)
	otp.POST("/verify", h.VerifyOTP)

	public.GET("/doctors", h.ListDoctors)
	public.GET("/doctors/:id", h.GetDoctor)

	patient := api.Group("/patients", auth.RequireRole(auth.RolePatient))
	patient.GET("/me", h.GetMe)
	patient.PUT("/me/profile", h.CompleteProfile)

	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/doctors", h.CreateDoctor)
	admin.PATCH("/doctors/:id", h.UpdateDoctor)
}

type otpRequest struct {
	Phone string `json:"phone" validate:"required"`
}

type verifyRequest struct {
	Phone string `json:"phone" validate:"required"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type profileRequest struct {
	Name   string `json:"name" validate:"required,max=100"`
	Age    *int   `json:"age" validate:"required,min=0,max=150"`
	Gender string `json:"gender" validate:"required,oneof=male female other"`
}

type doctorRequest struct {
	Name           string `json:"name" validate:"required,max=100"`
	Specialization string `json:"specialization" validate:"required,max=100"`
	WorkStart      string `json:"work_start" validate:"omitempty,hhmm"`
	WorkEnd        string `json:"work_end" validate:"omitempty,hhmm"`
	IsActive       *bool  `json:"is_active"`
}

type doctorPatch struct {
	Name           *string `json:"name" validate:"omitempty,max=100"`
	Specialization *string `json:"specialization" validate:"omitempty,max=100"`
	WorkStart      *string `json:"work_start" validate:"omitempty,hhmm"`
	WorkEnd        *string `json:"work_end" validate:"omitempty,hhmm"`
	IsActive       *bool   `json:"is_active"`
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

func (h *Handler) RequestOTP(c echo.Context) error {
	var req otpRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	res, err := h.svc.RequestOTP(c.Request().Context(), req.Phone)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusAccepted, res)
}

func (h *Handler) VerifyOTP(c echo.Context) error {
	var req verifyRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	sess, err := h.svc.VerifyOTP(c.Request().Context(), req.Phone, req.Code)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) GetMe(c echo.Context) error {
	id, err := auth.SubjectUUID(c.Request().Context())
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CompleteProfile(c echo.Context) error {
	id, err := auth.SubjectUUID(c.Request().Context())
	if err != nil {
		return err
	}
	var req profileRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	p, err := h.svc.CompleteProfile(c.Request().Context(), id, ProfileUpdate{
		Name:   req.Name,
		Age:    *req.Age,
		Gender: req.Gender,
	})
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := DoctorFilter{
		ActiveOnly:     c.QueryParam("all") != "true",
		Specialization: c.QueryParam("specialization"),
	}
	items, total, err := h.svc.ListDoctors(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*Doctor{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithNext(c.Request().URL.Path, c.QueryParams()))
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) CreateDoctor(c echo.Context) error {
	var req doctorRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	d := &Doctor{
		Name:           req.Name,
		Specialization: req.Specialization,
		WorkStart:      req.WorkStart,
		WorkEnd:        req.WorkEnd,
		IsActive:       true,
	}
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}
	if err := h.svc.CreateDoctor(c.Request().Context(), d); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req doctorPatch
	if err := bindValid(c, &req); err != nil {
		return err
	}
	d, err := h.svc.UpdateDoctor(c.Request().Context(), id, DoctorUpdate{
		Name:           req.Name,
		Specialization: req.Specialization,
		WorkStart:      req.WorkStart,
		WorkEnd:        req.WorkEnd,
		IsActive:       req.IsActive,
	})
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}
