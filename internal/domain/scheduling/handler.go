package scheduling

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Zack-y11/clinica-dental-system/pkg/pagination"
)

// Envelope is the body of every scheduling response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CheckRequest is the body of POST /appointments/check.
type CheckRequest struct {
	DoctorID    int64  `json:"doctor_id"`
	PatientID   *int64 `json:"patient_id,omitempty"`
	ScheduledAt string `json:"scheduled_at"`
	ExcludeID   *int64 `json:"exclude_id,omitempty"`
}

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/appointments", h.CreateAppointment)
	api.GET("/appointments", h.ListAppointments)
	api.POST("/appointments/check", h.CheckAvailability)
	api.GET("/appointments/:id", h.GetAppointment)
	api.PUT("/appointments/:id", h.UpdateAppointment)
	api.POST("/appointments/:id/complete", h.CompleteAppointment)
	api.POST("/appointments/:id/cancel", h.CancelAppointment)
	api.DELETE("/appointments/:id", h.DeleteAppointment)
	api.GET("/doctors/:id/agenda", h.DoctorAgenda)
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req CreateAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.CreateAppointment(c.Request().Context(), req)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, Envelope{Success: true, Data: a})
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: a})
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{Limit: pg.Limit, Offset: pg.Offset}

	var err error
	if f.PatientID, err = optionalInt64(c, "patient_id"); err != nil {
		return err
	}
	if f.DoctorID, err = optionalInt64(c, "doctor_id"); err != nil {
		return err
	}
	if raw := c.QueryParam("status"); raw != "" {
		st := Status(raw)
		f.Status = &st
	}
	if raw := c.QueryParam("date"); raw != "" {
		d, err := ParseDate(raw, h.svc.Location())
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.Date = &d
	}

	items, total, err := h.svc.ListAppointments(c.Request().Context(), f)
	if err != nil {
		return h.respondError(c, err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	page := pagination.NewResponse(items, total, pg.Limit, pg.Offset)
	page.Links = pg.Links(c.Request().URL.Path, total)
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: page})
}

// UpdateAppointment accepts validate=true, or use_rpc=true as an alias, to
// run conflict validation on a reschedule.
func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	validate := queryFlag(c, "validate") || queryFlag(c, "use_rpc")

	a, err := h.svc.UpdateAppointment(c.Request().Context(), id, req, validate)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: a})
}

func (h *Handler) CompleteAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.CompleteAppointment(c.Request().Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: a})
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.CancelAppointment(c.Request().Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: a})
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), id); err != nil {
		return h.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CheckAvailability(c echo.Context) error {
	var req CheckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	err := h.svc.CheckAvailability(c.Request().Context(), Candidate{
		DoctorID:    req.DoctorID,
		PatientID:   req.PatientID,
		ScheduledAt: req.ScheduledAt,
		ExcludeID:   req.ExcludeID,
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: map[string]bool{"available": true}})
}

func (h *Handler) DoctorAgenda(c echo.Context) error {
	doctorID, err := parseID(c)
	if err != nil {
		return err
	}
	var from, to *time.Time
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &from}, {"to", &to}} {
		raw := c.QueryParam(p.name)
		if raw == "" {
			continue
		}
		d, err := ParseDate(raw, h.svc.Location())
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		*p.dst = &d
	}

	items, err := h.svc.DoctorAgenda(c.Request().Context(), doctorID, from, to)
	if err != nil {
		return h.respondError(c, err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: items})
}

// respondError maps domain errors to HTTP statuses. Store failures are not
// described to the client.
func (h *Handler) respondError(c echo.Context, err error) error {
	var verr *ValidationError
	status := http.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.As(err, &verr):
		status, msg = http.StatusBadRequest, verr.Error()
	case errors.Is(err, ErrInvalidTimestamp):
		status, msg = http.StatusBadRequest, ErrInvalidTimestamp.Error()
	case errors.Is(err, ErrDoctorConflict):
		status, msg = http.StatusConflict, ErrDoctorConflict.Error()
	case errors.Is(err, ErrPatientConflict):
		status, msg = http.StatusConflict, ErrPatientConflict.Error()
	case errors.Is(err, ErrInvalidStatusTransition):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, ErrAppointmentNotFound):
		status, msg = http.StatusNotFound, ErrAppointmentNotFound.Error()
	case errors.Is(err, ErrStoreUnavailable):
		status, msg = http.StatusServiceUnavailable, "could not complete request"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error().
			Err(err).
			Str("method", c.Request().Method).
			Str("route", c.Path()).
			Int("status", status).
			Msg("request failed")
	}
	return c.JSON(status, Envelope{Success: false, Error: msg})
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func optionalInt64(c echo.Context, name string) (*int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &v, nil
}

func queryFlag(c echo.Context, name string) bool {
	v, _ := strconv.ParseBool(c.QueryParam(name))
	return v
}
