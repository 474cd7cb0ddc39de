package eligibility

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/eligibility/check", h.CheckAsync)
	api.POST("/eligibility/check-sync", h.CheckSync)
	api.GET("/appointments/:id/eligibility", h.Latest)
	api.GET("/appointments/:id/eligibility/history", h.History)
}

func (h *Handler) bindRequest(c echo.Context) (*CheckRequest, error) {
	var req CheckRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.AppointmentID == uuid.Nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "appointment_id is required")
	}
	return &req, nil
}

// CheckAsync accepts the check for background processing.
func (h *Handler) CheckAsync(c echo.Context) error {
	req, err := h.bindRequest(c)
	if err != nil {
		return err
	}
	res, err := h.svc.EnqueueCheck(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"appointment_id": req.AppointmentID.String(),
		"job_id":         res.JobID,
		"status":         "queued",
	})
}

// CheckSync runs the adapter inline and returns the recorded response with a
// mismatch flag. One attempt only; the async path owns retries.
func (h *Handler) CheckSync(c echo.Context) error {
	req, err := h.bindRequest(c)
	if err != nil {
		return err
	}
	resp, followup, err := h.svc.Check(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"response":         resp,
		"followup_created": followup,
	})
}

func (h *Handler) Latest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	resp, err := h.svc.Latest(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNoResponse) {
			return echo.NewHTTPError(http.StatusNotFound, "no eligibility response for appointment")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) History(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.History(c.Request().Context(), id, 50)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items, "count": len(items)})
}
