package compliance

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/auth"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/middleware"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the compliance surface. Every route requires an
// OPERATIONS purpose-of-use header.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	grp := api.Group("/compliance", middleware.RequirePurpose("OPERATIONS"))
	grp.POST("/export", h.CreateExport)
	grp.POST("/pia-pack", h.CreatePIAPack)
	grp.POST("/erasure", h.CreateErasure)
	grp.GET("/requests", h.List)
	grp.GET("/requests/:id", h.Get)
	grp.GET("/audit", h.Audit)
}

type createBody struct {
	PatientID *uuid.UUID     `json:"patient_id,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Scope     string         `json:"scope,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

func (b *createBody) meta() map[string]any {
	m := map[string]any{}
	for k, v := range b.Meta {
		m[k] = v
	}
	if b.Reason != "" {
		m["reason"] = b.Reason
	}
	if b.Scope != "" {
		m["scope"] = b.Scope
	}
	return m
}

func (h *Handler) create(c echo.Context, kind string) error {
	var body createBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	req, res, err := h.svc.CreateRequest(ctx, auth.Actor(ctx), kind, body.PatientID, body.meta())
	if err != nil {
		if req != nil {
			// Row exists but the job was not accepted.
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"request_id": req.ID.String(),
		"job_id":     res.JobID,
		"status":     req.Status,
	})
}

func (h *Handler) CreateExport(c echo.Context) error {
	return h.create(c, KindExport)
}

func (h *Handler) CreatePIAPack(c echo.Context) error {
	return h.create(c, KindPIAPack)
}

func (h *Handler) CreateErasure(c echo.Context) error {
	return h.create(c, KindErasure)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	req, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "request not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), c.QueryParam("kind"), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// Audit lists audit entries with secret keys masked.
func (h *Handler) Audit(c echo.Context) error {
	limit := 200
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 2000 {
		limit = l
	}
	entries, err := h.svc.QueryAudit(c.Request().Context(), c.QueryParam("actor"), c.QueryParam("since"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"items": entries, "count": len(entries)})
}
