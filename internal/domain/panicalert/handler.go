package panicalert

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/homecare/homecare/internal/platform/apperror"
	"github.com/homecare/homecare/internal/platform/auth"
	"github.com/homecare/homecare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/panic-alerts", h.Trigger, auth.RequireRole(auth.RoleNurse))
	api.POST("/panic-alerts/:id/cancel", h.Cancel, auth.RequireRole(auth.RoleNurse))

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.GET("/panic-alerts", h.List)
	adminGroup.GET("/panic-alerts/:id", h.Get)
	adminGroup.GET("/panic-alerts/:id/timeline", h.Timeline)
	adminGroup.POST("/panic-alerts/:id/acknowledge", h.Acknowledge)
	adminGroup.POST("/panic-alerts/:id/status", h.UpdateStatus)
}

func httpError(err error) *echo.HTTPError {
	return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
}

func (h *Handler) Trigger(c echo.Context) error {
	nurseID, err := uuid.Parse(auth.ActorIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "actor id is not a uuid")
	}
	var in TriggerInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	alert, err := h.svc.Trigger(c.Request().Context(), nurseID, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, alert)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	nurseID, err := uuid.Parse(auth.ActorIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "actor id is not a uuid")
	}
	alert, err := h.svc.Cancel(c.Request().Context(), id, nurseID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, alert)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	alert, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, alert)
}

func (h *Handler) List(c echo.Context) error {
	var status *Status
	if v := c.QueryParam("status"); v != "" {
		s := Status(v)
		if !s.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		status = &s
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), status, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Timeline(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.Timeline(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Acknowledge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	alert, err := h.svc.Acknowledge(c.Request().Context(), id, auth.ActorIDFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, alert)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Status Status  `json:"status"`
		Note   *string `json:"note,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	alert, err := h.svc.UpdateStatus(c.Request().Context(), id, auth.IdentityFromContext(c.Request().Context()), body.Status, body.Note)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, alert)
}
