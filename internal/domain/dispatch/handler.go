package dispatch

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/homecare/homecare/internal/platform/apperror"
	"github.com/homecare/homecare/internal/platform/auth"
	"github.com/homecare/homecare/internal/platform/geo"
	"github.com/homecare/homecare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/requests", h.Create, auth.RequireRole(auth.RolePatient))
	api.GET("/requests", h.List)
	api.GET("/requests/nearby", h.FindPendingNearby, auth.RequireRole(auth.RoleNurse))
	api.GET("/requests/:id", h.Get)
	api.GET("/requests/:id/history", h.History)
	api.POST("/requests/:id/accept", h.Accept, auth.RequireRole(auth.RoleNurse))
	api.POST("/requests/:id/status", h.Transition)
	api.POST("/requests/:id/rating", h.Rate, auth.RequireRole(auth.RolePatient))
	api.PUT("/requests/:id/location", h.UpdateLocation, auth.RequireRole(auth.RoleNurse))
}

func httpError(err error) *echo.HTTPError {
	return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
}

func actorUUID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.ActorIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "actor id is not a uuid")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	patientID, err := actorUUID(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sr, err := h.svc.Create(c.Request().Context(), patientID, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sr)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sr, err := h.svc.Get(c.Request().Context(), id, auth.IdentityFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sr)
}

// List returns the caller's own requests: patients see what they created,
// nurses what they accepted. Admins may filter by patient_id or nurse_id.
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	identity := auth.IdentityFromContext(ctx)
	pg := pagination.FromContext(c)

	switch identity.Role {
	case auth.RolePatient:
		id, err := actorUUID(c)
		if err != nil {
			return err
		}
		items, total, err := h.svc.ListByPatient(ctx, id, pg.Limit, pg.Offset)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	case auth.RoleNurse:
		id, err := actorUUID(c)
		if err != nil {
			return err
		}
		items, total, err := h.svc.ListByNurse(ctx, id, pg.Limit, pg.Offset)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	case auth.RoleAdmin:
		if v := c.QueryParam("patient_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
			}
			items, total, err := h.svc.ListByPatient(ctx, id, pg.Limit, pg.Offset)
			if err != nil {
				return httpError(err)
			}
			return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
		}
		if v := c.QueryParam("nurse_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid nurse_id")
			}
			items, total, err := h.svc.ListByNurse(ctx, id, pg.Limit, pg.Offset)
			if err != nil {
				return httpError(err)
			}
			return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
		}
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id or nurse_id is required")
	}
	return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
}

func (h *Handler) History(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.History(c.Request().Context(), id, auth.IdentityFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Accept(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	nurseID, err := actorUUID(c)
	if err != nil {
		return err
	}
	sr, err := h.svc.Accept(c.Request().Context(), id, nurseID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sr)
}

func (h *Handler) Transition(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in TransitionInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sr, err := h.svc.Transition(c.Request().Context(), id, auth.IdentityFromContext(c.Request().Context()), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sr)
}

func (h *Handler) Rate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	patientID, err := actorUUID(c)
	if err != nil {
		return err
	}
	var body struct {
		Rating int     `json:"rating"`
		Review *string `json:"review,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Rate(c.Request().Context(), id, patientID, body.Rating, body.Review); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpdateLocation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	nurseID, err := actorUUID(c)
	if err != nil {
		return err
	}
	var body struct {
		geo.Point
		Heading *float64 `json:"heading,omitempty"`
		Speed   *float64 `json:"speed,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UpdateNurseLocation(c.Request().Context(), id, nurseID, body.Point, body.Heading, body.Speed); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) FindPendingNearby(c echo.Context) error {
	lat, err := strconv.ParseFloat(c.QueryParam("latitude"), 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid latitude")
	}
	lng, err := strconv.ParseFloat(c.QueryParam("longitude"), 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid longitude")
	}
	radius := 5.0
	if v := c.QueryParam("radius_km"); v != "" {
		if radius, err = strconv.ParseFloat(v, 64); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid radius_km")
		}
	}
	pg := pagination.FromContext(c)
	items, err := h.svc.FindPendingNearby(c.Request().Context(), geo.Point{Latitude: lat, Longitude: lng}, radius, pg.Limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "count": len(items)})
}
