package nurse

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
	api.GET("/nurses/nearby", h.FindNearby)
	api.GET("/nurses/:id", h.Get)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.GET("/nurses", h.List)
	adminGroup.POST("/nurses", h.Create)

	selfGroup := api.Group("", auth.RequireRole(auth.RoleNurse, auth.RoleAdmin))
	selfGroup.PUT("/nurses/:id", h.Update)
	selfGroup.PUT("/nurses/:id/availability", h.SetAvailability)
	selfGroup.PUT("/nurses/:id/location", h.UpdateLocation)
}

func httpError(err error) *echo.HTTPError {
	return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
}

// requireSelfOrAdmin allows a nurse to touch only their own profile; admins
// may touch any.
func requireSelfOrAdmin(c echo.Context, id uuid.UUID) error {
	ctx := c.Request().Context()
	if auth.RoleFromContext(ctx) == auth.RoleAdmin {
		return nil
	}
	if auth.ActorIDFromContext(ctx) != id.String() {
		return echo.NewHTTPError(http.StatusForbidden, "cannot modify another nurse's profile")
	}
	return nil
}

func (h *Handler) Create(c echo.Context) error {
	var n Nurse
	if err := c.Bind(&n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &n); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	n, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := requireSelfOrAdmin(c, id); err != nil {
		return err
	}
	var n Nurse
	if err := c.Bind(&n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n.ID = id
	if err := h.svc.Update(c.Request().Context(), &n); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) SetAvailability(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := requireSelfOrAdmin(c, id); err != nil {
		return err
	}
	var body struct {
		Available bool `json:"available"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetAvailability(c.Request().Context(), id, body.Available); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"available": body.Available})
}

func (h *Handler) UpdateLocation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := requireSelfOrAdmin(c, id); err != nil {
		return err
	}
	var p geo.Point
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UpdateLocation(c.Request().Context(), id, p); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) FindNearby(c echo.Context) error {
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

	var filters SearchFilters
	filters.Category = c.QueryParam("category")
	if v := c.QueryParam("max_price"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid max_price")
		}
		filters.MaxPrice = &p
	}
	if v := c.QueryParam("min_rating"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid min_rating")
		}
		filters.MinRating = &r
	}

	pg := pagination.FromContext(c)
	items, err := h.svc.FindNearby(c.Request().Context(), geo.Point{Latitude: lat, Longitude: lng}, radius, filters, pg.Limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "count": len(items)})
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
