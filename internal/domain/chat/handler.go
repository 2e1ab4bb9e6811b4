package chat

import (
	"net/http"
	"time"

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
	api.GET("/chat/rooms", h.ListRooms)
	api.POST("/chat/rooms", h.EnsureRoom)
	api.GET("/chat/rooms/:id", h.GetRoom)
	api.GET("/chat/rooms/:id/messages", h.ListMessages)
	api.POST("/chat/rooms/:id/messages", h.Send)
	api.POST("/chat/rooms/:id/read", h.MarkRead)
	api.DELETE("/chat/messages/:id", h.DeleteMessage)
}

func httpError(err error) *echo.HTTPError {
	he := echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	return he
}

func actorUUID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.ActorIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "actor id is not a uuid")
	}
	return id, nil
}

func (h *Handler) EnsureRoom(c echo.Context) error {
	var body struct {
		RequestID uuid.UUID `json:"request_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	room, err := h.svc.EnsureRoom(c.Request().Context(), body.RequestID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, room)
}

func (h *Handler) GetRoom(c echo.Context) error {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actorID, err := actorUUID(c)
	if err != nil {
		return err
	}
	isAdmin := auth.RoleFromContext(c.Request().Context()) == auth.RoleAdmin
	room, err := h.svc.Room(c.Request().Context(), roomID, actorID, isAdmin)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, room)
}

func (h *Handler) ListRooms(c echo.Context) error {
	actorID, err := actorUUID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	rooms, total, err := h.svc.RoomsFor(c.Request().Context(), actorID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(rooms, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListMessages(c echo.Context) error {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actorID, err := actorUUID(c)
	if err != nil {
		return err
	}
	var before *time.Time
	if v := c.QueryParam("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid before timestamp")
		}
		before = &t
	}
	pg := pagination.FromContext(c)
	items, err := h.svc.Messages(c.Request().Context(), roomID, actorID, pg.Limit, before)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Send(c echo.Context) error {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actorID, err := actorUUID(c)
	if err != nil {
		return err
	}
	var in SendInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.Send(c.Request().Context(), roomID, actorID, in)
	if err != nil {
		he := httpError(err)
		if retry := apperror.RetryAfter(err); retry > 0 {
			c.Response().Header().Set("Retry-After", retry.String())
		}
		return he
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) MarkRead(c echo.Context) error {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actorID, err := actorUUID(c)
	if err != nil {
		return err
	}
	var body struct {
		MessageIDs []uuid.UUID `json:"message_ids"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.MarkRead(c.Request().Context(), roomID, actorID, body.MessageIDs); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeleteMessage(c echo.Context) error {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actorID, err := actorUUID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMessage(c.Request().Context(), messageID, actorID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
