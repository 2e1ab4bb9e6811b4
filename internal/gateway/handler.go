package gateway

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/homecare/homecare/internal/platform/realtime"
)

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Conn abstracts the WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// RegisterRoutes mounts the WebSocket endpoint.
func (g *Gateway) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", g.HandleConnect)
}

// HandleConnect authenticates the handshake and upgrades to WebSocket. A bad
// or missing token rejects the handshake before the upgrade.
func (g *Gateway) HandleConnect(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		token = strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	}
	identity, err := g.verifier.Verify(token)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	conn := &realtime.Connection{
		ID:      uuid.New().String(),
		ActorID: identity.ActorID,
		Role:    identity.Role,
		Send:    make(chan []byte, 256),
	}
	g.hub.Attach(conn)
	g.logger.Debug().Str("actor_id", identity.ActorID).Str("role", string(identity.Role)).Str("conn_id", conn.ID).Msg("connection established")

	go g.writePump(conn, &gorillaConn{ws})
	go g.readPump(c, conn, &gorillaConn{ws})

	return nil
}

// readPump reads client frames until the connection drops, then detaches the
// connection, which clears room memberships and presence in one step.
func (g *Gateway) readPump(c echo.Context, conn *realtime.Connection, ws Conn) {
	defer func() {
		g.hub.Detach(conn.ID)
		ws.Close()
		g.logger.Debug().Str("actor_id", conn.ActorID).Str("conn_id", conn.ID).Msg("connection closed")
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		g.HandleFrame(c.Request().Context(), conn, message)
	}
}

// writePump drains the send channel to the socket. It exits when Detach
// closes the channel or the socket write fails.
func (g *Gateway) writePump(conn *realtime.Connection, ws Conn) {
	defer ws.Close()
	for message := range conn.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
}

type gorillaConn struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConn) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConn) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConn) Close() error {
	return a.conn.Close()
}
