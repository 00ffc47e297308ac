package tracker

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/castmir/vaultmesh/internal/logging"
	"github.com/castmir/vaultmesh/internal/transport"
)

// Server exposes the hub over a websocket endpoint. Peers connect to
// GET /ws?app=<app>&room=<room>&peer=<peer> and stay on the socket for
// the lifetime of their room membership.
type Server struct {
	hub      *Hub
	appID    string
	upgrader websocket.Upgrader
	log      logging.Logger
}

// NewServer builds a server for one application id. An empty appID
// accepts any client, which is only useful in tests.
func NewServer(appID string, log logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	return &Server{
		hub:   NewHub(log),
		appID: appID,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register mounts the websocket and health endpoints on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/ws", s.handleWS)
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func (s *Server) handleWS(c echo.Context) error {
	app := c.QueryParam("app")
	roomID := c.QueryParam("room")
	peerID := c.QueryParam("peer")

	if s.appID != "" && app != s.appID {
		return echo.NewHTTPError(http.StatusForbidden, "unknown app")
	}
	if roomID == "" || peerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "room and peer are required")
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := newClient(peerID, conn)
	go cl.writePump()
	s.hub.Join(roomID, cl)
	defer func() {
		s.hub.Leave(roomID, cl)
		cl.shutdown()
	}()

	for {
		var f transport.Frame
		if err := conn.ReadJSON(&f); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				s.log.Debug(c.Request().Context(), "read failed", "peer", peerID, "error", err)
			}
			return nil
		}
		switch f.Type {
		case transport.FrameJoin:
			// Membership was established at upgrade time.
		case transport.FrameAction:
			s.hub.Relay(roomID, cl, f)
		case transport.FrameLeave:
			return nil
		}
	}
}
