// Package ws is the client-facing transport: one persistent websocket
// connection per client, JSON frames named after the operation they
// carry. It maps inbound messages onto the session registry, the room
// directory and the reservation manager, and owns nothing itself.
package ws

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openvenue/seatfloor/internal/fanout"
	"github.com/openvenue/seatfloor/internal/models"
	"github.com/openvenue/seatfloor/internal/registry"
	"github.com/openvenue/seatfloor/internal/reservation"
	"github.com/openvenue/seatfloor/internal/room"
	"github.com/openvenue/seatfloor/pkg/logger"
)

type Server struct {
	upgrader websocket.Upgrader
	reg      *registry.Registry
	rooms    *room.Directory
	resv     *reservation.Manager
	fan      *fanout.Fanout
	l        logger.Logger
}

func NewServer(
	reg *registry.Registry,
	rooms *room.Directory,
	resv *reservation.Manager,
	fan *fanout.Fanout,
	l logger.Logger,
) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The seat map is public; admission control happens per
			// event room, not at the socket boundary.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		reg:   reg,
		rooms: rooms,
		resv:  resv,
		fan:   fan,
		l:     l,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.l.Warnf(ctx, "ws.Server.ServeHTTP: upgrade failed: %v", err)
		return
	}

	sessionID := uuid.New().String()
	ss, err := s.reg.Create(ctx, sessionID)
	if err != nil {
		s.l.Errorf(ctx, "ws.Server.ServeHTTP: %v", err)
		conn.Close()
		return
	}

	c := newClient(sessionID, conn)
	s.fan.Register(sessionID, c)

	s.l.Infof(ctx, "Client connected: %s (total: %d)", sessionID, s.reg.Count())

	go c.writePump(ctx, s.l)
	c.readPump(ctx, func(msg models.ClientMessage) {
		s.dispatch(ctx, ss, msg)
	}, s.l)

	// The read pump returned: the connection is gone. Cleanup order is
	// release-before-room-exit-before-destroy.
	c.close()
	s.fan.Unregister(sessionID)
	s.resv.HandleDisconnect(ctx, sessionID)

	s.l.Infof(ctx, "Client disconnected: %s (total: %d)", sessionID, s.reg.Count())
}
