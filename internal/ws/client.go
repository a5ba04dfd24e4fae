package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openvenue/seatfloor/internal/models"
	"github.com/openvenue/seatfloor/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// client is one live websocket connection. It implements fanout.Sink:
// outbound frames go through a buffered channel drained by the write
// pump, so broadcasts never block on a slow consumer.
type client struct {
	sessionID string
	conn      *websocket.Conn
	send      chan models.ServerMessage

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(sessionID string, conn *websocket.Conn) *client {
	return &client{
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan models.ServerMessage, sendBufferSize),
		done:      make(chan struct{}),
	}
}

// Send queues a frame for delivery. A consumer too slow to keep its
// buffer drained is disconnected rather than allowed to stall broadcasts.
func (c *client) Send(msg models.ServerMessage) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.close()
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *client) writePump(ctx context.Context, l logger.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				l.Debugf(ctx, "ws.client.writePump: %s: %v", c.sessionID, err)
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// readPump delivers inbound frames to handle until the connection drops.
// It runs on the connection's HTTP handler goroutine.
func (c *client) readPump(ctx context.Context, handle func(models.ClientMessage), l logger.Logger) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.Debugf(ctx, "ws.client.readPump: %s: %v", c.sessionID, err)
			}
			return
		}

		var msg models.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			l.Warnf(ctx, "ws.client.readPump: %s: malformed frame: %v", c.sessionID, err)
			continue
		}

		handle(msg)
	}
}
