// README: One websocket connection: read pump for inbound messages, write pump for outbound.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"herodispatch/internal/modules/location"
	"herodispatch/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID types.ID
	send   chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, userID types.ID) *client {
	return &client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// enqueue never blocks. A client that cannot keep up is disconnected.
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.close()
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *client) readPump(ctx context.Context) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug().Err(err).Str("user_id", c.userID.String()).Msg("websocket read failed")
			}
			return
		}
		c.handle(ctx, raw)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *client) handle(ctx context.Context, raw []byte) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		c.reply(control{Event: EventError, Message: "invalid message format"})
		return
	}

	switch in.Type {
	case TypeJoin, TypeLeave:
		var req roomRequest
		if err := json.Unmarshal(in.Data, &req); err != nil || req.IncidentID == "" {
			c.reply(control{Event: EventError, Message: "incident_id is required"})
			return
		}
		if in.Type == TypeJoin {
			c.hub.join(c, req.IncidentID)
			c.reply(control{Event: EventJoined, IncidentID: req.IncidentID})
		} else {
			c.hub.leave(c, req.IncidentID)
			c.reply(control{Event: EventLeft, IncidentID: req.IncidentID})
		}

	case TypeLocationUpdate:
		var u locationUpdate
		if err := json.Unmarshal(in.Data, &u); err != nil {
			c.reply(control{Event: EventError, Message: "invalid location update"})
			return
		}
		if c.hub.pings == nil {
			c.reply(control{Event: EventError, Message: "location tracking unavailable"})
			return
		}
		if !c.hub.limiter.Allow(c.userID.String()) {
			c.reply(control{Event: EventError, IncidentID: u.IncidentID, Message: "rate limit exceeded"})
			return
		}
		_, err := c.hub.pings.Ping(ctx, location.Ping{
			IncidentID: u.IncidentID,
			HelperID:   c.userID,
			Position:   types.Point{Lat: u.Lat, Lng: u.Lng},
		})
		switch {
		case err == nil:
		case errors.Is(err, location.ErrInvalidPing), errors.Is(err, location.ErrNotCommitted),
			errors.Is(err, location.ErrClosed):
			c.reply(control{Event: EventError, IncidentID: u.IncidentID, Message: err.Error()})
		default:
			c.hub.logger.Warn().Err(err).
				Str("incident_id", u.IncidentID.String()).
				Str("responder_id", c.userID.String()).
				Msg("location update failed")
			c.reply(control{Event: EventError, IncidentID: u.IncidentID, Message: "location update failed"})
		}

	default:
		c.reply(control{Event: EventError, Message: "unknown message type"})
	}
}

func (c *client) reply(msg control) {
	c.enqueue(encodeControl(msg))
}
