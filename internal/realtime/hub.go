// README: Websocket hub with per-user and per-incident rooms; a notify transport.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"herodispatch/internal/metrics"
	"herodispatch/internal/modules/location"
	"herodispatch/internal/modules/notify"
	"herodispatch/internal/ratelimit"
	"herodispatch/internal/types"
)

// PingHandler receives location updates sent over the socket.
type PingHandler interface {
	Ping(ctx context.Context, p location.Ping) (location.Ping, error)
}

type Hub struct {
	pings    PingHandler
	limiter  *ratelimit.Keyed
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	users map[types.ID]map[*client]struct{}
	rooms map[types.ID]map[*client]struct{}
}

// NewHub builds a hub. limiter is shared with the HTTP ping route so a
// helper gets one budget across both; nil disables limiting.
func NewHub(pings PingHandler, limiter *ratelimit.Keyed, logger zerolog.Logger) *Hub {
	return &Hub{
		pings:   pings,
		limiter: limiter,
		logger:  logger.With().Str("component", "realtime").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		users: make(map[types.ID]map[*client]struct{}),
		rooms: make(map[types.ID]map[*client]struct{}),
	}
}

// Serve upgrades the request and runs the connection for an authenticated
// user until it closes or ctx is done.
func (h *Hub) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, userID types.ID) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("realtime.Serve: %w", err)
	}

	c := newClient(h, conn, userID)
	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-c.done:
		}
	}()
	c.reply(control{Event: EventConnected, UserID: userID})
	c.readPump(ctx)
	return nil
}

// Run closes every connection once ctx is done. http.Server.Shutdown does
// not touch hijacked connections.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()

	h.mu.RLock()
	var all []*client
	for _, set := range h.users {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		c.close()
	}
	return nil
}

// Deliver implements notify.Transport. Recipients without an open
// connection are skipped.
func (h *Hub) Deliver(_ context.Context, env notify.Envelope) error {
	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("realtime.Deliver: %w", err)
	}

	h.mu.RLock()
	var targets map[*client]struct{}
	switch env.Recipient.Audience {
	case notify.AudienceUser:
		targets = h.users[env.Recipient.ID]
	case notify.AudienceIncident:
		targets = h.rooms[env.Recipient.ID]
	}
	clients := make([]*client, 0, len(targets))
	for c := range targets {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.enqueue(msg) {
			metrics.Notifications.WithLabelValues(env.Event.Kind(), metrics.OutcomeDropped).Inc()
		}
	}
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	addTo(h.users, c.userID, c)
	metrics.RealtimeConnections.Inc()
}

func (h *Hub) unregister(c *client) {
	c.close()

	h.mu.Lock()
	defer h.mu.Unlock()
	removeFrom(h.users, c.userID, c)
	for id := range h.rooms {
		removeFrom(h.rooms, id, c)
	}
	metrics.RealtimeConnections.Dec()
}

func (h *Hub) join(c *client, incidentID types.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	addTo(h.rooms, incidentID, c)
}

func (h *Hub) leave(c *client, incidentID types.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	removeFrom(h.rooms, incidentID, c)
}

// Connections reports how many sockets the user has open.
func (h *Hub) Connections(userID types.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

func addTo(m map[types.ID]map[*client]struct{}, id types.ID, c *client) {
	set, ok := m[id]
	if !ok {
		set = make(map[*client]struct{})
		m[id] = set
	}
	set[c] = struct{}{}
}

func removeFrom(m map[types.ID]map[*client]struct{}, id types.ID, c *client) {
	set, ok := m[id]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(m, id)
	}
}
