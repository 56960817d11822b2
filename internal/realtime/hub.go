package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hopround/hopround-backend/pkg/logger"
)

// Hub fans events out to the websocket clients subscribed to each route.
// A slow client loses its connection, not the whole route: sends that would
// block drop the client instead.
type Hub struct {
	mu     sync.RWMutex
	routes map[uuid.UUID]map[*Client]struct{}
	logg   *logger.Logger
}

// NewHub builds an empty hub.
func NewHub(logg *logger.Logger) *Hub {
	return &Hub{
		routes: make(map[uuid.UUID]map[*Client]struct{}),
		logg:   logg,
	}
}

// Register adds the client to its route's fan-out set.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.routes[client.routeID]
	if !ok {
		set = make(map[*Client]struct{})
		h.routes[client.routeID] = set
	}
	set[client] = struct{}{}
}

// Unregister removes the client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	set, ok := h.routes[client.routeID]
	if !ok {
		return
	}
	if _, present := set[client]; !present {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.routes, client.routeID)
	}
	client.closeSend()
}

// Broadcast delivers the event to every subscriber of the route. Clients that
// have already seen the event ID drop it silently.
func (h *Hub) Broadcast(ctx context.Context, routeID uuid.UUID, event Event) {
	data, err := marshalEventFrame(event)
	if err != nil {
		if h.logg != nil {
			h.logg.Error(ctx, "marshal realtime event", err)
		}
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.routes[routeID] {
		if client.seen.Observe(event.ID) {
			continue
		}
		if !client.trySend(data) {
			h.removeLocked(client)
		}
	}
}

// Subscribers reports the number of clients on a route.
func (h *Hub) Subscribers(routeID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.routes[routeID])
}
