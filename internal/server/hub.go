package server

import (
	"log"
	"sync"

	"github.com/onlinex/onlinex/internal/stats"
)

// Hub fans payloads out to the connections registered under a group key.
// Room channels register every member under the room code; agent channels
// register a single connection under the conversation id. The hub holds no
// durable state, it is rebuilt empty on process start.
type Hub struct {
	log   *log.Logger
	stats stats.StatsProvider

	mu     sync.Mutex
	groups map[string]map[*Client]struct{}
}

func NewHub(logger *log.Logger, st stats.StatsProvider) *Hub {
	return &Hub{
		log:    logger,
		stats:  st,
		groups: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(key string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[key]
	if !ok {
		group = make(map[*Client]struct{})
		h.groups[key] = group
		h.stats.Incr(stats.RoomsLoaded)
	}

	if _, ok := group[c]; ok {
		return
	}

	group[c] = struct{}{}
	h.stats.Incr(stats.Connections)
}

// Unregister removes c from the group and prunes the group when it empties.
// Removing a client that was never registered is a no-op.
func (h *Hub) Unregister(key string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[key]
	if !ok {
		return
	}

	if _, ok := group[c]; !ok {
		return
	}

	delete(group, c)
	h.stats.Decr(stats.Connections)

	if len(group) == 0 {
		delete(h.groups, key)
		h.stats.Decr(stats.RoomsLoaded)
	}
}

// Broadcast delivers payload to every connection registered under key and
// returns the number of deliveries. A client whose send buffer is full is
// dropped from the group and closed; the rest still receive the payload.
func (h *Hub) Broadcast(key string, payload []byte) int {
	h.mu.Lock()

	group, ok := h.groups[key]
	if !ok {
		h.mu.Unlock()
		return 0
	}

	var delivered int
	var dropped []*Client
	for c := range group {
		if c.queueMessage(payload) {
			delivered++
			continue
		}

		h.log.Printf("dropping slow connection from group %q", key)
		delete(group, c)
		h.stats.Decr(stats.Connections)
		dropped = append(dropped, c)
	}

	if len(group) == 0 {
		delete(h.groups, key)
		h.stats.Decr(stats.RoomsLoaded)
	}
	h.mu.Unlock()

	// closed outside the lock: closing triggers the client's teardown, which
	// re-enters the hub to unregister
	for _, c := range dropped {
		c.closeClient()
	}

	return delivered
}

// Send delivers payload to the single connection registered under key.
// It reports whether a delivery happened.
func (h *Hub) Send(key string, payload []byte) bool {
	return h.Broadcast(key, payload) > 0
}

// GroupSize reports the number of connections currently registered under key.
func (h *Hub) GroupSize(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.groups[key])
}
