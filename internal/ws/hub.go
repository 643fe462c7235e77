package ws

import (
	"context"
	"encoding/json"
	"sync"

	"marketplace/internal/domain"
	"marketplace/internal/events"
)

// Client represents a single WebSocket connection with user context.
type Client struct {
	UserID string
	Role   string
	Send   chan []byte
	Hub    *Hub
	// Types restricts delivery to these event types; empty means all.
	Types map[events.Type]bool
	// SellerID narrows a staff stream to one seller.
	SellerID string
	mu       sync.Mutex
	closed   bool
}

func (c *Client) wants(e events.Event) bool {
	if len(c.Types) > 0 && !c.Types[e.Type] {
		return false
	}
	if !isStaff(c.Role) {
		return e.SellerID != "" && c.UserID == e.SellerID
	}
	return c.SellerID == "" || c.SellerID == e.SellerID
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
	if c.Hub != nil {
		c.Hub.unregister(c)
	}
}

// Hub fans settlement and wallet events out to dashboards. Staff roles see every
// event; sellers only see events about themselves.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	byUser  map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		byUser:  make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.Hub = h
	h.clients[c] = struct{}{}
	if h.byUser[c.UserID] == nil {
		h.byUser[c.UserID] = make(map[*Client]struct{})
	}
	h.byUser[c.UserID][c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	if m := h.byUser[c.UserID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
}

// HandleEvent is an events.Handler. Slow clients drop messages rather than block delivery.
func (h *Hub) HandleEvent(ctx context.Context, e events.Event) error {
	data, err := json.Marshal(map[string]interface{}{"type": "event", "event": e})
	if err != nil {
		return err
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.wants(e) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		select {
		case c.Send <- data:
		default:
		}
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func isStaff(role string) bool {
	return role == domain.RoleAdmin || role == domain.RoleFinance
}
