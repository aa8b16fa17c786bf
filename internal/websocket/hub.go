package websocket

import (
	"context"
	"sync"

	"github.com/askwhyharsh/nearcontacts/pkg/logger"
)

type envelope struct {
	sessionID string
	message   *Message
}

// Hub tracks the connected clients of every session. A device may hold more
// than one connection, each gets every message for its session.
type Hub struct {
	clients map[string]map[*Client]struct{}
	publish chan envelope
	logger  logger.Logger
	mu      sync.RWMutex
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		publish: make(chan envelope, 256),
		logger:  log,
	}
}

// Run fans published messages out to clients. It blocks until ctx is
// cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case env := <-h.publish:
			h.deliver(env)
		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

// Publish queues msg for every client of sessionID. It never blocks; when
// the queue is full the message is dropped and the next ranking replaces it.
func (h *Hub) Publish(sessionID string, msg *Message) {
	select {
	case h.publish <- envelope{sessionID: sessionID, message: msg}:
	default:
		h.logger.Warn("Publish queue full, dropping message", "session_id", sessionID, "type", msg.Type)
	}
}

// sendDirect delivers to one client if it is still registered. Channels are
// only closed under the write lock, so the send cannot hit a closed channel.
func (h *Hub) sendDirect(client *Client, msg *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[client.sessionID][client]; !ok {
		return
	}
	select {
	case client.send <- msg:
	default:
	}
}

func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// register is synchronous so a message sent right after it is not lost.
func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[client.sessionID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[client.sessionID] = set
	}
	set[client] = struct{}{}

	h.logger.Debug("WebSocket client registered", "session_id", client.sessionID, "connections", len(set))
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	set, ok := h.clients[client.sessionID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}

	delete(set, client)
	close(client.send)
	if len(set) == 0 {
		delete(h.clients, client.sessionID)
	}
}

func (h *Hub) deliver(env envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients[env.sessionID] {
		select {
		case client.send <- env.message:
		default:
			// Client's send channel is full, drop it
			h.removeLocked(client)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, set := range h.clients {
		for client := range set {
			close(client.send)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
}
