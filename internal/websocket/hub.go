package websocket

import (
	"encoding/json"
	"log"
	"sync"
)

// Hub maintains the set of connected observers and fans events out to all
// of them. Every client sees every event; there is no per-client routing.
type Hub struct {
	// Registered clients map: ClientID -> Client
	clients map[string]*Client

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Outbound events for all clients
	broadcast chan []byte

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[string]*Client),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			log.Printf("🔌 Client connected: %s (%d total)", client.ID, h.Count())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				client.closeSend()
			}
			h.mu.Unlock()
			log.Printf("🔌 Client disconnected: %s (%d total)", client.ID, h.Count())

		case message := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				// Drops when the buffer is full or the client is gone,
				// rather than blocking the broadcast for everyone else.
				client.trySend(message)
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastJSON marshals an event and queues it for every connected client.
func (h *Hub) BroadcastJSON(v interface{}) {
	msg, err := json.Marshal(v)
	if err != nil {
		log.Printf("Error marshaling broadcast: %v", err)
		return
	}
	h.broadcast <- msg
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
