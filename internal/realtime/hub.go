package realtime

import (
	"encoding/json"

	"musicroom/internal/metrics"
)

// Hub owns the connected clients. Broadcast messages reach everyone;
// messages addressed to a user reach only that user's sockets.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Clients indexed by authenticated user id.
	byUser map[string]map[*Client]bool

	// Inbound messages from Redis.
	broadcast chan []byte

	register   chan *Client
	unregister chan *Client

	metrics *metrics.Metrics
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		byUser:     make(map[string]map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		metrics:    m,
	}
}

// Dispatch queues a raw message for routing.
func (h *Hub) Dispatch(msg []byte) {
	h.broadcast <- msg
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			if client.userID != "" {
				if h.byUser[client.userID] == nil {
					h.byUser[client.userID] = make(map[*Client]bool)
				}
				h.byUser[client.userID][client] = true
			}
			h.metrics.ClientConnected()

		case client := <-h.unregister:
			h.drop(client)

		case message := <-h.broadcast:
			h.route(message)
		}
	}
}

func (h *Hub) route(message []byte) {
	var envelope struct {
		UserID string `json:"userId"`
	}
	// Payloads that are not JSON objects are plain broadcasts.
	_ = json.Unmarshal(message, &envelope)

	if envelope.UserID == "" {
		h.metrics.Routed("broadcast")
		for client := range h.clients {
			h.deliver(client, message)
		}
		return
	}

	h.metrics.Routed("user")
	for client := range h.byUser[envelope.UserID] {
		h.deliver(client, message)
	}
}

func (h *Hub) deliver(client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	if set := h.byUser[client.userID]; set != nil {
		delete(set, client)
		if len(set) == 0 {
			delete(h.byUser, client.userID)
		}
	}
	close(client.send)
	_ = client.conn.Close()
	h.metrics.ClientDisconnected()
}
