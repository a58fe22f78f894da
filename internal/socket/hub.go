// internal/socket/hub.go
package socket

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Cluster messages
	MessageClusterLinked MessageType = "cluster_linked"
	MessageClusterLeft   MessageType = "cluster_left"

	// System messages
	MessagePing MessageType = "ping"
	MessagePong MessageType = "pong"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType            `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// DirectMessage represents a message to be sent to a specific citizen
type DirectMessage struct {
	CitizenID int64
	Message   []byte
}

// Hub maintains the set of active clients and routes messages to them
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Clients indexed by citizen ID for direct messaging
	citizenClients map[int64]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Direct message to a specific citizen
	directMessage chan *DirectMessage

	mu sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		citizenClients: make(map[int64]map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		directMessage:  make(chan *DirectMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	log.Println("[Hub] WebSocket hub started")

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case dm := <-h.directMessage:
			h.sendToCitizen(dm)
		}
	}
}

// SendToCitizen queues a message for every open connection of one citizen.
// Best effort: citizens without a connection simply miss the event.
func (h *Hub) SendToCitizen(citizenID int64, msg Message) {
	msg.Timestamp = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[Hub] Failed to marshal message: %v", err)
		return
	}

	select {
	case h.directMessage <- &DirectMessage{CitizenID: citizenID, Message: data}:
	default:
		log.Printf("[Hub] Direct message queue full, dropping %s for citizen %d", msg.Type, citizenID)
	}
}

// GetConnectedClientsCount returns the number of open connections.
func (h *Hub) GetConnectedClientsCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	if h.citizenClients[client.CitizenID] == nil {
		h.citizenClients[client.CitizenID] = make(map[*Client]bool)
	}
	h.citizenClients[client.CitizenID][client] = true

	log.Printf("[Hub] ✅ Client registered: citizen=%d, id=%s, total_clients=%d",
		client.CitizenID, client.ID, len(h.clients))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)

		if clients, ok := h.citizenClients[client.CitizenID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.citizenClients, client.CitizenID)
			}
		}

		close(client.Send)
		log.Printf("[Hub] ❌ Client disconnected: citizen=%d, id=%s, total_clients=%d",
			client.CitizenID, client.ID, len(h.clients))
	}
}

func (h *Hub) sendToCitizen(dm *DirectMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.citizenClients[dm.CitizenID] {
		select {
		case client.Send <- dm.Message:
		default:
			go func(c *Client) {
				h.unregister <- c
			}(client)
		}
	}
}
