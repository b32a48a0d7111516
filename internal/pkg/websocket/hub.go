package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Hub maintains the set of connected clients, keyed by conversation,
// and fans events out to them.
type Hub struct {
	// Registered clients organized by conversation ID
	clients map[int64]map[*Client]bool

	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	logger zerolog.Logger
}

// Event is a real-time frame pushed to conversation participants.
type Event struct {
	// Type of event: "new_message", "request_update", "conversation_deleted"
	Type string `json:"type"`

	ConversationID int64 `json:"conversationId"`

	// User whose action produced the event
	SenderID int64 `json:"senderId,omitempty"`

	// Message the event refers to, when there is one
	MessageID int64 `json:"messageId,omitempty"`

	// Request status after a lifecycle transition
	RequestStatus string `json:"requestStatus,omitempty"`

	Content string `json:"content,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewHub creates a new Hub instance
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan *Event),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[int64]map[*Client]bool),
		logger:     logger,
	}
}

// Run starts the hub, handling client registrations and broadcasts.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conversationID := client.conversationID
	if _, ok := h.clients[conversationID]; !ok {
		h.clients[conversationID] = make(map[*Client]bool)
	}
	h.clients[conversationID][client] = true

	h.logger.Info().
		Int64("conversationID", conversationID).
		Int64("userID", client.userID).
		Msg("Client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conversationID := client.conversationID
	if _, ok := h.clients[conversationID]; ok {
		if _, ok := h.clients[conversationID][client]; ok {
			delete(h.clients[conversationID], client)
			close(client.send)

			if len(h.clients[conversationID]) == 0 {
				delete(h.clients, conversationID)
			}

			h.logger.Info().
				Int64("conversationID", conversationID).
				Int64("userID", client.userID).
				Msg("Client unregistered")
		}
	}
}

func (h *Hub) broadcastEvent(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().
			Err(err).
			Int64("conversationID", event.ConversationID).
			Msg("Failed to marshal event for broadcast")
		return
	}

	h.mu.RLock()
	var dropped []*Client
	for client := range h.clients[event.ConversationID] {
		select {
		case client.send <- data:
		default:
			// Slow or disconnected client; drop it.
			dropped = append(dropped, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range dropped {
		h.unregisterClient(client)
	}
}

// BroadcastToConversation pushes an event to every client connected to
// the conversation. Safe to call from any goroutine.
func (h *Hub) BroadcastToConversation(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	h.broadcast <- event
}

// ClientsCount returns the number of connected clients for a conversation
func (h *Hub) ClientsCount(conversationID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if clients, ok := h.clients[conversationID]; ok {
		return len(clients)
	}
	return 0
}
