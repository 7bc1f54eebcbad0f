package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/relaypost/relaypost-backend/internal/models"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSubscribe    MessageType = "subscribe"
	MessageTypeUnsubscribe  MessageType = "unsubscribe"
	MessageTypeSubscribed   MessageType = "subscribed"
	MessageTypeUnsubscribed MessageType = "unsubscribed"
	MessageTypeNewMessage   MessageType = "new_message"
	MessageTypeError        MessageType = "error"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type         MessageType `json:"type"`
	ConnectionID uint        `json:"connection_id,omitempty"`
	Message      interface{} `json:"message,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// NewMessagePayload represents the payload for new message notifications
type NewMessagePayload struct {
	ID          uint   `json:"id"`
	SenderEmail string `json:"sender_email"`
	SenderName  string `json:"sender_name,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Snippet     string `json:"snippet,omitempty"`
	ThreadID    string `json:"thread_id,omitempty"`
	ReceivedAt  string `json:"received_at"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Connection subscriptions: connectionID -> set of clients
	subscriptions map[uint]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Subscribe to a mailbox connection
	subscribe chan *subscriptionRequest

	// Unsubscribe from a mailbox connection
	unsubscribeConn chan *subscriptionRequest

	// Broadcast to connection subscribers
	broadcast chan *broadcastMessage

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger
}

type subscriptionRequest struct {
	client       *Client
	connectionID uint
}

type broadcastMessage struct {
	connectionID uint
	message      []byte
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:         make(map[*Client]bool),
		subscriptions:   make(map[uint]map[*Client]bool),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		subscribe:       make(chan *subscriptionRequest),
		unsubscribeConn: make(chan *subscriptionRequest),
		broadcast:       make(chan *broadcastMessage, 256),
		logger:          logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client registered")
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				// Remove from all subscriptions
				for connectionID, subscribers := range h.subscriptions {
					delete(subscribers, client)
					if len(subscribers) == 0 {
						delete(h.subscriptions, connectionID)
					}
				}
			}
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client unregistered")
			}

		case req := <-h.subscribe:
			h.mu.Lock()
			if h.subscriptions[req.connectionID] == nil {
				h.subscriptions[req.connectionID] = make(map[*Client]bool)
			}
			h.subscriptions[req.connectionID][req.client] = true
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client subscribed to connection", slog.Uint64("connection_id", uint64(req.connectionID)))
			}

		case req := <-h.unsubscribeConn:
			h.mu.Lock()
			if subscribers, ok := h.subscriptions[req.connectionID]; ok {
				delete(subscribers, req.client)
				if len(subscribers) == 0 {
					delete(h.subscriptions, req.connectionID)
				}
			}
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client unsubscribed from connection", slog.Uint64("connection_id", uint64(req.connectionID)))
			}

		case msg := <-h.broadcast:
			h.mu.RLock()
			subscribers := h.subscriptions[msg.connectionID]
			for client := range subscribers {
				select {
				case client.send <- msg.message:
				default:
					// Client buffer full, skip
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe subscribes a client to a mailbox connection
func (h *Hub) Subscribe(client *Client, connectionID uint) {
	h.subscribe <- &subscriptionRequest{client: client, connectionID: connectionID}
}

// Unsubscribe unsubscribes a client from a mailbox connection
func (h *Hub) Unsubscribe(client *Client, connectionID uint) {
	h.unsubscribeConn <- &subscriptionRequest{client: client, connectionID: connectionID}
}

// BroadcastNewMessage pushes a new message notification to every client
// subscribed to the connection.
func (h *Hub) BroadcastNewMessage(connectionID uint, log *models.EmailLog) {
	payload := &NewMessagePayload{
		ID:          log.ID,
		SenderEmail: log.FromEmail,
		SenderName:  log.FromName,
		Subject:     log.Subject,
		Snippet:     log.Snippet,
		ThreadID:    log.ThreadID,
		ReceivedAt:  log.ReceivedAt.UTC().Format(time.RFC3339),
	}

	msg := WSMessage{
		Type:         MessageTypeNewMessage,
		ConnectionID: connectionID,
		Message:      payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("failed to marshal broadcast message", slog.Any("error", err))
		}
		return
	}

	h.broadcast <- &broadcastMessage{
		connectionID: connectionID,
		message:      data,
	}
}
