package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/christopherjohns/fancychat/internal/chat"
	"nhooyr.io/websocket"
)

// Client is a single WebSocket connection. It carries no user until the
// connection joins a room.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	id   string

	// user is set once the connection has joined a room and never changes
	// afterwards. Only the connection's own read goroutine touches it.
	user *chat.User
}

// Envelope is the JSON frame exchanged over the WebSocket in both
// directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Audience selects which of a room's connections receive a broadcast.
type Audience int

const (
	// ToRoom delivers to every connection in the room, sender included.
	ToRoom Audience = iota
	// ToOthers delivers to the room minus the originating connection.
	ToOthers
	// ToSender delivers to the originating connection only.
	ToSender
)

// Hub groups live clients by room and fans events out to audience-scoped
// subsets of a room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	conns *ConnManager
}

// NewHub creates a hub backed by the given connection manager.
func NewHub(conns *ConnManager) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		conns: conns,
	}
}

// ConnMgr returns the hub's connection manager.
func (h *Hub) ConnMgr() *ConnManager {
	return h.conns
}

// Join subscribes a client to a room's broadcast group.
func (h *Hub) Join(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]struct{})
	}
	h.rooms[roomID][c] = struct{}{}
}

// Leave removes a client from a room's broadcast group.
func (h *Hub) Leave(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.rooms[roomID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// RoomSize returns the number of subscribed connections in a room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Broadcast marshals payload into an event envelope and queues it for the
// selected audience of the room. The origin client identifies the sender
// for ToOthers and ToSender; it may be nil when the audience is ToRoom.
func (h *Hub) Broadcast(roomID string, origin *Client, aud Audience, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ws: failed to marshal %s payload: %v", event, err)
		return
	}
	envData, err := json.Marshal(Envelope{Type: event, Payload: data})
	if err != nil {
		log.Printf("ws: failed to marshal %s envelope: %v", event, err)
		return
	}

	if aud == ToSender {
		h.conns.Send(origin, envData)
		return
	}

	h.mu.RLock()
	clients := h.rooms[roomID]
	// Copy the set so the lock is released before sending.
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		if aud == ToOthers && c == origin {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.conns.Send(c, envData)
	}
}
