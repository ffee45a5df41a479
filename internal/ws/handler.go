package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/christopherjohns/fancychat/internal/chat"
)

// JoinPayload is sent by the client to join a room.
type JoinPayload struct {
	Name string `json:"name"`
	Room string `json:"room"`
}

// SendPayload is sent by the client to post a message.
type SendPayload struct {
	Content string `json:"content"`
}

// TypingPayload notifies a room that a user started or stopped typing.
type TypingPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsTyping bool   `json:"isTyping"`
}

// ErrorPayload is an error signal addressed to a single connection.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Handler upgrades HTTP requests to WebSockets and routes inbound events
// to registry mutations and audience-scoped broadcasts.
//
// Each connection moves through three states: connected (no user yet),
// joined (a user is attached), and disconnected. Events other than
// room:join arriving before the join are dropped, and a second room:join
// after a successful one is ignored.
type Handler struct {
	registry *chat.Registry
	hub      *Hub

	// mu serializes event handling so each registry mutation and its
	// broadcasts are observed as one atomic step by every other event.
	mu sync.Mutex

	// originPatterns restricts which Origin headers may upgrade. Empty
	// means any origin is accepted.
	originPatterns []string
}

// NewHandler creates a WebSocket handler. originPatterns restricts upgrade
// requests by Origin header; pass none to accept all origins.
func NewHandler(registry *chat.Registry, hub *Hub, originPatterns ...string) *Handler {
	return &Handler{
		registry:       registry,
		hub:            hub,
		originPatterns: originPatterns,
	}
}

// ServeHTTP upgrades the connection and runs the client's read loop until
// the socket closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(h.originPatterns) > 0 {
		opts.OriginPatterns = h.originPatterns
	} else {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		log.Printf("ws: accept error: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	client := &Client{
		conn: conn,
		id:   uuid.NewString(),
	}

	connCtx := h.hub.ConnMgr().Add(client)
	if connCtx.Err() != nil {
		return
	}
	defer h.hub.ConnMgr().Remove(client)

	h.readLoop(r.Context(), connCtx, client)
	h.handleDisconnect(client)
}

// readLoop reads envelopes from the client until the connection closes or
// the connection manager cancels connCtx. Malformed frames are dropped.
func (h *Handler) readLoop(ctx context.Context, connCtx context.Context, client *Client) {
	for {
		select {
		case <-connCtx.Done():
			return
		default:
		}

		_, data, err := client.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancelled.
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Type {
		case "room:join":
			h.handleJoin(client, env.Payload)
		case "message:send":
			h.handleSend(client, env.Payload)
		case "typing:start":
			h.handleTyping(client, true)
		case "typing:stop":
			h.handleTyping(client, false)
		}
	}
}

// handleJoin attaches a user to the connection and announces it to the
// room. On failure the joiner alone gets an error signal and stays
// unattached, free to retry.
func (h *Handler) handleJoin(client *Client, payload json.RawMessage) {
	if client.user != nil {
		// Already joined; the state machine has no re-join transition.
		return
	}

	var p JoinPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.hub.Broadcast("", client, ToSender, "error", ErrorPayload{Message: "Could not join room"})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	user := h.registry.AddUser(p.Name, p.Room)
	client.user = user
	h.hub.Join(client, user.RoomID)

	h.hub.Broadcast(user.RoomID, client, ToOthers, "user:joined", user)

	if msg := h.registry.AddMessage(user.ID, user.Name+" has joined the chat", chat.KindSystem); msg != nil {
		h.hub.Broadcast(user.RoomID, client, ToRoom, "message:new", msg)
	}

	h.hub.Broadcast(user.RoomID, client, ToRoom, "room:users", h.registry.RoomUsers(user.RoomID))

	h.hub.Broadcast(user.RoomID, client, ToSender, "room:joined", user)
}

// handleSend appends a text message and fans it out to the whole room,
// acknowledging the sender with the created message. A connection with no
// attached user gets an empty acknowledgment and nothing is broadcast.
func (h *Handler) handleSend(client *Client, payload json.RawMessage) {
	if client.user == nil {
		h.hub.Broadcast("", client, ToSender, "message:ack", &chat.Message{})
		return
	}

	var p SendPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	msg := h.registry.AddMessage(client.user.ID, p.Content, chat.KindText)
	if msg == nil {
		return
	}
	h.hub.Broadcast(client.user.RoomID, client, ToRoom, "message:new", msg)
	h.hub.Broadcast(client.user.RoomID, client, ToSender, "message:ack", msg)
}

// handleTyping flips the user's typing flag and notifies the rest of the
// room. The sender never receives its own typing echo.
func (h *Handler) handleTyping(client *Client, typing bool) {
	if client.user == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	user := h.registry.SetTyping(client.user.ID, typing)
	if user == nil {
		return
	}
	h.hub.Broadcast(user.RoomID, client, ToOthers, "user:typing", TypingPayload{
		ID:       user.ID,
		Name:     user.Name,
		IsTyping: user.IsTyping,
	})
}

// handleDisconnect removes the connection's user and announces the
// departure. When the departing user was the room's last member the room is
// already gone, so no leave message is produced.
func (h *Handler) handleDisconnect(client *Client) {
	if client.user == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	roomID := client.user.RoomID
	h.hub.Leave(client, roomID)

	removed := h.registry.RemoveUser(client.user.ID)
	if removed == nil {
		return
	}

	h.hub.Broadcast(roomID, client, ToRoom, "user:left", removed.ID)

	if msg := h.registry.AddSystemMessage(roomID, removed.ID, removed.Name, removed.Name+" has left the chat"); msg != nil {
		h.hub.Broadcast(roomID, client, ToRoom, "message:new", msg)
	}

	h.hub.Broadcast(roomID, client, ToRoom, "room:users", h.registry.RoomUsers(roomID))
}
