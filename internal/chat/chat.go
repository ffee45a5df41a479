package chat

import "time"

// Kind distinguishes user-authored messages from server-generated notices.
type Kind string

const (
	KindText   Kind = "text"
	KindSystem Kind = "system"
)

// User is a connected participant. Exactly one User exists per live
// connection, and it belongs to exactly one room for its lifetime.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RoomID   string `json:"room"`
	IsTyping bool   `json:"isTyping"`
}

// Message is a single chat entry. The author name is denormalized at
// creation time and never updated afterwards.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	RoomID    string    `json:"room"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"type"`
}

// Room is a named group of users. A room exists iff it has at least one
// member; its message history lives in the registry's History store and is
// deleted together with the room.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Users     []*User   `json:"users"`
	CreatedAt time.Time `json:"createdAt"`
}

// History is the bounded per-room message log the registry appends to.
// Implementations retain at most a configured number of messages per room,
// evicting oldest-first.
type History interface {
	Append(msg *Message)
	List(roomID string) []*Message
	DeleteRoom(roomID string)
	Count(roomID string) int
}
