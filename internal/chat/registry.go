package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the in-memory store of all rooms, users and messages.
// All lookups return nil on a miss, never an error; callers treat absence
// as "silently do nothing".
type Registry struct {
	mu      sync.Mutex
	rooms   []*Room // insertion order; name lookups take the first match
	history History
}

// NewRegistry creates an empty registry that appends messages to h.
func NewRegistry(h History) *Registry {
	return &Registry{history: h}
}

// CreateRoom allocates a room with empty membership. It performs no name
// uniqueness check; AddUser is responsible for find-or-create semantics.
func (r *Registry) CreateRoom(name string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createRoom(name)
}

func (r *Registry) createRoom(name string) *Room {
	room := &Room{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	r.rooms = append(r.rooms, room)
	return room
}

// AddUser appends a new user to the room named roomName, creating the room
// if no live room has that name. It never fails.
func (r *Registry) AddUser(name, roomName string) *User {
	r.mu.Lock()
	defer r.mu.Unlock()

	var room *Room
	for _, existing := range r.rooms {
		if existing.Name == roomName {
			room = existing
			break
		}
	}
	if room == nil {
		room = r.createRoom(roomName)
	}

	user := &User{
		ID:     uuid.NewString(),
		Name:   name,
		RoomID: room.ID,
	}
	room.Users = append(room.Users, user)
	return user
}

// RemoveUser removes the user from its room and returns it, or nil if the
// id is unknown. When the last member leaves, the room and its message
// history are deleted: a room exists iff it has at least one member.
func (r *Registry) RemoveUser(userID string) *User {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ri, room := range r.rooms {
		for ui, user := range room.Users {
			if user.ID != userID {
				continue
			}
			room.Users = append(room.Users[:ui], room.Users[ui+1:]...)
			if len(room.Users) == 0 {
				r.rooms = append(r.rooms[:ri], r.rooms[ri+1:]...)
				r.history.DeleteRoom(room.ID)
			}
			return user
		}
	}
	return nil
}

// AddMessage appends a message authored by the given user to its room's
// history and returns it. Returns nil if the user or its room is unknown.
// Content is deliberately not validated; empty and oversized strings are
// accepted as-is.
func (r *Registry) AddMessage(userID, content string, kind Kind) *Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.findUser(userID)
	if user == nil {
		return nil
	}
	if r.findRoom(user.RoomID) == nil {
		return nil
	}

	msg := &Message{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		UserName:  user.Name,
		RoomID:    user.RoomID,
		Content:   content,
		Timestamp: time.Now(),
		Kind:      kind,
	}
	r.history.Append(msg)
	return msg
}

// AddSystemMessage appends a server-generated notice to the room, carrying
// the given author identity verbatim. Unlike AddMessage it does not resolve
// the author, so it works for a user that was just removed. Returns nil if
// the room no longer exists, which is the case when the author was the
// room's last member.
func (r *Registry) AddSystemMessage(roomID, userID, userName, content string) *Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findRoom(roomID) == nil {
		return nil
	}

	msg := &Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		UserName:  userName,
		RoomID:    roomID,
		Content:   content,
		Timestamp: time.Now(),
		Kind:      KindSystem,
	}
	r.history.Append(msg)
	return msg
}

// User returns the user with the given id, or nil. Linear scan across all
// rooms' membership.
func (r *Registry) User(userID string) *User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findUser(userID)
}

// SetTyping updates the user's typing flag and returns the user, or nil if
// the id is unknown. Whether to broadcast on a no-op change is left to the
// caller.
func (r *Registry) SetTyping(userID string, typing bool) *User {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.findUser(userID)
	if user == nil {
		return nil
	}
	user.IsTyping = typing
	return user
}

// RoomUsers returns the room's members in join order, or an empty slice if
// the room is unknown.
func (r *Registry) RoomUsers(roomID string) []*User {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.findRoom(roomID)
	if room == nil {
		return []*User{}
	}
	users := make([]*User, len(room.Users))
	copy(users, room.Users)
	return users
}

// RoomMessages returns the room's retained history, oldest first. Unknown
// and deleted rooms yield an empty slice.
func (r *Registry) RoomMessages(roomID string) []*Message {
	msgs := r.history.List(roomID)
	if msgs == nil {
		return []*Message{}
	}
	return msgs
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// UserCount returns the total number of connected users across all rooms.
func (r *Registry) UserCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, room := range r.rooms {
		n += len(room.Users)
	}
	return n
}

// findUser must be called with mu held.
func (r *Registry) findUser(userID string) *User {
	for _, room := range r.rooms {
		for _, user := range room.Users {
			if user.ID == userID {
				return user
			}
		}
	}
	return nil
}

// findRoom must be called with mu held.
func (r *Registry) findRoom(roomID string) *Room {
	for _, room := range r.rooms {
		if room.ID == roomID {
			return room
		}
	}
	return nil
}
