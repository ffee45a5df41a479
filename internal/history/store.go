package history

import (
	"sync"

	"github.com/christopherjohns/fancychat/internal/chat"
)

// MemoryStore keeps each room's recent messages in memory, retaining at
// most maxSize entries per room and evicting oldest-first.
type MemoryStore struct {
	mu      sync.RWMutex
	rooms   map[string][]*chat.Message
	maxSize int
}

// NewMemoryStore creates a store that retains up to maxSize messages per room.
func NewMemoryStore(maxSize int) *MemoryStore {
	return &MemoryStore{
		rooms:   make(map[string][]*chat.Message),
		maxSize: maxSize,
	}
}

// Append adds a message to its room's history, trimming to the cap.
func (s *MemoryStore) Append(msg *chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.rooms[msg.RoomID], msg)
	if len(msgs) > s.maxSize {
		msgs = msgs[len(msgs)-s.maxSize:]
	}
	s.rooms[msg.RoomID] = msgs
}

// List returns the room's retained messages, oldest first.
func (s *MemoryStore) List(roomID string) []*chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.rooms[roomID]
	result := make([]*chat.Message, len(msgs))
	copy(result, msgs)
	return result
}

// DeleteRoom removes all stored messages for a room.
func (s *MemoryStore) DeleteRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// Count returns the number of stored messages for a room.
func (s *MemoryStore) Count(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[roomID])
}
