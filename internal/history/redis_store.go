package history

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/christopherjohns/fancychat/internal/chat"
)

// opTimeout bounds every Redis round trip.
const opTimeout = 2 * time.Second

// redisKey returns the Redis key for a room's message list.
func redisKey(roomID string) string {
	return "room:" + roomID + ":messages"
}

// RedisStore keeps each room's recent messages in a Redis list, trimmed to
// the cap on every append. Failures are logged and otherwise swallowed; the
// history is best-effort like the rest of the delivery path.
type RedisStore struct {
	client  redis.Cmdable
	maxSize int64
}

// NewRedisStore creates a RedisStore that retains up to maxSize messages per room.
func NewRedisStore(client redis.Cmdable, maxSize int) *RedisStore {
	return &RedisStore{
		client:  client,
		maxSize: int64(maxSize),
	}
}

// Append adds a message to the room's list, trimming to maxSize.
func (s *RedisStore) Append(msg *chat.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("history: failed to marshal message: %v", err)
		return
	}

	key := redisKey(msg.RoomID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -s.maxSize, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("history: failed to append message: %v", err)
	}
}

// List returns the room's retained messages, oldest first.
func (s *RedisStore) List(roomID string) []*chat.Message {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	vals, err := s.client.LRange(ctx, redisKey(roomID), 0, -1).Result()
	if err != nil {
		log.Printf("history: failed to read messages: %v", err)
		return nil
	}

	msgs := make([]*chat.Message, 0, len(vals))
	for _, v := range vals {
		var m chat.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			continue
		}
		msgs = append(msgs, &m)
	}
	return msgs
}

// DeleteRoom removes all stored messages for a room.
func (s *RedisStore) DeleteRoom(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, redisKey(roomID)).Err(); err != nil {
		log.Printf("history: failed to delete room messages: %v", err)
	}
}

// Count returns the number of stored messages for a room.
func (s *RedisStore) Count(roomID string) int {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	n, err := s.client.LLen(ctx, redisKey(roomID)).Result()
	if err != nil {
		log.Printf("history: failed to count messages: %v", err)
		return 0
	}
	return int(n)
}
