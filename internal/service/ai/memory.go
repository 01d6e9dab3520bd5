package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"datachat/internal/redis"
)

// maxHistoryMessages bounds how much prior conversation feeds back into
// model calls.
const maxHistoryMessages = 10

// Memory holds per-session conversation history for multi-turn
// continuity. Whether it is consulted at all is a router config choice.
type Memory interface {
	Append(ctx context.Context, sessionID string, msg *schema.Message) error
	History(ctx context.Context, sessionID string) ([]*schema.Message, error)
	Clear(ctx context.Context, sessionID string) error
}

// NoopMemory disables conversational continuity: every question stands
// alone.
type NoopMemory struct{}

func (NoopMemory) Append(context.Context, string, *schema.Message) error { return nil }
func (NoopMemory) History(context.Context, string) ([]*schema.Message, error) {
	return nil, nil
}
func (NoopMemory) Clear(context.Context, string) error { return nil }

// LocalMemory keeps history in process. Lost on restart.
type LocalMemory struct {
	mu        sync.RWMutex
	histories map[string][]*schema.Message
}

func NewLocalMemory() *LocalMemory {
	return &LocalMemory{histories: make(map[string][]*schema.Message)}
}

func (m *LocalMemory) Append(_ context.Context, sessionID string, msg *schema.Message) error {
	if msg == nil {
		return nil
	}
	msgCopy := *msg
	m.mu.Lock()
	m.histories[sessionID] = append(m.histories[sessionID], &msgCopy)
	m.mu.Unlock()
	return nil
}

func (m *LocalMemory) History(_ context.Context, sessionID string) ([]*schema.Message, error) {
	m.mu.RLock()
	history := m.histories[sessionID]
	m.mu.RUnlock()

	start := 0
	if len(history) > maxHistoryMessages {
		start = len(history) - maxHistoryMessages
	}
	cloned := make([]*schema.Message, 0, len(history)-start)
	for _, msg := range history[start:] {
		msgCopy := *msg
		cloned = append(cloned, &msgCopy)
	}
	return cloned, nil
}

func (m *LocalMemory) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.histories, sessionID)
	m.mu.Unlock()
	return nil
}

// RedisMemory persists history in redis lists so it survives restarts
// and is shared across instances.
type RedisMemory struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisMemory(client *redis.Client, ttl time.Duration) *RedisMemory {
	return &RedisMemory{client: client, ttl: ttl}
}

func (m *RedisMemory) key(sessionID string) string {
	return fmt.Sprintf("session:%s:messages", sessionID)
}

func (m *RedisMemory) Append(ctx context.Context, sessionID string, msg *schema.Message) error {
	if msg == nil {
		return nil
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	key := m.key(sessionID)
	if err := m.client.Raw().RPush(ctx, key, b).Err(); err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	if m.ttl > 0 {
		if err := m.client.Raw().Expire(ctx, key, m.ttl).Err(); err != nil {
			return fmt.Errorf("touch ttl: %w", err)
		}
	}
	return nil
}

func (m *RedisMemory) History(ctx context.Context, sessionID string) ([]*schema.Message, error) {
	rows, err := m.client.Raw().LRange(ctx, m.key(sessionID), int64(-maxHistoryMessages), -1).Result()
	if err != nil {
		if err == redis.ErrCacheMiss {
			return nil, nil
		}
		return nil, fmt.Errorf("load history: %w", err)
	}
	msgs := make([]*schema.Message, 0, len(rows))
	for i, s := range rows {
		var msg schema.Message
		if err := json.Unmarshal([]byte(s), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message %d: %w", i, err)
		}
		msgs = append(msgs, &msg)
	}
	return msgs, nil
}

func (m *RedisMemory) Clear(ctx context.Context, sessionID string) error {
	return m.client.Del(ctx, m.key(sessionID))
}
