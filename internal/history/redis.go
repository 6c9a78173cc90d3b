package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each conversation as a redis list of JSON-encoded
// messages, preserving append order.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func historyKey(conversationID string) string {
	return fmt.Sprintf("history:%s", conversationID)
}

func (s *RedisStore) Append(ctx context.Context, conversationID string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding history message: %w", err)
	}
	if err := s.client.RPush(ctx, historyKey(conversationID), data).Err(); err != nil {
		return fmt.Errorf("appending history: %w", err)
	}
	return nil
}

func (s *RedisStore) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	vals, err := s.client.LRange(ctx, historyKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	out := make([]Message, 0, len(vals))
	for _, v := range vals {
		var msg Message
		if err := json.Unmarshal([]byte(v), &msg); err != nil {
			// A corrupt entry is skipped rather than poisoning the turn.
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *RedisStore) Clear(ctx context.Context, conversationID string) error {
	if err := s.client.Del(ctx, historyKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}
