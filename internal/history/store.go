// Package history persists per-conversation message history as ordered
// role/content/timestamp records.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/permaevidence/HopPT/config"
)

// Message is one stored conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store keeps each conversation's messages in append order.
type Store interface {
	// Append adds one message to the end of a conversation.
	Append(ctx context.Context, conversationID string, msg Message) error

	// Messages returns the conversation oldest first.
	Messages(ctx context.Context, conversationID string) ([]Message, error)

	// Clear removes a conversation entirely.
	Clear(ctx context.Context, conversationID string) error
}

// NewStore builds the configured backend.
func NewStore(cfg config.HistoryConfig) (Store, error) {
	switch cfg.Backend {
	case "", "inmemory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg.Redis.Host+":"+cfg.Redis.Port, cfg.Redis.Pass, cfg.Redis.DB), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}
