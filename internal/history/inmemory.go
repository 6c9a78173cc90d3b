package history

import (
	"context"
	"sync"
)

// MemoryStore keeps conversations in process memory. Suitable for the CLI
// and for tests; nothing survives a restart.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string][]Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string][]Message)}
}

func (s *MemoryStore) Append(ctx context.Context, conversationID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conversationID] = append(s.conversations[conversationID], msg)
	return nil
}

func (s *MemoryStore) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.conversations[conversationID]
	out := make([]Message, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *MemoryStore) Clear(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	return nil
}
