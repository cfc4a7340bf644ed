package store

import (
	"context"
	"sort"
	"sync"

	"github.com/effective-security/mcphost/conversation"
)

var _ conversation.MessageStore = (*inMemory)(nil)

type inMemory struct {
	mu      sync.RWMutex
	storage map[string][]conversation.Message
}

// NewMemoryStore creates a process-local store, useful for tests and
// single-process hosts.
func NewMemoryStore() MessageStore {
	return &inMemory{}
}

func (m *inMemory) Messages(ctx context.Context, chatID string) ([]conversation.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.storage == nil {
		return nil, nil
	}
	msgs := m.storage[chatID]
	if len(msgs) == 0 {
		return nil, nil
	}
	out := make([]conversation.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *inMemory) Add(ctx context.Context, chatID string, msg conversation.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		// create on first use
		m.storage = make(map[string][]conversation.Message)
	}
	m.storage[chatID] = append(m.storage[chatID], msg)
	return nil
}

func (m *inMemory) Reset(ctx context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage != nil {
		delete(m.storage, chatID)
	}
	return nil
}

func (m *inMemory) Chats(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chats := make([]string, 0, len(m.storage))
	for chatID := range m.storage {
		chats = append(chats, chatID)
	}
	sort.Strings(chats)
	return chats, nil
}
