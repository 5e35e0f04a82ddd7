// Package history keeps the recent conversation per chat for prompt context.
package history

import (
	"slices"
	"sync"

	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

// Store is a bounded FIFO of history entries keyed by chat id.
type Store struct {
	mu    sync.Mutex
	limit int
	chats map[int64][]domain.HistoryEntry
}

// NewStore keeps at most limit entries per chat. A non-positive limit means 30.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 30
	}
	return &Store{limit: limit, chats: make(map[int64][]domain.HistoryEntry)}
}

// Append records an entry, dropping the oldest past the limit.
func (s *Store) Append(chatID int64, role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.chats[chatID], domain.HistoryEntry{Role: role, Text: text})
	if over := len(h) - s.limit; over > 0 {
		h = slices.Delete(h, 0, over)
	}
	s.chats[chatID] = h
}

// Recent returns a copy of the last n entries, oldest first. n <= 0 returns all.
func (s *Store) Recent(chatID int64, n int) []domain.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.chats[chatID]
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return slices.Clone(h)
}

// Len is the number of stored entries for chatID.
func (s *Store) Len(chatID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats[chatID])
}

// Reset forgets the chat.
func (s *Store) Reset(chatID int64) {
	s.mu.Lock()
	delete(s.chats, chatID)
	s.mu.Unlock()
}
