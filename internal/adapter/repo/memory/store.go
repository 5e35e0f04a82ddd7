// Package memory is a process-local domain.Storage used when no database is configured.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

type memberKey struct{ chatID, userID int64 }

type topicKey struct{ chatID, threadID int64 }

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu      sync.RWMutex
	members map[memberKey]domain.Profile
	touched map[memberKey]time.Time
	chats   map[int64]chatRow
	banned  map[int64]string
	muted   map[topicKey]struct{}
	now     func() time.Time
}

type chatRow struct {
	title   string
	profile domain.ChatProfile
}

var _ domain.Storage = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		members: make(map[memberKey]domain.Profile),
		touched: make(map[memberKey]time.Time),
		chats:   make(map[int64]chatRow),
		banned:  make(map[int64]string),
		muted:   make(map[topicKey]struct{}),
		now:     time.Now,
	}
}

func (s *Store) Profile(_ context.Context, chatID, userID int64) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.members[memberKey{chatID, userID}]; ok {
		return p, nil
	}
	return domain.Profile{UserID: userID}, nil
}

func (s *Store) ProfilesFor(_ context.Context, chatID int64, userIDs []int64) (map[int64]domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]domain.Profile, len(userIDs))
	for _, id := range userIDs {
		if p, ok := s.members[memberKey{chatID, id}]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) BulkUpdateProfiles(_ context.Context, chatID int64, updates map[int64]domain.ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range updates {
		k := memberKey{chatID, id}
		p, ok := s.members[k]
		if !ok {
			p = domain.Profile{UserID: id}
		}
		if u.RealName != "" {
			p.RealName = u.RealName
		}
		if u.Facts != "" {
			p.Facts = u.Facts
		}
		if u.Attitude != "" {
			p.Attitude = u.Attitude
		}
		if u.Relationship != nil {
			p.Relationship = *u.Relationship
		}
		s.members[k] = p
		s.touched[k] = s.now()
	}
	return nil
}

func (s *Store) ChatProfile(_ context.Context, chatID int64) (domain.ChatProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chats[chatID].profile, nil
}

func (s *Store) UpdateChatProfile(_ context.Context, chatID int64, u domain.ChatProfileUpdate) error {
	if u.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.chats[chatID]
	if u.Topic != "" {
		row.profile.Topic = u.Topic
	}
	if u.Facts != "" {
		row.profile.Facts = u.Facts
	}
	if u.Style != "" {
		row.profile.Style = u.Style
	}
	row.profile.UpdatedAt = s.now()
	s.chats[chatID] = row
	return nil
}

func (s *Store) TrackUser(_ context.Context, chatID, userID int64, firstName, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memberKey{chatID, userID}
	p, ok := s.members[k]
	if !ok {
		p = domain.Profile{UserID: userID}
	}
	p.Name = firstName
	p.Username = username
	s.members[k] = p
	s.touched[k] = s.now()
	return nil
}

func (s *Store) HasChat(_ context.Context, chatID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chats[chatID]
	return ok, nil
}

func (s *Store) TrackChat(_ context.Context, chatID int64, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.chats[chatID]
	row.title = title
	s.chats[chatID] = row
	return nil
}

func (s *Store) IsBanned(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.banned[userID]
	return ok, nil
}

func (s *Store) Ban(_ context.Context, userID int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banned[userID] = name
	return nil
}

func (s *Store) Unban(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.banned, userID)
	return nil
}

func (s *Store) BannedList(_ context.Context) (map[int64]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]string, len(s.banned))
	for id, name := range s.banned {
		out[id] = name
	}
	return out, nil
}

// FindUserByUsername returns the most recently seen member with that username.
func (s *Store) FindUserByUsername(_ context.Context, username string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		id   int64
		seen time.Time
	)
	for k, p := range s.members {
		if p.Username == "" || !strings.EqualFold(p.Username, username) {
			continue
		}
		if t := s.touched[k]; id == 0 || t.After(seen) {
			id, seen = k.userID, t
		}
	}
	if id == 0 {
		return 0, fmt.Errorf("op=memory.find_user: %w", domain.ErrNotFound)
	}
	return id, nil
}

func (s *Store) ToggleMute(_ context.Context, chatID, threadID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := topicKey{chatID, threadID}
	if _, ok := s.muted[k]; ok {
		delete(s.muted, k)
		return false, nil
	}
	s.muted[k] = struct{}{}
	return true, nil
}

func (s *Store) IsMuted(_ context.Context, chatID, threadID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.muted[topicKey{chatID, threadID}]
	return ok, nil
}
