// Package buffer accumulates per-chat messages into analysis windows and
// hands full windows to background analysis.
package buffer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-chat-router/internal/adapter/observability"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

// Analyzer turns a drained window into profile updates.
type Analyzer interface {
	AnalyzeBatch(ctx domain.Context, entries []domain.BufferEntry, profiles map[int64]domain.Profile) (map[int64]domain.ProfileUpdate, bool)
	AnalyzeChatProfile(ctx domain.Context, entries []domain.BufferEntry, current domain.ChatProfile) (domain.ChatProfileUpdate, bool)
}

// Store is the storage slice the flush path reads and writes.
type Store interface {
	ProfilesFor(ctx domain.Context, chatID int64, userIDs []int64) (map[int64]domain.Profile, error)
	BulkUpdateProfiles(ctx domain.Context, chatID int64, updates map[int64]domain.ProfileUpdate) error
	ChatProfile(ctx domain.Context, chatID int64) (domain.ChatProfile, error)
	UpdateChatProfile(ctx domain.Context, chatID int64, update domain.ChatProfileUpdate) error
}

// Thresholds sets the window sizes that trigger a flush.
type Thresholds struct {
	Profile int
	Topic   int
}

const defaultFlushTimeout = 2 * time.Minute

type chatBuffer struct {
	mu      sync.Mutex
	windows map[domain.WindowKind][]domain.BufferEntry
}

// Aggregator owns both windows of every chat it has seen.
type Aggregator struct {
	analyzer   Analyzer
	store      Store
	thresholds Thresholds
	timeout    time.Duration

	mu    sync.Mutex
	chats map[int64]*chatBuffer

	inflight sync.WaitGroup
}

// New builds an aggregator. Zero thresholds fall back to 20 and 50.
func New(analyzer Analyzer, store Store, t Thresholds) *Aggregator {
	if t.Profile <= 0 {
		t.Profile = 20
	}
	if t.Topic <= 0 {
		t.Topic = 50
	}
	return &Aggregator{
		analyzer:   analyzer,
		store:      store,
		thresholds: t,
		timeout:    defaultFlushTimeout,
		chats:      make(map[int64]*chatBuffer),
	}
}

func (a *Aggregator) chat(chatID int64) *chatBuffer {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.chats[chatID]
	if !ok {
		b = &chatBuffer{windows: make(map[domain.WindowKind][]domain.BufferEntry, 2)}
		a.chats[chatID] = b
	}
	return b
}

func (a *Aggregator) threshold(kind domain.WindowKind) int {
	if kind == domain.WindowTopic {
		return a.thresholds.Topic
	}
	return a.thresholds.Profile
}

// Append adds entry to a window and reports whether it reached its threshold.
func (a *Aggregator) Append(chatID int64, kind domain.WindowKind, entry domain.BufferEntry) bool {
	b := a.chat(chatID)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.windows[kind] = append(b.windows[kind], entry)
	return len(b.windows[kind]) >= a.threshold(kind)
}

// ShouldFlush reports whether the window is at or past its threshold.
func (a *Aggregator) ShouldFlush(chatID int64, kind domain.WindowKind) bool {
	return a.Len(chatID, kind) >= a.threshold(kind)
}

// Len is the current window length.
func (a *Aggregator) Len(chatID int64, kind domain.WindowKind) int {
	b := a.chat(chatID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.windows[kind])
}

// OnMessage feeds both windows and flushes whichever is full.
func (a *Aggregator) OnMessage(ctx context.Context, chatID int64, entry domain.BufferEntry) {
	for _, kind := range []domain.WindowKind{domain.WindowProfile, domain.WindowTopic} {
		if a.Append(chatID, kind, entry) {
			a.Flush(ctx, chatID, kind)
		}
	}
}

// Reset drops both windows without analysis.
func (a *Aggregator) Reset(chatID int64) {
	b := a.chat(chatID)
	b.mu.Lock()
	clear(b.windows)
	b.mu.Unlock()
}

// Flush drains the window and analyses it in the background. The window is
// empty when Flush returns; appends made during analysis start a new window.
func (a *Aggregator) Flush(ctx context.Context, chatID int64, kind domain.WindowKind) {
	b := a.chat(chatID)
	b.mu.Lock()
	entries := b.windows[kind]
	b.windows[kind] = nil
	b.mu.Unlock()
	if len(entries) == 0 {
		return
	}

	base := context.WithoutCancel(ctx)
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		fctx, cancel := context.WithTimeout(base, a.timeout)
		defer cancel()
		outcome, err := a.analyze(fctx, chatID, kind, entries)
		observability.BufferFlushesTotal.WithLabelValues(string(kind), outcome).Inc()
		if err != nil {
			slog.ErrorContext(fctx, "buffer_flush_failed",
				slog.Int64("chat_id", chatID),
				slog.String("window", string(kind)),
				slog.Int("entries", len(entries)),
				slog.Any("error", err))
			return
		}
		slog.DebugContext(fctx, "buffer flushed",
			slog.Int64("chat_id", chatID),
			slog.String("window", string(kind)),
			slog.String("outcome", outcome))
	}()
}

// Wait blocks until in-flight analyses finish.
func (a *Aggregator) Wait() { a.inflight.Wait() }

func (a *Aggregator) analyze(ctx context.Context, chatID int64, kind domain.WindowKind, entries []domain.BufferEntry) (outcome string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome, err = "panic", fmt.Errorf("op=buffer.analyze: panic: %v", rec)
		}
	}()
	if kind == domain.WindowTopic {
		return a.analyzeTopic(ctx, chatID, entries)
	}
	return a.analyzeProfiles(ctx, chatID, entries)
}

func (a *Aggregator) analyzeProfiles(ctx context.Context, chatID int64, entries []domain.BufferEntry) (string, error) {
	seen := make(map[int64]bool, len(entries))
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		if !seen[e.SenderID] {
			seen[e.SenderID] = true
			ids = append(ids, e.SenderID)
		}
	}
	profiles, err := a.store.ProfilesFor(ctx, chatID, ids)
	if err != nil {
		return "error", fmt.Errorf("op=buffer.analyzeProfiles: %w", err)
	}
	updates, ok := a.analyzer.AnalyzeBatch(ctx, entries, profiles)
	if !ok || len(updates) == 0 {
		return "empty", nil
	}
	if err := a.store.BulkUpdateProfiles(ctx, chatID, updates); err != nil {
		return "error", fmt.Errorf("op=buffer.analyzeProfiles: %w", err)
	}
	return "updated", nil
}

func (a *Aggregator) analyzeTopic(ctx context.Context, chatID int64, entries []domain.BufferEntry) (string, error) {
	current, err := a.store.ChatProfile(ctx, chatID)
	if err != nil {
		return "error", fmt.Errorf("op=buffer.analyzeTopic: %w", err)
	}
	update, ok := a.analyzer.AnalyzeChatProfile(ctx, entries, current)
	if !ok || update.Empty() {
		return "empty", nil
	}
	if err := a.store.UpdateChatProfile(ctx, chatID, update); err != nil {
		return "error", fmt.Errorf("op=buffer.analyzeTopic: %w", err)
	}
	return "updated", nil
}
