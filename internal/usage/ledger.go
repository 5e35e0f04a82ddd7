// Package usage tracks daily call counts per category and per fallback credential.
package usage

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/fairyhunter13/ai-chat-router/internal/adapter/observability"
)

// Category names a counted request class.
type Category string

const (
	CategorySmart  Category = "smart"
	CategoryLogic  Category = "logic"
	CategorySearch Category = "search"
)

var categories = []Category{CategorySmart, CategoryLogic, CategorySearch}

// CredentialUsage is the per-key row of the ledger.
type CredentialUsage struct {
	Count  int  `json:"count"`
	Active bool `json:"active"`
}

// Counters is a point-in-time copy of the ledger.
type Counters struct {
	Categories    map[Category]int  `json:"categories"`
	PerCredential []CredentialUsage `json:"per_credential"`
	LastResetDay  int               `json:"last_reset_day"`
}

// Ledger holds today's counters. All methods are safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	clock    Clock
	counters Counters
	label    string
}

// NewLedger builds a ledger for credentialCount fallback keys.
// label identifies the primary backend in the stats report.
func NewLedger(credentialCount int, clock Clock, label string) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	l := &Ledger{clock: clock, label: label}
	l.counters = freshCounters(credentialCount, dayKey(clock.Now()))
	return l
}

func freshCounters(n, day int) Counters {
	c := Counters{
		Categories:    make(map[Category]int, len(categories)),
		PerCredential: make([]CredentialUsage, n),
		LastResetDay:  day,
	}
	for _, cat := range categories {
		c.Categories[cat] = 0
	}
	for i := range c.PerCredential {
		c.PerCredential[i].Active = true
	}
	return c
}

// Increment bumps a category counter.
func (l *Ledger) Increment(cat Category) {
	l.mu.Lock()
	l.counters.Categories[cat]++
	l.mu.Unlock()
	observability.UsageCallsTotal.WithLabelValues(string(cat)).Inc()
}

// IncrementCredential bumps the usage of credential index. Out of range is a no-op.
func (l *Ledger) IncrementCredential(index int) {
	l.mu.Lock()
	if index < 0 || index >= len(l.counters.PerCredential) {
		l.mu.Unlock()
		return
	}
	l.counters.PerCredential[index].Count++
	l.mu.Unlock()
	observability.CredentialCallsTotal.WithLabelValues(strconv.Itoa(index)).Inc()
}

// MarkExhausted flags credential index as inactive for today.
func (l *Ledger) MarkExhausted(index int) {
	l.mu.Lock()
	if index < 0 || index >= len(l.counters.PerCredential) {
		l.mu.Unlock()
		return
	}
	l.counters.PerCredential[index].Active = false
	l.mu.Unlock()
	observability.CredentialActive.WithLabelValues(strconv.Itoa(index)).Set(0)
}

// ResetIfNewDay zeroes every counter and reactivates every credential when the
// calendar day changed since the last reset. It returns true only for the call
// that performed the reset.
func (l *Ledger) ResetIfNewDay() bool {
	today := dayKey(l.clock.Now())
	l.mu.Lock()
	if today == l.counters.LastResetDay {
		l.mu.Unlock()
		return false
	}
	prev := l.counters.LastResetDay
	n := len(l.counters.PerCredential)
	l.counters = freshCounters(n, today)
	l.mu.Unlock()

	for i := 0; i < n; i++ {
		observability.CredentialActive.WithLabelValues(strconv.Itoa(i)).Set(1)
	}
	slog.Info("usage ledger reset", slog.Int("previous_day", prev), slog.Int("day", today))
	return true
}

// Snapshot returns a deep copy of the counters.
func (l *Ledger) Snapshot() Counters {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyCounters(l.counters)
}

// Restore loads persisted counters when they belong to the current day and
// match the configured credential count. It reports whether they were applied.
func (l *Ledger) Restore(c Counters) bool {
	today := dayKey(l.clock.Now())
	l.mu.Lock()
	defer l.mu.Unlock()
	if c.LastResetDay != today || len(c.PerCredential) != len(l.counters.PerCredential) {
		return false
	}
	restored := copyCounters(c)
	for _, cat := range categories {
		if _, ok := restored.Categories[cat]; !ok {
			restored.Categories[cat] = 0
		}
	}
	l.counters = restored
	return true
}

func copyCounters(c Counters) Counters {
	out := Counters{
		Categories:    make(map[Category]int, len(c.Categories)),
		PerCredential: make([]CredentialUsage, len(c.PerCredential)),
		LastResetDay:  c.LastResetDay,
	}
	for k, v := range c.Categories {
		out.Categories[k] = v
	}
	copy(out.PerCredential, c.PerCredential)
	return out
}

// StatsReport renders the daily usage summary shown to the operator.
func (l *Ledger) StatsReport(fallbackActive bool) string {
	l.ResetIfNewDay()
	snap := l.Snapshot()

	mode := "⚡ API MODE"
	if fallbackActive {
		mode = "⚠️ FALLBACK (Gemini)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Mode: %s\n\n", mode)
	fmt.Fprintf(&b, "🌐 *API (%s):*\n", l.label)
	fmt.Fprintf(&b, "   Smart: %d\n   Logic: %d\n   Search: %d\n\n",
		snap.Categories[CategorySmart], snap.Categories[CategoryLogic], snap.Categories[CategorySearch])
	b.WriteString("💎 *Gemini keys:*")
	if len(snap.PerCredential) == 0 {
		b.WriteString("\n   none configured")
	}
	for i, row := range snap.PerCredential {
		status := "🟢"
		if !row.Active {
			status = "🔴"
		}
		fmt.Fprintf(&b, "\n   🔑%d: %s %d", i+1, status, row.Count)
	}
	return b.String()
}
