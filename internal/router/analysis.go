package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

// SearchDecision is the logic model's verdict on whether to search.
type SearchDecision struct {
	NeedsSearch bool
	Query       string
	Reason      string
}

type searchDecisionJSON struct {
	NeedsSearch *bool   `json:"needsSearch"`
	SearchQuery *string `json:"searchQuery"`
	Reason      string  `json:"reason"`
}

// CheckSearchNeeded asks whether a message needs fresh web facts.
// Any failure means "no search".
func (r *Router) CheckSearchNeeded(ctx domain.Context, message string, recent []domain.HistoryEntry, topic string) SearchDecision {
	prompt := r.persona.Text("prompts.should_search", map[string]string{
		"Time":      r.stamp(),
		"Message":   message,
		"History":   FormatHistory(recent),
		"ChatTopic": topic,
	})
	var raw searchDecisionJSON
	if !r.logicInto(ctx, prompt, &raw) || raw.NeedsSearch == nil {
		return SearchDecision{Reason: "fallback"}
	}
	d := SearchDecision{NeedsSearch: *raw.NeedsSearch, Reason: raw.Reason}
	if raw.SearchQuery != nil {
		d.Query = strings.TrimSpace(*raw.SearchQuery)
	}
	slog.DebugContext(ctx, "search decision",
		slog.Bool("needs_search", d.NeedsSearch),
		slog.String("query", d.Query),
		slog.String("reason", d.Reason))
	return d
}

// profileUpdateJSON tolerates fractional or string relationship scores.
type profileUpdateJSON struct {
	RealName     string          `json:"realName"`
	Facts        string          `json:"facts"`
	Attitude     string          `json:"attitude"`
	Relationship json.RawMessage `json:"relationship"`
}

func (p profileUpdateJSON) toDomain() domain.ProfileUpdate {
	u := domain.ProfileUpdate{RealName: p.RealName, Facts: p.Facts, Attitude: p.Attitude}
	if score, ok := parseScore(p.Relationship); ok {
		u.Relationship = &score
	}
	return u
}

func parseScore(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, false
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, false
		}
	}
	score := int(math.Round(f))
	return min(max(score, 0), 100), true
}

func emptyUpdate(u domain.ProfileUpdate) bool {
	return u.RealName == "" && u.Facts == "" && u.Attitude == "" && u.Relationship == nil
}

func profileJSON(p domain.Profile) string {
	b, _ := json.Marshal(p)
	return string(b)
}

// AnalyzeUserImmediate refreshes one member's dossier from recent lines.
func (r *Router) AnalyzeUserImmediate(ctx domain.Context, recent string, current domain.Profile) (domain.ProfileUpdate, bool) {
	prompt := r.persona.Text("prompts.analyze_immediate", map[string]string{
		"Profile": profileJSON(current),
		"History": recent,
	})
	var raw profileUpdateJSON
	if !r.logicInto(ctx, prompt, &raw) {
		return domain.ProfileUpdate{}, false
	}
	u := raw.toDomain()
	return u, !emptyUpdate(u)
}

// AnalyzeBatch extracts profile updates for every sender in a window.
func (r *Router) AnalyzeBatch(ctx domain.Context, entries []domain.BufferEntry, profiles map[int64]domain.Profile) (map[int64]domain.ProfileUpdate, bool) {
	logLines := make([]string, len(entries))
	for i, e := range entries {
		logLines[i] = fmt.Sprintf("[ID:%d] %s: %s", e.SenderID, e.DisplayName, e.Text)
	}
	ids := make([]int64, 0, len(profiles))
	for id := range profiles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	known := make([]string, 0, len(ids))
	for _, id := range ids {
		p := profiles[id]
		known = append(known, fmt.Sprintf("ID:%d -> %s, %s, %s", id, p.RealName, p.Facts, p.Attitude))
	}

	prompt := r.persona.Text("prompts.analyze_batch", map[string]string{
		"Known": strings.Join(known, "\n"),
		"Log":   strings.Join(logLines, "\n"),
	})
	var raw map[string]profileUpdateJSON
	if !r.logicInto(ctx, prompt, &raw) {
		return nil, false
	}
	out := make(map[int64]domain.ProfileUpdate, len(raw))
	for key, v := range raw {
		id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(key), "ID:"), 10, 64)
		if err != nil {
			continue
		}
		if u := v.toDomain(); !emptyUpdate(u) {
			out[id] = u
		}
	}
	return out, len(out) > 0
}

// AnalyzeChatProfile refreshes the chat's topic, facts and style.
func (r *Router) AnalyzeChatProfile(ctx domain.Context, entries []domain.BufferEntry, current domain.ChatProfile) (domain.ChatProfileUpdate, bool) {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.DisplayName + ": " + e.Text
	}
	prompt := r.persona.Text("prompts.analyze_chat_profile", map[string]string{
		"Topic":    current.Topic,
		"Facts":    current.Facts,
		"Style":    current.Style,
		"Messages": strings.Join(lines, "\n"),
	})
	var u domain.ChatProfileUpdate
	if !r.logicInto(ctx, prompt, &u) {
		return domain.ChatProfileUpdate{}, false
	}
	return u, !u.Empty()
}

// DetermineReaction picks an allowed emoji for the last message, if any.
func (r *Router) DetermineReaction(ctx domain.Context, contextText string) (string, bool) {
	allowed := r.persona.Reactions()
	text, ok := r.logicText(ctx, r.persona.Text("prompts.reaction", map[string]string{
		"Context": contextText,
		"Allowed": strings.Join(allowed, " "),
	}))
	if !ok {
		return "", false
	}
	return firstAllowedEmoji(text, allowed)
}

// firstAllowedEmoji returns the earliest allowed emoji in text, preferring
// the longest match at a position so "❤‍🔥" wins over "❤".
func firstAllowedEmoji(text string, allowed []string) (string, bool) {
	best, bestAt := "", -1
	for _, e := range allowed {
		if e == "" {
			continue
		}
		at := strings.Index(text, e)
		if at < 0 {
			continue
		}
		if bestAt == -1 || at < bestAt || (at == bestAt && len(e) > len(best)) {
			best, bestAt = e, at
		}
	}
	return best, bestAt >= 0
}
