package router

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/fairyhunter13/ai-chat-router/internal/adapter/observability"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
	"github.com/fairyhunter13/ai-chat-router/internal/usage"
)

const (
	promptHistoryLen = 20
	searchHistoryLen = 5
	maxCitations     = 3
)

// ChatRequest is everything the reply prompt is assembled from.
type ChatRequest struct {
	History     []domain.HistoryEntry
	Sender      string
	Text        string
	ReplyText   string
	Media       *domain.Media
	Profile     *domain.Profile
	ChatProfile *domain.ChatProfile
	Spontaneous bool
}

type mainChatData struct {
	Time           string
	ChatTopic      string
	ChatFacts      string
	ChatStyle      string
	History        string
	ReplyText      string
	SearchResults  string
	SearchProvider string
	HasProfile     bool
	ProfileFacts   string
	Relation       string
	Spontaneous    bool
	Sender         string
	Message        string
}

var thoughtPrefix = regexp.MustCompile(`(?is)^thought.*?\n\n`)

// stripThought removes a leaked reasoning preamble some models emit.
func stripThought(s string) string {
	return thoughtPrefix.ReplaceAllString(s, "")
}

// FormatHistory renders entries as "role: text" lines.
func FormatHistory(entries []domain.HistoryEntry) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Role + ": " + e.Text
	}
	return strings.Join(lines, "\n")
}

func tail[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func (r *Router) historyBlock(entries []domain.HistoryEntry) string {
	entries = tail(entries, promptHistoryLen)
	if r.tokens == nil || r.historyLimit <= 0 {
		return FormatHistory(entries)
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Role + ": " + e.Text
	}
	return strings.Join(r.tokens.TrimToBudget(lines, r.historyLimit, r.models.Chat), "\n")
}

func (r *Router) buildPrompt(req ChatRequest, searchText string) string {
	data := mainChatData{
		Time:        r.stamp(),
		History:     r.historyBlock(req.History),
		ReplyText:   req.ReplyText,
		Spontaneous: req.Spontaneous,
		Sender:      req.Sender,
		Message:     req.Text,
	}
	if searchText != "" {
		data.SearchResults = searchText
		if r.search != nil {
			data.SearchProvider = strings.ToUpper(r.search.Provider())
		}
	}
	if req.ChatProfile != nil {
		data.ChatTopic = req.ChatProfile.Topic
		data.ChatFacts = req.ChatProfile.Facts
		data.ChatStyle = req.ChatProfile.Style
	}
	if req.Profile != nil {
		data.HasProfile = true
		data.ProfileFacts = req.Profile.Facts
		data.Relation = r.persona.Relation(req.Profile.Relationship)
	}
	return r.persona.Text("prompts.main_chat", data)
}

// ChatReply produces the assistant's reply. The returned text may be empty
// when a backend answered with nothing; errors mean no tier could answer.
func (r *Router) ChatReply(ctx domain.Context, req ChatRequest) (reply string, err error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "router.ChatReply")
	defer func() { observability.EndSpan(span, err) }()

	r.checkDay(ctx)

	var searchText string
	topic := ""
	if req.ChatProfile != nil {
		topic = req.ChatProfile.Topic
	}
	decision := r.CheckSearchNeeded(ctx, req.Text, tail(req.History, searchHistoryLen), topic)
	if decision.NeedsSearch && decision.Query != "" {
		if r.search != nil && !r.search.Native() {
			sctx, cancel := r.callContext(ctx)
			searchText, _ = r.search.Search(sctx, decision.Query)
			cancel()
		}
		if searchText == "" && r.fallback != nil && r.pool.Size() > 0 {
			slog.InfoContext(ctx, "search yielded nothing, using native grounding", slog.String("query", decision.Query))
			return r.generateNative(ctx, "chat_grounded", r.buildPrompt(req, ""), req.Media)
		}
	}

	prompt := r.buildPrompt(req, searchText)

	if r.primaryActive() {
		pctx, cancel := r.callContext(ctx)
		out, perr := r.primary.Complete(pctx, domain.CompletionRequest{
			Model:       r.models.Chat,
			System:      r.persona.Text("prompts.system", nil),
			User:        prompt,
			Media:       req.Media,
			MaxTokens:   chatMaxTokens,
			Temperature: chatTemperature,
		})
		cancel()
		if perr == nil {
			r.ledger.Increment(usage.CategorySmart)
			observability.RouterOutcome("chat", "primary", "ok")
			return stripThought(out), nil
		}
		observability.RouterOutcome("chat", "primary", "error")
		slog.WarnContext(ctx, "primary_failed",
			slog.String("op", "chat"),
			slog.String("kind", domain.KindOf(perr).String()),
			slog.Any("error", perr))
		r.markPrimaryFailed(ctx)
	}

	return r.generateNative(ctx, "chat", prompt, req.Media)
}

// generateNative runs a grounded chat generation on the key pool and
// appends up to three distinct source links.
func (r *Router) generateNative(ctx domain.Context, operation, prompt string, media *domain.Media) (string, error) {
	if r.fallback == nil || r.pool.Size() == 0 {
		observability.RouterOutcome(operation, "none", "unavailable")
		return "", fmt.Errorf("op=router.generateNative: %w", domain.ErrNoBackend)
	}
	system := r.persona.Text("prompts.system", nil)
	ctx, cancel := r.callContext(ctx)
	defer cancel()
	res, err := ExecuteWithRetry(ctx, r, func(ctx domain.Context, cred domain.Credential) (domain.GenerateResult, error) {
		return r.fallback.Generate(ctx, cred, domain.GenerateRequest{
			Model:       r.models.FallbackChat,
			System:      system,
			Text:        prompt,
			Media:       media,
			Grounding:   true,
			Temperature: chatTemperature,
			MaxTokens:   chatMaxTokens,
		})
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, domain.ErrAllCredentialsExhausted) {
			outcome = "exhausted"
		}
		observability.RouterOutcome(operation, "fallback", outcome)
		return "", fmt.Errorf("op=router.generateNative: %w", err)
	}
	observability.RouterOutcome(operation, "fallback", "ok")
	return withCitations(res.Text, res.Citations), nil
}

func withCitations(text string, cites []domain.Citation) string {
	if text == "" || len(cites) == 0 {
		return text
	}
	seen := make(map[string]bool, len(cites))
	links := make([]string, 0, maxCitations)
	for _, c := range cites {
		title := c.Title
		if title == "" {
			title = "Источник"
		}
		link := "[" + title + "](" + c.URI + ")"
		if seen[link] {
			continue
		}
		seen[link] = true
		links = append(links, link)
		if len(links) == maxCitations {
			break
		}
	}
	return text + "\n\nНашел тут: " + strings.Join(links, " • ")
}
