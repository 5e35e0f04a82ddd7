package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/ai-chat-router/internal/adapter/observability"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
	"github.com/fairyhunter13/ai-chat-router/internal/usage"
)

var errNotJSONObject = errors.New("response is not a JSON object")

// CleanJSON strips code fences and keeps the span from the first "{" to the last "}".
func CleanJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first != -1 && last > first {
		text = text[first : last+1]
	}
	return text
}

// logicJSON returns a validated JSON object text from whichever tier answers.
func (r *Router) logicJSON(ctx domain.Context, prompt string) (string, bool) {
	r.checkDay(ctx)

	if r.primaryActive() {
		pctx, cancel := r.callContext(ctx)
		out, err := r.primary.Complete(pctx, domain.CompletionRequest{
			Model: r.models.Logic,
			User:  prompt,
			JSON:  true,
		})
		cancel()
		if err == nil {
			r.ledger.Increment(usage.CategoryLogic)
			if obj := CleanJSON(out); json.Valid([]byte(obj)) && strings.HasPrefix(obj, "{") {
				observability.RouterOutcome("logic", "primary", "ok")
				return obj, true
			}
			observability.RouterOutcome("logic", "primary", "invalid")
			slog.DebugContext(ctx, "primary logic response not JSON", slog.Int("len", len(out)))
		} else {
			observability.RouterOutcome("logic", "primary", "error")
			slog.WarnContext(ctx, "primary_failed",
				slog.String("op", "logic"),
				slog.String("kind", domain.KindOf(err).String()),
				slog.Any("error", err))
			r.markPrimaryFailed(ctx)
		}
	}

	if r.fallback == nil || r.pool.Size() == 0 {
		return "", false
	}
	ctx, cancel := r.callContext(ctx)
	defer cancel()
	obj, err := ExecuteWithRetry(ctx, r, func(ctx domain.Context, cred domain.Credential) (string, error) {
		res, err := r.fallback.Generate(ctx, cred, domain.GenerateRequest{
			Model: r.models.FallbackLogic,
			Text:  prompt,
			JSON:  true,
		})
		if err != nil {
			return "", err
		}
		obj := CleanJSON(res.Text)
		if !json.Valid([]byte(obj)) || !strings.HasPrefix(obj, "{") {
			return "", errNotJSONObject
		}
		return obj, nil
	})
	if err != nil {
		observability.RouterOutcome("logic", "fallback", "error")
		slog.WarnContext(ctx, "logic call failed", slog.Any("error", err))
		return "", false
	}
	observability.RouterOutcome("logic", "fallback", "ok")
	return obj, true
}

// LogicCall runs a structured prompt and returns the decoded JSON object,
// or false when no tier produced one.
func (r *Router) LogicCall(ctx domain.Context, prompt string) (map[string]any, bool) {
	obj, ok := r.logicJSON(ctx, prompt)
	if !ok {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return nil, false
	}
	return out, true
}

// logicInto decodes the structured result into dst.
func (r *Router) logicInto(ctx domain.Context, prompt string, dst any) bool {
	obj, ok := r.logicJSON(ctx, prompt)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(obj), dst); err != nil {
		slog.DebugContext(ctx, "logic result shape mismatch", slog.String("type", fmt.Sprintf("%T", dst)), slog.Any("error", err))
		return false
	}
	return true
}

// logicText asks the primary tier for free text. There is no native
// fallback: callers treat absence as "skip".
func (r *Router) logicText(ctx domain.Context, prompt string) (string, bool) {
	ctx, cancel := r.callContext(ctx)
	defer cancel()
	r.checkDay(ctx)
	if !r.primaryActive() {
		return "", false
	}
	out, err := r.primary.Complete(ctx, domain.CompletionRequest{Model: r.models.Logic, User: prompt})
	if err != nil {
		slog.DebugContext(ctx, "logic text failed", slog.Any("error", err))
		return "", false
	}
	r.ledger.Increment(usage.CategoryLogic)
	return out, true
}
