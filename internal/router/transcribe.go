package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/ai-chat-router/internal/adapter/observability"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

var errEmptyTranscription = errors.New("empty transcription")

// Transcribe turns a voice message into text plus a short summary. Only the
// native tier accepts raw audio, so without keys the result is absent.
func (r *Router) Transcribe(ctx domain.Context, audio []byte, mime, userName string) (*domain.Transcription, bool) {
	ctx, span := observability.StartSpan(ctx, tracerName, "router.Transcribe", "mime", mime)
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()
	ctx, cancel := r.callContext(ctx)
	defer cancel()

	r.checkDay(ctx)
	if r.fallback == nil || r.pool.Size() == 0 {
		slog.WarnContext(ctx, "voice message skipped, no native keys")
		return nil, false
	}
	prompt := r.persona.Text("prompts.transcription", map[string]string{"User": userName})
	media := &domain.Media{MIME: mime, Data: audio}

	out, err := ExecuteWithRetry(ctx, r, func(ctx domain.Context, cred domain.Credential) (*domain.Transcription, error) {
		res, err := r.fallback.Generate(ctx, cred, domain.GenerateRequest{
			Model: r.models.FallbackChat,
			Text:  prompt,
			Media: media,
			JSON:  true,
		})
		if err != nil {
			return nil, err
		}
		var t domain.Transcription
		if err := json.Unmarshal([]byte(CleanJSON(res.Text)), &t); err != nil {
			return nil, fmt.Errorf("decode transcription: %w", err)
		}
		t.Text = strings.TrimSpace(t.Text)
		t.Summary = strings.TrimSpace(t.Summary)
		if t.Text == "" {
			return nil, errEmptyTranscription
		}
		return &t, nil
	})
	if err != nil {
		spanErr = err
		observability.RouterOutcome("transcribe", "fallback", "error")
		slog.WarnContext(ctx, "transcription failed", slog.Any("error", err))
		return nil, false
	}
	observability.RouterOutcome("transcribe", "fallback", "ok")
	return out, true
}
