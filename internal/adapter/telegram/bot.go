package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fairyhunter13/ai-chat-router/internal/adapter/observability"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

// Handler consumes normalized chat events.
type Handler interface {
	HandleEvent(ctx context.Context, ev domain.ChatEvent) error
}

// Options tune the update loop.
type Options struct {
	BotID   int64
	AdminID int64
	// Trigger marks group messages addressed to the bot; only those get
	// their photos and documents downloaded.
	Trigger        *regexp.Regexp
	PollTimeout    int
	TaskTimeout    time.Duration
	MaxConcurrency int
}

// Bot long-polls getUpdates and hands each message to the handler on a
// per-chat worker.
type Bot struct {
	api        API
	handler    Handler
	downloader *Downloader
	opts       Options
	dispatch   *dispatcher
	offset     int
	lastPoll   atomic.Int64
}

// ErrNotPolling is reported while getUpdates has not succeeded recently.
var ErrNotPolling = errors.New("telegram update loop not running")

// NewBot wires the update loop.
func NewBot(api API, handler Handler, downloader *Downloader, opts Options) *Bot {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 60
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 2 * time.Minute
	}
	return &Bot{
		api:        api,
		handler:    handler,
		downloader: downloader,
		opts:       opts,
		dispatch:   newDispatcher(opts.MaxConcurrency),
	}
}

type pollResult struct {
	updates []json.RawMessage
	err     error
}

// Run polls until ctx is cancelled. Queued chat jobs keep running; call
// Close to wait for them.
func (b *Bot) Run(ctx context.Context) error {
	slog.Info("telegram polling started", slog.Int("poll_timeout", b.opts.PollTimeout))
	for {
		res := make(chan pollResult, 1)
		go func() {
			u, err := b.poll()
			res <- pollResult{updates: u, err: err}
		}()
		var r pollResult
		select {
		case <-ctx.Done():
			return nil
		case r = <-res:
		}
		if r.err != nil {
			observability.TelegramUpdatesTotal.WithLabelValues("poll_error").Inc()
			slog.Warn("telegram getUpdates failed", slog.Any("error", r.err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		b.lastPoll.Store(time.Now().UnixNano())
		for _, raw := range r.updates {
			b.Process(ctx, raw)
		}
	}
}

func (b *Bot) poll() ([]json.RawMessage, error) {
	params := tgbotapi.Params{}
	params.AddNonZero("offset", b.offset)
	params.AddNonZero("timeout", b.opts.PollTimeout)
	if err := params.AddInterface("allowed_updates", []string{"message"}); err != nil {
		return nil, err
	}
	resp, err := b.api.MakeRequest("getUpdates", params)
	if err != nil {
		return nil, fmt.Errorf("op=telegram.getUpdates: %w", err)
	}
	var updates []json.RawMessage
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, fmt.Errorf("op=telegram.getUpdates: %w", err)
	}
	return updates, nil
}

// Process decodes one update, advances the offset and queues the event.
func (b *Bot) Process(ctx context.Context, raw json.RawMessage) {
	u, thread, err := decodeUpdate(raw)
	if err != nil {
		observability.TelegramUpdatesTotal.WithLabelValues("invalid").Inc()
		slog.Warn("telegram update undecodable", slog.Any("error", err))
		return
	}
	if u.UpdateID >= b.offset {
		b.offset = u.UpdateID + 1
	}
	in, ok := normalize(u, thread, b.opts.BotID, b.opts.AdminID)
	if !ok {
		observability.TelegramUpdatesTotal.WithLabelValues("skipped").Inc()
		return
	}
	observability.TelegramUpdatesTotal.WithLabelValues("accepted").Inc()
	if !b.dispatch.submit(ctx, in.event.ChatID, func() { b.handle(ctx, in) }) {
		observability.TelegramUpdatesTotal.WithLabelValues("dropped").Inc()
	}
}

func (b *Bot) handle(parent context.Context, in inbound) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), b.opts.TaskTimeout)
	defer cancel()
	ctx = observability.ContextWithRequestID(ctx, in.event.ID)
	lg := observability.LoggerFromContext(ctx).With(
		slog.String("event_id", in.event.ID),
		slog.Int64("chat_id", in.event.ChatID))
	ctx = observability.ContextWithLogger(ctx, lg)

	ev := b.attach(ctx, in)
	if err := b.handler.HandleEvent(ctx, ev); err != nil {
		lg.Error("chat event failed", slog.Any("error", err))
	}
}

// attach downloads voice notes always and other media only when the
// message is addressed to the bot.
func (b *Bot) attach(ctx context.Context, in inbound) domain.ChatEvent {
	ev := in.event
	if b.downloader == nil {
		return ev
	}
	lg := observability.LoggerFromContext(ctx)
	if in.voice != nil {
		if m, err := b.downloader.Fetch(ctx, *in.voice); err != nil {
			lg.Warn("voice download failed", slog.Any("error", err))
		} else {
			ev.Voice = m
		}
	}
	if in.media != nil && b.addressed(ev) {
		m, err := b.downloader.Fetch(ctx, *in.media)
		switch {
		case errors.Is(err, ErrUnsupportedMedia):
			ev.MediaRejected = domain.MediaRejectedUnsupported
		case errors.Is(err, ErrFileTooLarge) && in.media.kind == kindVideo:
			ev.MediaRejected = domain.MediaRejectedVideoTooLarge
		case errors.Is(err, ErrFileTooLarge):
			ev.MediaRejected = domain.MediaRejectedDocumentTooLarge
		case err != nil:
			lg.Warn("media download failed", slog.String("kind", in.media.kind), slog.Any("error", err))
		default:
			ev.Media = m
		}
	}
	return ev
}

func (b *Bot) addressed(ev domain.ChatEvent) bool {
	if ev.ChatType == domain.ChatPrivate || ev.ReplyToBot {
		return true
	}
	return b.opts.Trigger != nil && b.opts.Trigger.MatchString(ev.Text)
}

// Ready fails unless a poll succeeded within two poll timeouts.
func (b *Bot) Ready(context.Context) error {
	last := b.lastPoll.Load()
	limit := 2*time.Duration(b.opts.PollTimeout)*time.Second + 10*time.Second
	if last == 0 || time.Since(time.Unix(0, last)) > limit {
		return ErrNotPolling
	}
	return nil
}

// Close stops accepting updates and waits for queued chat jobs.
func (b *Bot) Close() { b.dispatch.close() }
