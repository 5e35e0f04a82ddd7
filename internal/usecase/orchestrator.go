// Package usecase contains the per-event chat controller.
package usecase

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-chat-router/internal/adapter/observability"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
	"github.com/fairyhunter13/ai-chat-router/internal/history"
	"github.com/fairyhunter13/ai-chat-router/internal/persona"
	"github.com/fairyhunter13/ai-chat-router/internal/router"
	"github.com/fairyhunter13/ai-chat-router/pkg/textx"
)

const (
	immediateHistoryLen = 5
	reactionHistoryLen  = 15
	bootstrapMinHistory = 10
	bootstrapHistoryLen = 50
	minReactionRunes    = 10
	tldrRatio           = 0.65
	detachedTimeout     = 2 * time.Minute
)

// Assistant is the slice of the provider router the orchestrator drives.
type Assistant interface {
	ChatReply(ctx domain.Context, req router.ChatRequest) (string, error)
	DetermineReaction(ctx domain.Context, contextText string) (string, bool)
	Transcribe(ctx domain.Context, audio []byte, mime, userName string) (*domain.Transcription, bool)
	AnalyzeUserImmediate(ctx domain.Context, recent string, current domain.Profile) (domain.ProfileUpdate, bool)
	AnalyzeChatProfile(ctx domain.Context, entries []domain.BufferEntry, current domain.ChatProfile) (domain.ChatProfileUpdate, bool)
	StatsReport(ctx domain.Context) string
}

// Buffers receives every non-command message for background analysis.
type Buffers interface {
	OnMessage(ctx context.Context, chatID int64, entry domain.BufferEntry)
	Reset(chatID int64)
}

// Settings holds the orchestrator's static behaviour knobs.
type Settings struct {
	AdminID                int64
	Version                string
	Trigger                *regexp.Regexp
	SpontaneousProbability float64
	ReactionProbability    float64
	TypingInterval         time.Duration
	TypingTimeout          time.Duration
}

// Orchestrator decides, per inbound event, what the assistant does.
type Orchestrator struct {
	assistant Assistant
	store     domain.Storage
	messenger domain.Messenger
	notifier  domain.Notifier
	persona   *persona.Persona
	history   *history.Store
	buffers   Buffers
	settings  Settings
	statsRe   *regexp.Regexp
	random    func() float64

	active       *activeUsers
	bootstrapped sync.Map
	detached     sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRandom replaces the sampler used for spontaneous replies and reactions.
func WithRandom(fn func() float64) Option { return func(o *Orchestrator) { o.random = fn } }

// WithNotifier sets the operator channel.
func WithNotifier(n domain.Notifier) Option { return func(o *Orchestrator) { o.notifier = n } }

// NewOrchestrator wires the controller.
func NewOrchestrator(a Assistant, store domain.Storage, m domain.Messenger, p *persona.Persona, h *history.Store, b Buffers, s Settings, opts ...Option) *Orchestrator {
	if s.Trigger == nil {
		s.Trigger = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(p.BotName()))
	}
	if s.TypingInterval <= 0 {
		s.TypingInterval = 4 * time.Second
	}
	if s.TypingTimeout <= 0 {
		s.TypingTimeout = 20 * time.Second
	}
	o := &Orchestrator{
		assistant: a,
		store:     store,
		messenger: m,
		persona:   p,
		history:   h,
		buffers:   b,
		settings:  s,
		statsRe:   regexp.MustCompile(`(?i)^(?:` + s.Trigger.String() + `)[\s\p{P}]+(?:стата|статистика)$`),
		random:    rand.Float64,
		active:    newActiveUsers(10),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Wait blocks until detached work (analysis, reactions, alerts) has finished.
func (o *Orchestrator) Wait() { o.detached.Wait() }

func (o *Orchestrator) decision(d string) {
	observability.ChatEventsTotal.WithLabelValues(d).Inc()
}

// HandleEvent processes one inbound chat event. Events of one chat must be
// delivered serially; different chats may be handled concurrently.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev domain.ChatEvent) error {
	ctx = observability.ContextWithChat(ctx, ev.ChatID)
	isAdmin := ev.UserID == o.settings.AdminID

	if !isAdmin {
		banned, err := o.store.IsBanned(ctx, ev.UserID)
		if err != nil {
			slog.WarnContext(ctx, "ban check failed", slog.Any("error", err))
		}
		if banned {
			o.decision("banned")
			return nil
		}
	}

	command := commandOf(ev.Text)
	title := chatTitle(ev)
	if !isAdmin {
		o.active.remember(activeUser{ID: ev.UserID, Name: senderHandle(ev), Text: textx.Truncate(ev.Text, 30, ""), Chat: title})
	}
	o.announceChat(ctx, ev, title)

	if ev.ChatType == domain.ChatPrivate && !isAdmin {
		o.forwardPrivate(ctx, ev)
		o.decision("private")
		key := "private.info_text"
		if command == "/start" {
			key = "commands.help"
		}
		return o.messenger.SendText(ctx, ev.ChatID, 0, 0, o.persona.Text(key, nil))
	}

	if ev.AdminLeft {
		o.decision("admin_left")
		if err := o.messenger.SendText(ctx, ev.ChatID, ev.ThreadID, 0, o.persona.Text("private.admin_left", nil)); err != nil {
			slog.WarnContext(ctx, "farewell not sent", slog.Any("error", err))
		}
		return o.messenger.LeaveChat(ctx, ev.ChatID)
	}

	text := ev.Text
	if ev.Voice != nil {
		transcribed, stop := o.handleVoice(ctx, ev)
		if stop {
			o.decision("voice")
			return nil
		}
		if transcribed != "" {
			text = transcribed
		}
	}

	if text == "" && ev.Media == nil && ev.StickerEmoji == "" && ev.MediaRejected == "" {
		o.decision("empty")
		return nil
	}

	if ev.ChatType != domain.ChatPrivate {
		if err := o.store.TrackUser(ctx, ev.ChatID, ev.UserID, ev.FirstName, ev.Username); err != nil {
			slog.WarnContext(ctx, "track user failed", slog.Any("error", err))
		}
	}

	sender := ev.FirstName
	if sender == "" {
		sender = o.persona.Text("features.fallback_sender", nil)
	}
	o.history.Append(ev.ChatID, sender, text)
	if command == "" {
		o.buffers.OnMessage(ctx, ev.ChatID, domain.BufferEntry{
			SenderID:    ev.UserID,
			DisplayName: ev.DisplayName(sender),
			Text:        text,
		})
	}

	if command != "" {
		if handled, err := o.handleCommand(ctx, ev, command, isAdmin); handled {
			o.decision("command")
			return err
		}
	}

	muted, err := o.store.IsMuted(ctx, ev.ChatID, ev.ThreadID)
	if err != nil {
		slog.WarnContext(ctx, "mute check failed", slog.Any("error", err))
	}
	if muted {
		o.decision("muted")
		return nil
	}

	lower := strings.ToLower(strings.TrimSpace(text))
	if o.statsRe.MatchString(lower) {
		o.decision("stats")
		return o.messenger.SendText(ctx, ev.ChatID, ev.ThreadID, ev.MessageID, o.assistant.StatsReport(ctx))
	}

	addressed := ev.ReplyToBot || o.settings.Trigger.MatchString(lower)
	spontaneous := !addressed && o.settings.SpontaneousProbability > 0 && o.random() < o.settings.SpontaneousProbability
	if !addressed && !spontaneous {
		o.maybeReact(ctx, ev, text)
		return nil
	}

	o.decision("reply")
	o.reply(ctx, ev, sender, text, title, spontaneous)
	return nil
}

func commandOf(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	head := strings.FieldsFunc(text, func(r rune) bool { return r == '@' || r == ' ' || r == '\n' || r == '\t' })
	if len(head) == 0 {
		return ""
	}
	return strings.ToLower(head[0])
}

func chatTitle(ev domain.ChatEvent) string {
	switch {
	case ev.ChatTitle != "":
		return ev.ChatTitle
	case ev.Username != "" && ev.ChatType == domain.ChatPrivate:
		return ev.Username
	case ev.FirstName != "":
		return ev.FirstName
	default:
		return "Unknown"
	}
}

func senderHandle(ev domain.ChatEvent) string {
	if ev.Username != "" {
		return "@" + ev.Username
	}
	return ev.FirstName
}

// announceChat tells the operator about chats we have not seen before.
func (o *Orchestrator) announceChat(ctx context.Context, ev domain.ChatEvent, title string) {
	if ev.ChatID == o.settings.AdminID {
		return
	}
	known, err := o.store.HasChat(ctx, ev.ChatID)
	if err != nil {
		slog.WarnContext(ctx, "chat lookup failed", slog.Any("error", err))
		return
	}
	if !known {
		who := "@" + ev.Username + " (" + ev.FirstName + ")"
		alert := o.persona.Text("alerts.new_chat_header", map[string]any{"Title": title, "ChatID": ev.ChatID})
		switch {
		case ev.ChatType == domain.ChatPrivate:
			alert += o.persona.Text("alerts.private_message", map[string]string{"Who": who, "Text": ev.Text})
		case ev.BotAdded:
			alert += o.persona.Text("alerts.group_added", map[string]string{"Who": who})
		default:
			alert += o.persona.Text("alerts.group_activated", map[string]string{"Who": who, "Text": ev.Text})
		}
		o.notify(ctx, alert)
	}
	if err := o.store.TrackChat(ctx, ev.ChatID, title); err != nil {
		slog.WarnContext(ctx, "track chat failed", slog.Any("error", err))
	}
}

func (o *Orchestrator) forwardPrivate(ctx context.Context, ev domain.ChatEvent) {
	content := ev.Text
	if content == "" {
		content = o.persona.Text("private.file_placeholder", nil)
	}
	o.notify(ctx, o.persona.Text("alerts.private_forward", map[string]string{
		"Who":  "@" + ev.Username + " (" + ev.FirstName + ")",
		"Text": content,
	}))
}

// handleVoice posts the transcript. stop is true when the topic is muted and
// the transcript must not be answered.
func (o *Orchestrator) handleVoice(ctx context.Context, ev domain.ChatEvent) (text string, stop bool) {
	typing := o.startTyping(ctx, ev)
	userName := ev.FirstName
	if userName == "" {
		userName = o.persona.Text("voice.unknown_user", nil)
	}
	t, ok := o.assistant.Transcribe(ctx, ev.Voice.Data, ev.Voice.MIME, userName)
	typing()
	if !ok {
		return "", false
	}

	var reply string
	if float64(len([]rune(t.Summary))) < float64(len([]rune(t.Text)))*tldrRatio {
		reply = o.persona.Text("voice.tldr_reply", map[string]string{"Summary": t.Summary, "Text": t.Text})
	} else {
		reply = o.persona.Text("voice.full_reply", map[string]string{"User": userName, "Text": t.Text})
	}
	if err := o.messenger.SendText(ctx, ev.ChatID, ev.ThreadID, ev.MessageID, reply); err != nil {
		slog.WarnContext(ctx, "transcript not sent", slog.Any("error", err))
	}

	muted, err := o.store.IsMuted(ctx, ev.ChatID, ev.ThreadID)
	if err != nil {
		slog.WarnContext(ctx, "mute check failed", slog.Any("error", err))
	}
	return t.Text, muted
}

func (o *Orchestrator) maybeReact(ctx context.Context, ev domain.ChatEvent, text string) {
	if ev.ReplyToBot || len([]rune(text)) <= minReactionRunes || o.random() >= o.settings.ReactionProbability {
		o.decision("ignored")
		return
	}
	o.decision("reaction")
	contextText := router.FormatHistory(o.history.Recent(ev.ChatID, reactionHistoryLen)) +
		o.persona.Text("features.reaction_context", map[string]string{"Text": text})
	o.detach(ctx, func(ctx context.Context) {
		emoji, ok := o.assistant.DetermineReaction(ctx, contextText)
		if !ok {
			return
		}
		if err := o.messenger.SendReaction(ctx, ev.ChatID, ev.MessageID, emoji); err != nil {
			slog.DebugContext(ctx, "reaction not sent", slog.Any("error", err))
		}
	})
}

func (o *Orchestrator) reply(ctx context.Context, ev domain.ChatEvent, sender, text, title string, spontaneous bool) {
	stopTyping := o.startTyping(ctx, ev)
	defer stopTyping()

	if ev.MediaRejected != "" {
		if err := o.messenger.SendText(ctx, ev.ChatID, ev.ThreadID, ev.MessageID, o.persona.Text("features."+ev.MediaRejected, nil)); err != nil {
			slog.WarnContext(ctx, "media notice not sent", slog.Any("error", err))
		}
		return
	}
	if ev.StickerEmoji != "" {
		text += o.persona.Text("features.sticker_context", map[string]string{"Emoji": ev.StickerEmoji})
	}

	req := router.ChatRequest{
		History:     o.history.Recent(ev.ChatID, 0),
		Sender:      sender,
		Text:        text,
		ReplyText:   ev.ReplyText,
		Media:       ev.Media,
		Spontaneous: spontaneous,
	}
	profile, err := o.store.Profile(ctx, ev.ChatID, ev.UserID)
	if err != nil {
		slog.WarnContext(ctx, "profile lookup failed", slog.Any("error", err))
	} else {
		req.Profile = &profile
	}
	chatProfile, err := o.store.ChatProfile(ctx, ev.ChatID)
	if err != nil {
		slog.WarnContext(ctx, "chat profile lookup failed", slog.Any("error", err))
	} else {
		req.ChatProfile = &chatProfile
		if chatProfile.Topic == "" && o.history.Len(ev.ChatID) >= bootstrapMinHistory {
			o.bootstrapChatProfile(ctx, ev.ChatID, chatProfile)
		}
	}

	answer, err := o.assistant.ChatReply(ctx, req)
	if ctx.Err() != nil {
		// The backend call ran to completion; only its delivery is dropped.
		slog.WarnContext(ctx, "reply discarded after event deadline",
			slog.Bool("failed", err != nil), slog.Any("cause", ctx.Err()))
		return
	}
	switch {
	case err != nil:
		slog.ErrorContext(ctx, "chat reply failed", slog.Any("error", err))
		o.notify(ctx, o.persona.Text("alerts.crash", map[string]string{"Title": title, "Error": err.Error()}))
		answer = o.persona.ErrorReply(err.Error())
	case strings.TrimSpace(answer) == "":
		o.notify(ctx, o.persona.Text("alerts.empty_reply", map[string]string{"Title": title}))
		answer = o.persona.ErrorReply("503 overloaded")
	}

	out := textx.Truncate(FormatReply(answer), maxReplyRunes, o.persona.Text("features.long_response_suffix", nil))
	for _, chunk := range textx.Chunk(out, chunkRunes) {
		if err := o.messenger.SendText(ctx, ev.ChatID, ev.ThreadID, ev.MessageID, chunk); err != nil {
			slog.ErrorContext(ctx, "reply not sent", slog.Any("error", err))
			o.notify(ctx, o.persona.Text("alerts.send_error", map[string]any{"Title": title, "ChatID": ev.ChatID, "Error": err.Error()}))
			return
		}
	}
	stopTyping()
	o.history.Append(ev.ChatID, o.persona.BotName(), answer)

	if req.Profile != nil {
		o.refreshProfile(ctx, ev, *req.Profile)
	}
}

func (o *Orchestrator) refreshProfile(ctx context.Context, ev domain.ChatEvent, current domain.Profile) {
	recent := router.FormatHistory(o.history.Recent(ev.ChatID, immediateHistoryLen))
	o.detach(ctx, func(ctx context.Context) {
		update, ok := o.assistant.AnalyzeUserImmediate(ctx, recent, current)
		if !ok {
			slog.DebugContext(ctx, "profile refresh produced nothing", slog.Int64("user_id", ev.UserID))
			return
		}
		if update.Relationship != nil {
			slog.InfoContext(ctx, "relationship updated", slog.Int64("user_id", ev.UserID), slog.Int("score", *update.Relationship))
		}
		if err := o.store.BulkUpdateProfiles(ctx, ev.ChatID, map[int64]domain.ProfileUpdate{ev.UserID: update}); err != nil {
			slog.WarnContext(ctx, "profile refresh not stored", slog.Any("error", err))
		}
	})
}

// bootstrapChatProfile seeds an empty chat profile from recent history once
// per process lifetime.
func (o *Orchestrator) bootstrapChatProfile(ctx context.Context, chatID int64, current domain.ChatProfile) {
	if _, loaded := o.bootstrapped.LoadOrStore(chatID, true); loaded {
		return
	}
	recent := o.history.Recent(chatID, bootstrapHistoryLen)
	entries := make([]domain.BufferEntry, len(recent))
	for i, h := range recent {
		entries[i] = domain.BufferEntry{DisplayName: h.Role, Text: h.Text}
	}
	o.detach(ctx, func(ctx context.Context) {
		update, ok := o.assistant.AnalyzeChatProfile(ctx, entries, current)
		if !ok {
			o.bootstrapped.Delete(chatID)
			return
		}
		if err := o.store.UpdateChatProfile(ctx, chatID, update); err != nil {
			slog.WarnContext(ctx, "chat profile bootstrap not stored", slog.Any("error", err))
			o.bootstrapped.Delete(chatID)
			return
		}
		slog.InfoContext(ctx, "chat profile bootstrapped", slog.String("topic", update.Topic))
	})
}

// startTyping keeps the typing indicator alive until the returned stop is
// called or the safety timeout elapses. Stop is idempotent.
func (o *Orchestrator) startTyping(ctx context.Context, ev domain.ChatEvent) func() {
	tctx, cancel := context.WithTimeout(ctx, o.settings.TypingTimeout)
	send := func() {
		if err := o.messenger.SendTyping(tctx, ev.ChatID, ev.ThreadID); err != nil {
			slog.DebugContext(tctx, "typing indicator failed", slog.Any("error", err))
		}
	}
	send()
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(o.settings.TypingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-tctx.Done():
				return
			case <-ticker.C:
				send()
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// detach runs fn outside the caller's cancellation with its own deadline.
func (o *Orchestrator) detach(ctx context.Context, fn func(context.Context)) {
	base := context.WithoutCancel(ctx)
	o.detached.Add(1)
	go func() {
		defer o.detached.Done()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("detached task panicked", slog.Any("panic", rec))
			}
		}()
		dctx, cancel := context.WithTimeout(base, detachedTimeout)
		defer cancel()
		fn(dctx)
	}()
}

func (o *Orchestrator) notify(ctx context.Context, text string) {
	if o.notifier == nil || text == "" {
		return
	}
	o.detach(ctx, func(ctx context.Context) {
		if err := o.notifier.NotifyOperator(ctx, text); err != nil {
			slog.WarnContext(ctx, "operator notification failed", slog.Any("error", err))
		}
	})
}
