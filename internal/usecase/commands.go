package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

type activeUser struct {
	ID   int64
	Name string
	Text string
	Chat string
}

// activeUsers remembers the most recent distinct senders for /ban.
type activeUsers struct {
	mu    sync.Mutex
	limit int
	users []activeUser
}

func newActiveUsers(limit int) *activeUsers { return &activeUsers{limit: limit} }

func (a *activeUsers) remember(u activeUser) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, existing := range a.users {
		if existing.ID == u.ID {
			a.users = append(a.users[:i], a.users[i+1:]...)
			break
		}
	}
	a.users = append([]activeUser{u}, a.users...)
	if len(a.users) > a.limit {
		a.users = a.users[:a.limit]
	}
}

func (a *activeUsers) list() []activeUser {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]activeUser(nil), a.users...)
}

// handleCommand answers slash commands. handled is false for commands the
// assistant does not own, which then flow on like ordinary text.
func (o *Orchestrator) handleCommand(ctx context.Context, ev domain.ChatEvent, command string, isAdmin bool) (handled bool, err error) {
	send := func(text string) error {
		return o.messenger.SendText(ctx, ev.ChatID, ev.ThreadID, 0, text)
	}
	args := strings.Fields(ev.Text)[1:]

	switch command {
	case "/version":
		return true, send(o.persona.Text("commands.version", map[string]string{"Version": o.settings.Version}))
	case "/help", "/start":
		return true, send(o.persona.Text("commands.help", nil))
	case "/mute":
		muted, err := o.store.ToggleMute(ctx, ev.ChatID, ev.ThreadID)
		if err != nil {
			return true, fmt.Errorf("op=usecase.mute: %w", err)
		}
		if muted {
			return true, send(o.persona.Text("commands.mute_on", nil))
		}
		return true, send(o.persona.Text("commands.mute_off", nil))
	case "/reset":
		o.history.Reset(ev.ChatID)
		o.buffers.Reset(ev.ChatID)
		return true, send(o.persona.Text("commands.reset_done", nil))
	}

	if !isAdmin {
		return false, nil
	}
	switch command {
	case "/stats":
		return true, send(o.assistant.StatsReport(ctx))
	case "/banlist":
		return true, o.banList(ctx, send)
	case "/unban":
		if len(args) == 0 {
			return true, send(o.persona.Text("commands.unban_prompt", nil))
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return true, send(o.persona.Text("commands.unban_prompt", nil))
		}
		if err := o.store.Unban(ctx, id); err != nil {
			return true, fmt.Errorf("op=usecase.unban: %w", err)
		}
		return true, send(o.persona.Text("commands.unban_success", map[string]any{"ID": id}))
	case "/ban":
		if len(args) == 0 {
			return true, send(o.lastActive())
		}
		return true, o.ban(ctx, args[0], send)
	}
	return false, nil
}

func (o *Orchestrator) banList(ctx context.Context, send func(string) error) error {
	banned, err := o.store.BannedList(ctx)
	if err != nil {
		return fmt.Errorf("op=usecase.banList: %w", err)
	}
	if len(banned) == 0 {
		return send(o.persona.Text("commands.ban_list_empty", nil))
	}
	ids := make([]int64, 0, len(banned))
	for id := range banned {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	lines := make([]string, len(ids))
	for i, id := range ids {
		lines[i] = fmt.Sprintf("⛔ `%d` — %s", id, banned[id])
	}
	return send(o.persona.Text("commands.ban_list", map[string]string{"List": strings.Join(lines, "\n")}))
}

func (o *Orchestrator) lastActive() string {
	users := o.active.list()
	if len(users) == 0 {
		return o.persona.Text("commands.empty_activity", nil)
	}
	blocks := make([]string, len(users))
	for i, u := range users {
		blocks[i] = fmt.Sprintf("%d. *%s*\n🆔 `%d`\n💬 \"%s...\"\n📂 %s", i+1, u.Name, u.ID, u.Text, u.Chat)
	}
	return o.persona.Text("commands.last_active", map[string]string{"List": strings.Join(blocks, "\n\n")})
}

func (o *Orchestrator) ban(ctx context.Context, target string, send func(string) error) error {
	id, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		id, err = o.store.FindUserByUsername(ctx, strings.TrimPrefix(target, "@"))
		if errors.Is(err, domain.ErrNotFound) || (err == nil && id == 0) {
			return send(o.persona.Text("commands.user_not_found", map[string]string{"Name": target}))
		}
		if err != nil {
			return fmt.Errorf("op=usecase.ban: %w", err)
		}
	}
	if id == o.settings.AdminID {
		return send(o.persona.Text("commands.self_ban", nil))
	}
	if err := o.store.Ban(ctx, id, target); err != nil {
		return fmt.Errorf("op=usecase.ban: %w", err)
	}
	slog.InfoContext(ctx, "user banned", slog.Int64("user_id", id))
	return send(o.persona.Text("commands.ban_success", map[string]any{"Name": target, "ID": id}))
}
