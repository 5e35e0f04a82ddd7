// Package router decides which AI backend serves a request: the primary
// OpenAI-compatible API once, then the rotating pool of native keys.
package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-chat-router/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-chat-router/internal/credential"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
	"github.com/fairyhunter13/ai-chat-router/internal/persona"
	"github.com/fairyhunter13/ai-chat-router/internal/usage"
)

const (
	tracerName      = "router"
	chatMaxTokens   = 2500
	chatTemperature = 0.9
	notifyTimeout   = 15 * time.Second

	defaultCallTimeout = 90 * time.Second
)

// Searcher is the slice of the search dispatcher the router needs.
type Searcher interface {
	Search(ctx domain.Context, query string) (string, bool)
	Native() bool
	Provider() string
}

// Models names the model used per tier and request class.
type Models struct {
	Chat          string
	Logic         string
	FallbackChat  string
	FallbackLogic string
}

// Router is safe for concurrent use by many chats.
type Router struct {
	pool     *credential.Pool
	ledger   *usage.Ledger
	persona  *persona.Persona
	primary  domain.PrimaryClient
	fallback domain.FallbackClient
	search   Searcher
	notifier domain.Notifier
	clock    usage.Clock
	models   Models

	tokens       *tokencount.Counter
	historyLimit int
	callTimeout  time.Duration

	mu            sync.Mutex
	usingFallback bool

	detached sync.WaitGroup
}

// Option configures a Router.
type Option func(*Router)

// WithPrimary enables the primary tier.
func WithPrimary(c domain.PrimaryClient) Option { return func(r *Router) { r.primary = c } }

// WithFallback sets the native client driven by the credential pool.
func WithFallback(c domain.FallbackClient) Option { return func(r *Router) { r.fallback = c } }

// WithSearch sets the search dispatcher.
func WithSearch(s Searcher) Option { return func(r *Router) { r.search = s } }

// WithNotifier sets the operator channel.
func WithNotifier(n domain.Notifier) Option { return func(r *Router) { r.notifier = n } }

// WithClock sets the clock used for prompt time stamps.
func WithClock(c usage.Clock) Option { return func(r *Router) { r.clock = c } }

// WithModels sets model ids.
func WithModels(m Models) Option { return func(r *Router) { r.models = m } }

// WithCallTimeout bounds every backend call. The bound is independent of
// the caller's own deadline.
func WithCallTimeout(d time.Duration) Option { return func(r *Router) { r.callTimeout = d } }

// WithHistoryBudget caps the prompt history block at budget tokens.
func WithHistoryBudget(counter *tokencount.Counter, budget int) Option {
	return func(r *Router) {
		r.tokens = counter
		r.historyLimit = budget
	}
}

// New builds a router over a credential pool and its ledger.
func New(pool *credential.Pool, ledger *usage.Ledger, p *persona.Persona, opts ...Option) *Router {
	r := &Router{pool: pool, ledger: ledger, persona: p, clock: usage.SystemClock{}, callTimeout: defaultCallTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UsingFallback reports whether a primary attempt has failed since the last
// daily reset. It only feeds the stats mode line and the new-day notice;
// every request still tries the primary first.
func (r *Router) UsingFallback() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usingFallback
}

func (r *Router) primaryActive() bool { return r.primary != nil }

// markPrimaryFailed records a primary failure until the next daily reset.
func (r *Router) markPrimaryFailed(ctx context.Context) {
	r.mu.Lock()
	changed := !r.usingFallback
	r.usingFallback = true
	r.mu.Unlock()
	if changed {
		slog.WarnContext(ctx, "router serving from fallback tier")
	}
}

// callContext detaches ctx from the caller's cancellation so a local
// cutoff never aborts an in-flight backend call; the call is bounded by
// the router's own timeout instead. Context values are kept.
func (r *Router) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.callTimeout)
}

// checkDay runs the lazy daily reset. On a new day the pool restarts from
// the first key and the fallback flag is cleared.
func (r *Router) checkDay(ctx context.Context) {
	if !r.ledger.ResetIfNewDay() {
		return
	}
	r.pool.Reset()
	r.mu.Lock()
	wasFallback := r.usingFallback
	r.usingFallback = false
	r.mu.Unlock()
	slog.InfoContext(ctx, "daily usage reset", slog.Bool("was_fallback", wasFallback))
	if wasFallback {
		r.notify(ctx, r.persona.Text("alerts.new_day", nil))
	}
}

// notify sends text to the operator without blocking the caller.
func (r *Router) notify(ctx context.Context, text string) {
	if r.notifier == nil || text == "" {
		return
	}
	base := context.WithoutCancel(ctx)
	r.detached.Add(1)
	go func() {
		defer r.detached.Done()
		nctx, cancel := context.WithTimeout(base, notifyTimeout)
		defer cancel()
		if err := r.notifier.NotifyOperator(nctx, text); err != nil {
			slog.Warn("operator notification failed", slog.Any("error", err))
		}
	}()
}

// Wait blocks until detached notifications have finished.
func (r *Router) Wait() { r.detached.Wait() }

// StatsReport renders today's usage with the current routing mode.
func (r *Router) StatsReport(ctx context.Context) string {
	r.checkDay(ctx)
	return r.ledger.StatsReport(r.UsingFallback())
}

func (r *Router) stamp() string { return usage.Stamp(r.clock.Now()) }

// Usage returns a copy of today's counters.
func (r *Router) Usage() usage.Counters {
	r.checkDay(context.Background())
	return r.ledger.Snapshot()
}
