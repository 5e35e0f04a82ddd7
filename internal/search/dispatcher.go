// Package search fronts the configured web search provider. Every failure
// is absorbed: search only ever adds optional context to a reply.
package search

import (
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-chat-router/internal/adapter/observability"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
	"github.com/fairyhunter13/ai-chat-router/internal/usage"
)

// Provider names accepted by SEARCH_PROVIDER.
const (
	ProviderTavily     = "tavily"
	ProviderPerplexity = "perplexity"
	ProviderGoogle     = "google"
)

// Counter records successful searches.
type Counter interface {
	Increment(cat usage.Category)
}

// SystemPrompter renders the perplexity system prompt for a time stamp.
type SystemPrompter func(stamp string) string

// Dispatcher runs a query against exactly one provider chosen at startup.
type Dispatcher struct {
	provider        string
	tavily          domain.SearchProvider
	primary         domain.PrimaryClient
	perplexityModel string
	systemPrompt    SystemPrompter
	counter         Counter
	clock           usage.Clock
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTavily sets the Tavily client.
func WithTavily(p domain.SearchProvider) Option { return func(d *Dispatcher) { d.tavily = p } }

// WithPerplexity routes perplexity searches through the primary client.
func WithPerplexity(primary domain.PrimaryClient, model string, prompt SystemPrompter) Option {
	return func(d *Dispatcher) {
		d.primary = primary
		d.perplexityModel = model
		d.systemPrompt = prompt
	}
}

// WithClock overrides the clock used for the perplexity date line.
func WithClock(c usage.Clock) Option { return func(d *Dispatcher) { d.clock = c } }

// New builds a dispatcher for provider.
func New(provider string, counter Counter, opts ...Option) *Dispatcher {
	d := &Dispatcher{provider: strings.ToLower(provider), counter: counter, clock: usage.SystemClock{}}
	for _, opt := range opts {
		opt(d)
	}
	if d.systemPrompt == nil {
		d.systemPrompt = func(stamp string) string {
			return "Date: " + stamp + ". Search engine mode. Provide facts with URLs."
		}
	}
	return d
}

// Provider is the configured provider name.
func (d *Dispatcher) Provider() string { return d.provider }

// Native reports whether searches are left to the fallback model's own grounding.
func (d *Dispatcher) Native() bool { return d.provider == ProviderGoogle }

// Search returns a text summary and true, or false when nothing usable came back.
func (d *Dispatcher) Search(ctx domain.Context, query string) (string, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", false
	}
	start := time.Now()
	var (
		out string
		err error
	)
	switch d.provider {
	case ProviderTavily:
		if d.tavily == nil {
			return "", false
		}
		out, err = d.tavily.Search(ctx, query)
	case ProviderPerplexity:
		if d.primary == nil {
			return "", false
		}
		out, err = d.primary.Complete(ctx, domain.CompletionRequest{
			Model:       d.perplexityModel,
			System:      d.systemPrompt(usage.Stamp(d.clock.Now())),
			User:        query,
			Temperature: 0.1,
		})
	default:
		return "", false
	}

	if err != nil {
		observability.SearchRequestsTotal.WithLabelValues(d.provider, "error").Inc()
		slog.Warn("search failed",
			slog.String("provider", d.provider),
			slog.String("query", query),
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", err))
		return "", false
	}
	if strings.TrimSpace(out) == "" {
		observability.SearchRequestsTotal.WithLabelValues(d.provider, "empty").Inc()
		return "", false
	}
	if d.counter != nil {
		d.counter.Increment(usage.CategorySearch)
	}
	observability.SearchRequestsTotal.WithLabelValues(d.provider, "ok").Inc()
	slog.Info("search ok", slog.String("provider", d.provider), slog.Duration("elapsed", time.Since(start)))
	return out, true
}
