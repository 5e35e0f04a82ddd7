// Package tokencount estimates prompt sizes so chat history can be kept
// inside a token budget before it is sent to a backend.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	// BPE ranks ship with the binary; no download at startup.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

const fallbackEncoding = "cl100k_base"

// Counter is a thread-safe token counter with a per-model encoding cache.
type Counter struct {
	mu            sync.RWMutex
	encodingCache map[string]*tiktoken.Tiktoken
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{encodingCache: make(map[string]*tiktoken.Tiktoken)}
}

// DefaultCounter is shared by callers that do not need isolation.
var DefaultCounter = NewCounter()

func (c *Counter) encodingFor(model string) (*tiktoken.Tiktoken, error) {
	name := normalizeModelName(model)

	c.mu.RLock()
	enc, ok := c.encodingCache[name]
	c.mu.RUnlock()
	if ok {
		return enc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding", slog.String("model", model), slog.Any("error", err))
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, err
		}
	}
	c.encodingCache[name] = enc
	return enc, nil
}

// normalizeModelName maps provider model ids onto a tiktoken-known model.
// Non-OpenAI families are approximated with the gpt-4 encoding.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	model = strings.TrimSuffix(model, ":free")
	switch {
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		return "gpt-4"
	}
}

// CountTokens counts tokens in text. On encoder failure it falls back to
// a four-characters-per-token estimate.
func (c *Counter) CountTokens(text, model string) int {
	if text == "" {
		return 0
	}
	enc, err := c.encodingFor(model)
	if err != nil {
		return len([]rune(text))/4 + 1
	}
	return len(enc.Encode(text, nil, nil))
}

// CountPrompt counts a system plus user prompt including per-message overhead.
func (c *Counter) CountPrompt(system, user, model string) int {
	const perMessage = 4
	n := 3
	if system != "" {
		n += perMessage + c.CountTokens(system, model)
	}
	return n + perMessage + c.CountTokens(user, model)
}

// TrimToBudget drops the oldest lines until the rest fits in budget tokens.
// The newest line is always kept. A budget <= 0 disables trimming.
func (c *Counter) TrimToBudget(lines []string, budget int, model string) []string {
	if budget <= 0 || len(lines) == 0 {
		return lines
	}
	total := 0
	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		total += c.CountTokens(lines[i], model) + 1
		if total > budget && i < len(lines)-1 {
			break
		}
		start = i
	}
	if start > 0 {
		slog.Debug("history trimmed to token budget",
			slog.Int("dropped", start),
			slog.Int("kept", len(lines)-start),
			slog.Int("budget", budget))
	}
	return lines[start:]
}
