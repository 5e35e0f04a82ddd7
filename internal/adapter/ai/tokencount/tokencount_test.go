package tokencount

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTokens(t *testing.T) {
	t.Parallel()

	counter := NewCounter()
	tests := []struct {
		name     string
		text     string
		model    string
		minCount int
		maxCount int
	}{
		{name: "gpt-4", text: "Hello, world!", model: "gpt-4", minCount: 3, maxCount: 5},
		{name: "prefixed id", text: "Hello, world!", model: "openai/gpt-4o-mini", minCount: 3, maxCount: 5},
		{name: "gemini approximated", text: "The quick brown fox jumps over the lazy dog.", model: "gemini-2.5-flash", minCount: 8, maxCount: 12},
		{name: "empty", text: "", model: "gpt-4", minCount: 0, maxCount: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count := counter.CountTokens(tt.text, tt.model)
			assert.GreaterOrEqual(t, count, tt.minCount)
			assert.LessOrEqual(t, count, tt.maxCount)
		})
	}
}

func TestNormalizeModelName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "gpt-4", normalizeModelName("openai/gpt-4o-mini"))
	assert.Equal(t, "gpt-3.5-turbo", normalizeModelName("GPT-3.5-turbo-0125"))
	assert.Equal(t, "gpt-4", normalizeModelName("meta-llama/llama-3.1-8b-instruct:free"))
	assert.Equal(t, "gpt-4", normalizeModelName("gemini-2.5-flash"))
}

func TestCountPrompt(t *testing.T) {
	t.Parallel()

	c := NewCounter()
	withSystem := c.CountPrompt("You are a sarcastic owl.", "hi", "gpt-4")
	without := c.CountPrompt("", "hi", "gpt-4")
	assert.Greater(t, withSystem, without)
	assert.Greater(t, without, c.CountTokens("hi", "gpt-4"))
}

func TestEncodingCache(t *testing.T) {
	t.Parallel()

	c := NewCounter()
	_ = c.CountTokens("a", "gpt-4")
	_ = c.CountTokens("b", "gemini-2.5-flash")
	c.mu.RLock()
	defer c.mu.RUnlock()
	assert.Len(t, c.encodingCache, 1, "both models share the gpt-4 encoding")
}

func TestTrimToBudget(t *testing.T) {
	t.Parallel()

	c := NewCounter()
	lines := []string{
		strings.Repeat("old words here ", 50),
		strings.Repeat("middle ", 20),
		"newest line",
	}

	assert.Equal(t, lines, c.TrimToBudget(lines, 0, "gpt-4"))
	assert.Equal(t, lines, c.TrimToBudget(lines, 100000, "gpt-4"))

	trimmed := c.TrimToBudget(lines, 40, "gpt-4")
	assert.Equal(t, lines[1:], trimmed)

	// newest line survives even when it alone exceeds the budget
	tiny := c.TrimToBudget(lines, 1, "gpt-4")
	assert.Equal(t, []string{"newest line"}, tiny)
}

func TestDefaultCounterConcurrent(t *testing.T) {
	t.Parallel()

	done := make(chan int, 8)
	for i := 0; i < 8; i++ {
		go func() { done <- DefaultCounter.CountTokens("concurrent use", "gpt-4") }()
	}
	first := <-done
	for i := 1; i < 8; i++ {
		assert.Equal(t, first, <-done)
	}
}
