package router_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-chat-router/internal/domain"
	"github.com/fairyhunter13/ai-chat-router/internal/domain/mocks"
	"github.com/fairyhunter13/ai-chat-router/internal/router"
)

func TestCleanJSON(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```":    `{"a":1}`,
		"Sure! {\"a\":{\"b\":2}} ok": `{"a":{"b":2}}`,
		"no braces":                  "no braces",
	}
	for in, want := range cases {
		assert.Equal(t, want, router.CleanJSON(in), in)
	}
}

func TestLogicCall_PrimaryJSON(t *testing.T) {
	primary := mocks.NewPrimaryClient(t)
	f := newFixture(t, 0, router.WithPrimary(primary))
	primary.On("Complete", mock.Anything, mock.MatchedBy(func(req domain.CompletionRequest) bool {
		return req.JSON && req.Model == "logic-model"
	})).Return("```json\n{\"a\": 1, \"b\": \"x\"}\n```", nil).Once()

	out, ok := f.router.LogicCall(context.Background(), "prompt")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": float64(1), "b": "x"}, out)
}

func TestLogicCall_InvalidPrimaryFallsToNative(t *testing.T) {
	primary := mocks.NewPrimaryClient(t)
	fallback := mocks.NewFallbackClient(t)
	f := newFixture(t, 1, router.WithPrimary(primary), router.WithFallback(fallback))
	primary.On("Complete", mock.Anything, mock.Anything).Return("not json at all", nil).Once()
	fallback.On("Generate", mock.Anything, mock.Anything, mock.MatchedBy(func(req domain.GenerateRequest) bool {
		return req.JSON && req.Model == "native-logic" && !req.Grounding
	})).Return(domain.GenerateResult{Text: `{"ok": true}`}, nil).Once()

	out, ok := f.router.LogicCall(context.Background(), "prompt")
	require.True(t, ok)
	assert.Equal(t, true, out["ok"])
	assert.False(t, f.router.UsingFallback(), "a malformed answer is not a backend failure")
}

func TestLogicCall_NothingAvailable(t *testing.T) {
	fallback := mocks.NewFallbackClient(t)
	f := newFixture(t, 1, router.WithFallback(fallback))
	fallback.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(domain.GenerateResult{Text: "nope"}, nil).Once()
	_, ok := f.router.LogicCall(context.Background(), "prompt")
	assert.False(t, ok)
}

func TestCheckSearchNeeded_DefaultsToNo(t *testing.T) {
	primary := mocks.NewPrimaryClient(t)
	f := newFixture(t, 0, router.WithPrimary(primary))
	primary.On("Complete", mock.Anything, mock.Anything).Return(`{"searchQuery": "x"}`, nil).Once()
	d := f.router.CheckSearchNeeded(context.Background(), "msg", nil, "")
	assert.False(t, d.NeedsSearch)
}

func TestDetermineReaction(t *testing.T) {
	primary := mocks.NewPrimaryClient(t)
	f := newFixture(t, 0, router.WithPrimary(primary))

	primary.On("Complete", mock.Anything, mock.Anything).Return("Думаю 🔥 или 👍", nil).Once()
	emoji, ok := f.router.DetermineReaction(context.Background(), "Вася: ура")
	require.True(t, ok)
	assert.Equal(t, "🔥", emoji)

	primary.On("Complete", mock.Anything, mock.Anything).Return("❤‍🔥", nil).Once()
	emoji, ok = f.router.DetermineReaction(context.Background(), "Вася: люблю")
	require.True(t, ok)
	assert.Equal(t, "❤‍🔥", emoji)

	primary.On("Complete", mock.Anything, mock.Anything).Return("NULL", nil).Once()
	_, ok = f.router.DetermineReaction(context.Background(), "Вася: ну")
	assert.False(t, ok)
}

func TestDetermineReaction_NoPrimary(t *testing.T) {
	f := newFixture(t, 1)
	_, ok := f.router.DetermineReaction(context.Background(), "x")
	assert.False(t, ok)
}

func TestAnalyzeBatch_ParsesIDsAndScores(t *testing.T) {
	primary := mocks.NewPrimaryClient(t)
	f := newFixture(t, 0, router.WithPrimary(primary))
	primary.On("Complete", mock.Anything, mock.MatchedBy(func(req domain.CompletionRequest) bool {
		return req.JSON
	})).Return(`{
		"123": {"facts": "любит котов", "relationship": 85.6},
		"ID:456": {"attitude": "дерзкий", "relationship": "150"},
		"bogus": {"facts": "x"},
		"789": {}
	}`, nil).Once()

	out, ok := f.router.AnalyzeBatch(context.Background(),
		[]domain.BufferEntry{{SenderID: 123, DisplayName: "Вася", Text: "котики"}},
		map[int64]domain.Profile{123: {UserID: 123, Facts: "старое"}})
	require.True(t, ok)
	require.Len(t, out, 2)
	require.NotNil(t, out[123].Relationship)
	assert.Equal(t, 86, *out[123].Relationship)
	assert.Equal(t, "любит котов", out[123].Facts)
	assert.Equal(t, 100, *out[456].Relationship)
}

func TestAnalyzeUserImmediate(t *testing.T) {
	primary := mocks.NewPrimaryClient(t)
	f := newFixture(t, 0, router.WithPrimary(primary))
	primary.On("Complete", mock.Anything, mock.Anything).Return(`{"realName": "Василий", "relationship": -5}`, nil).Once()

	u, ok := f.router.AnalyzeUserImmediate(context.Background(), "Вася: я Василий", domain.Profile{UserID: 1})
	require.True(t, ok)
	assert.Equal(t, "Василий", u.RealName)
	assert.Equal(t, 0, *u.Relationship)
}

func TestAnalyzeChatProfile(t *testing.T) {
	primary := mocks.NewPrimaryClient(t)
	f := newFixture(t, 0, router.WithPrimary(primary))
	primary.On("Complete", mock.Anything, mock.Anything).Return(`{"topic": "игры", "style": "мемы"}`, nil).Once()

	u, ok := f.router.AnalyzeChatProfile(context.Background(),
		[]domain.BufferEntry{{SenderID: 1, DisplayName: "Вася", Text: "го в доту"}}, domain.ChatProfile{})
	require.True(t, ok)
	assert.Equal(t, domain.ChatProfileUpdate{Topic: "игры", Style: "мемы"}, u)
}

func TestTranscribe(t *testing.T) {
	t.Run("no keys", func(t *testing.T) {
		f := newFixture(t, 0)
		_, ok := f.router.Transcribe(context.Background(), []byte("ogg"), "audio/ogg", "Вася")
		assert.False(t, ok)
	})

	t.Run("decodes result", func(t *testing.T) {
		fallback := mocks.NewFallbackClient(t)
		f := newFixture(t, 1, router.WithFallback(fallback))
		fallback.On("Generate", mock.Anything, mock.Anything, mock.MatchedBy(func(req domain.GenerateRequest) bool {
			return req.Media != nil && req.Media.MIME == "audio/ogg" && req.JSON
		})).Return(domain.GenerateResult{Text: "```json\n{\"text\": \" привет \", \"summary\": \"приветствие\"}\n```"}, nil).Once()

		tr, ok := f.router.Transcribe(context.Background(), []byte("ogg"), "audio/ogg", "Вася")
		require.True(t, ok)
		assert.Equal(t, "привет", tr.Text)
		assert.Equal(t, "приветствие", tr.Summary)
	})
}
