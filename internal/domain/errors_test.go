package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{429, KindQuota},
		{401, KindAuth},
		{403, KindAuth},
		{408, KindTransient},
		{500, KindTransient},
		{503, KindTransient},
		{400, KindFatal},
		{404, KindFatal},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, KindFromStatus(tt.status))
		})
	}
}

func TestKindOf_WrappedBackendError(t *testing.T) {
	be := &BackendError{Kind: KindQuota, Provider: "gemini", Status: 429, Err: errors.New("resource exhausted")}
	wrapped := fmt.Errorf("op=router.generate: %w", be)

	assert.Equal(t, KindQuota, KindOf(wrapped))
	assert.True(t, IsRotatable(wrapped))
	assert.Contains(t, wrapped.Error(), "status 429")
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, KindFatal, KindOf(errors.New("boom")))
	assert.False(t, IsRotatable(errors.New("quota exceeded")))
	assert.False(t, IsRotatable(nil))
}

func TestIsRotatable_ByKind(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{KindQuota, true},
		{KindAuth, true},
		{KindTransient, false},
		{KindFatal, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := &BackendError{Kind: tt.kind, Provider: "p", Err: errors.New("x")}
			assert.Equal(t, tt.want, IsRotatable(err))
		})
	}
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("op=router.execute: %w", ErrAllCredentialsExhausted)
	assert.ErrorIs(t, err, ErrAllCredentialsExhausted)
	assert.NotErrorIs(t, err, ErrEmptyPool)
}

func TestBackendError_UpstreamSentinels(t *testing.T) {
	quota := fmt.Errorf("op=router.generate: %w", &BackendError{Kind: KindQuota, Provider: "gemini", Status: 429, Err: errors.New("exhausted")})
	assert.ErrorIs(t, quota, ErrUpstreamRateLimit)
	assert.NotErrorIs(t, quota, ErrUpstreamTimeout)

	deadline := &BackendError{Kind: KindTransient, Provider: "openai-compat", Err: fmt.Errorf("post: %w", context.DeadlineExceeded)}
	assert.ErrorIs(t, deadline, ErrUpstreamTimeout)
	assert.NotErrorIs(t, deadline, ErrUpstreamRateLimit)

	gateway := &BackendError{Kind: KindTransient, Provider: "tavily", Status: 504, Err: errors.New("gateway timeout")}
	assert.ErrorIs(t, gateway, ErrUpstreamTimeout)

	fatal := &BackendError{Kind: KindFatal, Provider: "p", Status: 400, Err: errors.New("bad request")}
	assert.NotErrorIs(t, fatal, ErrUpstreamTimeout)
	assert.NotErrorIs(t, fatal, ErrUpstreamRateLimit)
}

func TestChatEvent_Helpers(t *testing.T) {
	ev := ChatEvent{FirstName: "Ann", Username: "ann"}
	assert.Equal(t, "Ann (@ann)", ev.DisplayName("anon"))
	assert.Equal(t, "anon", ChatEvent{}.DisplayName("anon"))

	assert.True(t, ChatEvent{Text: "/reset"}.IsCommand())
	assert.False(t, ChatEvent{Text: "hi /reset"}.IsCommand())
	assert.False(t, ChatEvent{}.IsCommand())
}
