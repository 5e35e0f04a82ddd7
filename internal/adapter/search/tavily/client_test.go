package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

func TestSearch_SendsAdvancedQueryAndFormats(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bitcoin price", req.Query)
		assert.Equal(t, "advanced", req.SearchDepth)
		assert.Equal(t, 3, req.MaxResults)
		assert.True(t, req.IncludeAnswer)
		_ = json.NewEncoder(w).Encode(Response{
			Answer: "about 100k",
			Results: []Result{
				{Title: "A", URL: "https://a", Content: "first"},
				{Title: "B", URL: "https://b", Content: "second"},
			},
		})
	}))
	defer ts.Close()

	out, err := New(ts.URL, "tvly-key", time.Second).Search(context.Background(), "  bitcoin price ")
	require.NoError(t, err)
	assert.Equal(t, "Краткий ответ Tavily: about 100k\n\n[1] A (https://a):\nfirst\n\n[2] B (https://b):\nsecond\n\n", out)
}

func TestSearch_Errors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid key"}`))
	}))
	defer ts.Close()

	_, err := New(ts.URL, "bad", time.Second).Search(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, domain.KindAuth, domain.KindOf(err))

	_, err = New(ts.URL, "", time.Second).Search(context.Background(), "q")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = New(ts.URL, "k", time.Second).Search(context.Background(), "   ")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestFormat_NoAnswer(t *testing.T) {
	assert.Equal(t, "", Format(nil))
	assert.Equal(t, "[1] T (u):\nc\n\n", Format(&Response{Results: []Result{{Title: "T", URL: "u", Content: "c"}}}))
}
