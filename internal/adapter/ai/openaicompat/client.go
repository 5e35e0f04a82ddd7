// Package openaicompat implements the primary backend against any
// OpenAI-compatible chat completions endpoint.
package openaicompat

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-chat-router/internal/adapter/observability"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

const providerName = "openai-compatible"

// Client talks to a single OpenAI-compatible API. Each call is one attempt;
// fallback and retry live in the router.
type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

// New constructs a client. A zero timeout leaves the request bound to ctx only.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		hc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// readSnippet reads up to n bytes of a body for logging.
func readSnippet(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}

func buildRequest(req domain.CompletionRequest) chatRequest {
	out := chatRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.System != "" {
		out.Messages = append(out.Messages, message{Role: "system", Content: req.System})
	}
	if req.Media != nil && len(req.Media.Data) > 0 {
		uri := "data:" + req.Media.MIME + ";base64," + base64.StdEncoding.EncodeToString(req.Media.Data)
		out.Messages = append(out.Messages, message{Role: "user", Content: []contentPart{
			{Type: "text", Text: req.User},
			{Type: "image_url", ImageURL: &imageURL{URL: uri}},
		}})
	} else {
		out.Messages = append(out.Messages, message{Role: "user", Content: req.User})
	}
	if req.JSON {
		out.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return out
}

// Complete sends one chat completion and returns the first choice's content.
func (c *Client) Complete(ctx domain.Context, req domain.CompletionRequest) (string, error) {
	if c.apiKey == "" || c.baseURL == "" {
		return "", &domain.BackendError{Kind: domain.KindFatal, Provider: providerName, Err: domain.ErrPrimaryUnavailable}
	}
	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("op=openaicompat.Complete: %w", err)
	}

	operation := "chat"
	if req.JSON {
		operation = "logic"
	}
	start := time.Now()
	defer observability.ObserveAICall(providerName, operation, start)

	endpoint := c.baseURL + "/chat/completions"
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("op=openaicompat.Complete: %w", err)
	}
	r.Header.Set("Authorization", "Bearer "+c.apiKey)
	r.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(r)
	if err != nil {
		kind := domain.KindTransient
		if ctx.Err() != nil {
			kind = domain.KindFatal
		}
		return "", &domain.BackendError{Kind: kind, Provider: providerName, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.BackendError{Kind: domain.KindTransient, Provider: providerName, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := readSnippet(raw, 512)
		kind := domain.KindFromStatus(resp.StatusCode)
		if kind == domain.KindFatal && strings.Contains(strings.ToLower(snippet), "quota") {
			kind = domain.KindQuota
		}
		slog.Warn("ai provider non-2xx",
			slog.String("provider", providerName),
			slog.String("op", operation),
			slog.Int("status", resp.StatusCode),
			slog.String("model", req.Model),
			slog.String("kind", kind.String()),
			slog.String("x_request_id", resp.Header.Get("X-Request-Id")),
			slog.String("body", snippet))
		return "", &domain.BackendError{
			Kind:     kind,
			Provider: providerName,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("chat status %d: %s", resp.StatusCode, snippet),
		}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		slog.Error("ai provider decode error", slog.String("provider", providerName), slog.String("op", operation), slog.Any("error", err))
		return "", &domain.BackendError{Kind: domain.KindFatal, Provider: providerName, Status: resp.StatusCode, Err: err}
	}
	if len(out.Choices) == 0 {
		return "", &domain.BackendError{Kind: domain.KindFatal, Provider: providerName, Status: resp.StatusCode, Err: errors.New("empty choices")}
	}
	if out.Model != "" && out.Model != req.Model {
		slog.Debug("model substitution detected",
			slog.String("requested_model", req.Model),
			slog.String("actual_model", out.Model))
	}
	return out.Choices[0].Message.Content, nil
}
