// Package tavily is a web search client for the Tavily API.
package tavily

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-chat-router/internal/adapter/observability"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

const (
	searchDepth = "advanced"
	maxResults  = 3
)

// Client calls the Tavily /search endpoint.
type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

// New returns a Tavily client.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

// Result is one ranked hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Response is the decoded Tavily answer.
type Response struct {
	Answer  string   `json:"answer"`
	Results []Result `json:"results"`
}

// Raw runs the query and returns the decoded response.
func (c *Client) Raw(ctx domain.Context, query string) (*Response, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: TAVILY_KEY missing", domain.ErrInvalidArgument)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidArgument)
	}
	body, err := json.Marshal(searchRequest{
		APIKey:        c.apiKey,
		Query:         query,
		SearchDepth:   searchDepth,
		MaxResults:    maxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, fmt.Errorf("op=tavily.Raw: %w", err)
	}

	defer observability.ObserveAICall("tavily", "search", time.Now())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("op=tavily.Raw: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &domain.BackendError{Kind: domain.KindTransient, Provider: "tavily", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, &domain.BackendError{
			Kind:     domain.KindFromStatus(resp.StatusCode),
			Provider: "tavily",
			Status:   resp.StatusCode,
			Err:      errors.New(strings.TrimSpace(string(snippet))),
		}
	}
	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("op=tavily.Raw: decode: %w", err)
	}
	return &out, nil
}

// Search returns the results flattened into prompt-ready text.
func (c *Client) Search(ctx domain.Context, query string) (string, error) {
	resp, err := c.Raw(ctx, query)
	if err != nil {
		return "", err
	}
	return Format(resp), nil
}

// Format renders the short answer followed by numbered sources.
func Format(resp *Response) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	if resp.Answer != "" {
		fmt.Fprintf(&b, "Краткий ответ Tavily: %s\n\n", resp.Answer)
	}
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "[%d] %s (%s):\n%s\n\n", i+1, r.Title, r.URL, r.Content)
	}
	return b.String()
}
