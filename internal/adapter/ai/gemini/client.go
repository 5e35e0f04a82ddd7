// Package gemini implements the native fallback backend on top of the
// Google GenAI SDK, one SDK client per pool credential.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/genai"

	"github.com/fairyhunter13/ai-chat-router/internal/adapter/observability"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

const providerName = "gemini"

// Client caches one genai client per credential secret.
type Client struct {
	baseURL string
	hc      *http.Client

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// New builds the fallback client. baseURL overrides the public endpoint when set.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		hc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		clients: make(map[string]*genai.Client),
	}
}

func (c *Client) clientFor(ctx context.Context, cred domain.Credential) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gc, ok := c.clients[cred.Secret]; ok {
		return gc, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:     cred.Secret,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.hc,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	gc, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("op=gemini.clientFor: %w", err)
	}
	c.clients[cred.Secret] = gc
	return gc, nil
}

// Rebind drops the cached SDK client for cred so the next call builds a
// fresh one. It is registered as the credential pool rotate hook.
func (c *Client) Rebind(cred domain.Credential) {
	c.mu.Lock()
	delete(c.clients, cred.Secret)
	c.mu.Unlock()
	slog.Debug("gemini client rebound", slog.Int("credential", cred.Index+1))
}

func ptr[T any](v T) *T { return &v }

var safetyOff = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
}

func buildConfig(req domain.GenerateRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{SafetySettings: safetyOff}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature > 0 {
		cfg.Temperature = ptr(req.Temperature)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}
	if req.Grounding {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	} else if req.JSON {
		// the API rejects a JSON mime type combined with the search tool
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

func buildContents(req domain.GenerateRequest) []*genai.Content {
	parts := []*genai.Part{genai.NewPartFromText(req.Text)}
	if req.Media != nil && len(req.Media.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Media.Data, req.Media.MIME))
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

// Generate performs a single generateContent call with cred.
func (c *Client) Generate(ctx domain.Context, cred domain.Credential, req domain.GenerateRequest) (domain.GenerateResult, error) {
	gc, err := c.clientFor(ctx, cred)
	if err != nil {
		return domain.GenerateResult{}, &domain.BackendError{Kind: domain.KindFatal, Provider: providerName, Err: err}
	}

	operation := "generate"
	switch {
	case req.Grounding:
		operation = "grounded"
	case req.JSON:
		operation = "logic"
	}
	defer observability.ObserveAICall(providerName, operation, time.Now())

	resp, err := gc.Models.GenerateContent(ctx, req.Model, buildContents(req), buildConfig(req))
	if err != nil {
		be := classify(ctx, err)
		slog.Warn("gemini call failed",
			slog.String("op", operation),
			slog.String("model", req.Model),
			slog.Int("credential", cred.Index+1),
			slog.String("kind", be.Kind.String()),
			slog.Any("error", err))
		return domain.GenerateResult{}, be
	}
	return domain.GenerateResult{Text: resp.Text(), Citations: citations(resp)}, nil
}

func citations(resp *genai.GenerateContentResponse) []domain.Citation {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var out []domain.Citation
	for _, ch := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if ch == nil || ch.Web == nil || ch.Web.URI == "" {
			continue
		}
		out = append(out, domain.Citation{Title: ch.Web.Title, URI: ch.Web.URI})
	}
	return out
}

// classify maps SDK and transport errors onto the router's error kinds.
func classify(ctx context.Context, err error) *domain.BackendError {
	be := &domain.BackendError{Kind: domain.KindFatal, Provider: providerName, Err: err}
	if ctx.Err() != nil {
		return be
	}

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		lower := strings.ToLower(err.Error())
		if strings.Contains(lower, "quota") || strings.Contains(lower, "429") {
			be.Kind = domain.KindQuota
		} else {
			be.Kind = domain.KindTransient
		}
		return be
	}

	be.Status = apiErr.Code
	status := strings.ToUpper(apiErr.Status)
	msg := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED" || strings.Contains(msg, "quota"):
		be.Kind = domain.KindQuota
	case status == "PERMISSION_DENIED" || status == "UNAUTHENTICATED" || strings.Contains(msg, "api key not valid"):
		be.Kind = domain.KindAuth
	default:
		be.Kind = domain.KindFromStatus(apiErr.Code)
	}
	return be
}
