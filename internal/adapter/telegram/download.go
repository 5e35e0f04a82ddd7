package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-chat-router/internal/adapter/observability"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

var (
	// ErrFileTooLarge is returned when a download exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrUnsupportedMedia is returned for documents of a type the model cannot read.
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

// Downloader fetches attachments through the Bot API file endpoint.
type Downloader struct {
	api      API
	hc       *http.Client
	maxBytes int64
}

// NewDownloader returns a Downloader capped at maxBytes (MaxFileBytes when <= 0).
func NewDownloader(api API, timeout time.Duration, maxBytes int64) *Downloader {
	if maxBytes <= 0 {
		maxBytes = MaxFileBytes
	}
	return &Downloader{
		api:      api,
		hc:       &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		maxBytes: maxBytes,
	}
}

// Fetch downloads the file and fills in its MIME type. A missing or generic
// type is sniffed from the content.
func (d *Downloader) Fetch(ctx context.Context, a attachment) (*domain.Media, error) {
	if a.size > 0 && int64(a.size) > d.maxBytes {
		return nil, fmt.Errorf("op=telegram.download: %w", ErrFileTooLarge)
	}
	url, err := d.api.GetFileDirectURL(a.fileID)
	observability.TelegramCall("getFile", err)
	if err != nil {
		return nil, fmt.Errorf("op=telegram.download: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("op=telegram.download: %w", err)
	}
	resp, err := d.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("op=telegram.download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("op=telegram.download: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("op=telegram.download: %w", err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("op=telegram.download: %w", ErrFileTooLarge)
	}
	mime := strings.TrimSpace(a.mime)
	if mime == "" || mime == "application/octet-stream" {
		mime, _, _ = strings.Cut(mimetype.Detect(data).String(), ";")
	}
	if a.kind == kindDocument && !supportedDocument(mime) {
		return nil, fmt.Errorf("op=telegram.download: %w: %s", ErrUnsupportedMedia, mime)
	}
	return &domain.Media{MIME: mime, Data: data}, nil
}
