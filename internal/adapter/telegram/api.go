// Package telegram connects the orchestrator to the Telegram Bot API.
package telegram

import (
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// API is the subset of *tgbotapi.BotAPI the adapter uses.
type API interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

var _ API = (*tgbotapi.BotAPI)(nil)

// Dial authorizes the token and returns a traced client. The long-poll
// request carries its own server-side timeout so the client has none.
func Dial(token string) (*tgbotapi.BotAPI, error) {
	hc := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, hc)
	if err != nil {
		return nil, fmt.Errorf("op=telegram.dial: %w", err)
	}
	return bot, nil
}
