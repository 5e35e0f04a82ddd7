package telegram

import (
	"encoding/json"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type apiCall struct {
	method string
	params tgbotapi.Params
}

// fakeAPI records Bot API calls. errs is consumed in order per method.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []apiCall
	errs    map[string][]error
	fileURL string
	result  json.RawMessage
	left    []int64
}

func (f *fakeAPI) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := tgbotapi.Params{}
	for k, v := range params {
		cp[k] = v
	}
	f.calls = append(f.calls, apiCall{method: endpoint, params: cp})
	if errs := f.errs[endpoint]; len(errs) > 0 {
		f.errs[endpoint] = errs[1:]
		if errs[0] != nil {
			return &tgbotapi.APIResponse{Ok: false}, errs[0]
		}
	}
	return &tgbotapi.APIResponse{Ok: true, Result: f.result}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lc, ok := c.(tgbotapi.LeaveChatConfig); ok {
		f.left = append(f.left, lc.ChatID)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(fileID string) (string, error) {
	return f.fileURL + "/" + fileID, nil
}

func (f *fakeAPI) recorded() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}
