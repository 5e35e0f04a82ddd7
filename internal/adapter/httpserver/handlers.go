package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-chat-router/internal/domain"
	"github.com/fairyhunter13/ai-chat-router/internal/usage"
	"github.com/fairyhunter13/ai-chat-router/pkg/textx"
)

const maxEventBytes = 64 << 10

// StatsSource exposes the router's usage view.
type StatsSource interface {
	StatsReport(ctx context.Context) string
	UsingFallback() bool
	Usage() usage.Counters
}

// EventHandler processes one chat event.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev domain.ChatEvent) error
}

// Check is one named readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Server aggregates handler dependencies.
type Server struct {
	Stats  StatsSource
	Events EventHandler
	Checks []Check
}

// NewServer constructs a Server.
func NewServer(stats StatsSource, events EventHandler, checks ...Check) *Server {
	return &Server{Stats: stats, Events: events, Checks: checks}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type checkResult struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Details string `json:"details,omitempty"`
}

// ReadyzHandler runs every readiness probe with a short deadline.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		results := make([]checkResult, 0, len(s.Checks))
		status := http.StatusOK
		for _, c := range s.Checks {
			res := checkResult{Name: c.Name, OK: true}
			if err := c.Fn(ctx); err != nil {
				res.OK, res.Details = false, err.Error()
				status = http.StatusServiceUnavailable
			}
			results = append(results, res)
		}
		writeJSON(w, status, map[string]any{"checks": results})
	}
}

type statsResponse struct {
	Mode     string         `json:"mode"`
	Report   string         `json:"report"`
	Counters usage.Counters `json:"counters"`
}

// StatsHandler returns today's usage counters and the rendered report.
func (s *Server) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Stats == nil {
			writeError(w, fmt.Errorf("%w: stats unavailable", domain.ErrNotFound), nil)
			return
		}
		report := s.Stats.StatsReport(r.Context())
		mode := "primary"
		if s.Stats.UsingFallback() {
			mode = "fallback"
		}
		writeJSON(w, http.StatusOK, statsResponse{Mode: mode, Report: report, Counters: s.Stats.Usage()})
	}
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// EventsHandler injects a text chat event as if it arrived from the
// transport and answers once the orchestrator is done with it.
func (s *Server) EventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Events == nil {
			writeError(w, fmt.Errorf("%w: event intake disabled", domain.ErrNotFound), nil)
			return
		}
		var ev domain.ChatEvent
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&ev); err != nil {
			writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		if err := getValidator().Struct(ev); err != nil {
			var verrs validator.ValidationErrors
			var details []fieldError
			if errors.As(err, &verrs) {
				for _, fe := range verrs {
					details = append(details, fieldError{Field: fe.Field(), Rule: fe.Tag()})
				}
			}
			writeError(w, fmt.Errorf("%w: event validation failed", domain.ErrInvalidArgument), details)
			return
		}
		ev.Text = textx.SanitizeText(ev.Text)
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if ev.ChatType == "" {
			ev.ChatType = domain.ChatGroup
		}
		if ev.ReceivedAt.IsZero() {
			ev.ReceivedAt = time.Now().UTC()
		}
		if err := s.Events.HandleEvent(r.Context(), ev); err != nil {
			writeError(w, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": ev.ID})
	}
}
