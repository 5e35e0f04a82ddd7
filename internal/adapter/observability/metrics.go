package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider and operation",
		},
		[]string{"provider", "operation"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider", "operation"},
	)

	UsageCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_calls_total",
			Help: "Successful calls counted by the usage ledger per category",
		},
		[]string{"category"},
	)
	CredentialCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_calls_total",
			Help: "Fallback backend attempts per credential index",
		},
		[]string{"credential"},
	)
	CredentialActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "credential_active",
			Help: "1 when the credential has not hit its quota today",
		},
		[]string{"credential"},
	)
	CredentialRotationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credential_rotations_total",
			Help: "Total number of fallback credential rotations",
		},
	)

	RouterCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_calls_total",
			Help: "Routed requests by operation, serving tier and outcome",
		},
		[]string{"operation", "tier", "outcome"},
	)
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Search provider requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	BufferFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffer_flushes_total",
			Help: "Buffer window flushes by window kind and outcome",
		},
		[]string{"window", "outcome"},
	)
	ChatEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_total",
			Help: "Inbound chat events by handling decision",
		},
		[]string{"decision"},
	)

	TelegramUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_updates_total",
			Help: "Inbound Telegram updates by outcome",
		},
		[]string{"outcome"},
	)
	TelegramRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_requests_total",
			Help: "Outbound Telegram Bot API calls by method and outcome",
		},
		[]string{"method", "outcome"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(UsageCallsTotal)
	prometheus.MustRegister(CredentialCallsTotal)
	prometheus.MustRegister(CredentialActive)
	prometheus.MustRegister(CredentialRotationsTotal)
	prometheus.MustRegister(RouterCallsTotal)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(BufferFlushesTotal)
	prometheus.MustRegister(ChatEventsTotal)
	prometheus.MustRegister(TelegramUpdatesTotal)
	prometheus.MustRegister(TelegramRequestsTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			// fallback when route pattern is unavailable
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// ObserveAICall records one backend request and its latency.
func ObserveAICall(provider, operation string, start time.Time) {
	AIRequestsTotal.WithLabelValues(provider, operation).Inc()
	AIRequestDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

// TelegramCall records one Bot API call result.
func TelegramCall(method string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	TelegramRequestsTotal.WithLabelValues(method, outcome).Inc()
}

// RouterOutcome records how a routed request was served.
func RouterOutcome(operation, tier, outcome string) {
	RouterCallsTotal.WithLabelValues(operation, tier, outcome).Inc()
}
