package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/ai-chat-router/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-chat-router/internal/config"
	"github.com/fairyhunter13/ai-chat-router/internal/usage"
)

type fakeUsage struct{ saved int }

func (f *fakeUsage) Usage() usage.Counters              { return usage.Counters{LastResetDay: 7} }
func (f *fakeUsage) StatsReport(context.Context) string { return "report" }
func (f *fakeUsage) UsingFallback() bool                { return false }
func (f *fakeUsage) Save(context.Context, usage.Counters) error {
	f.saved++
	return nil
}

func TestParseOrigins(t *testing.T) {
	assert.Equal(t, []string{"*"}, ParseOrigins(""))
	assert.Equal(t, []string{"*"}, ParseOrigins(" , "))
	assert.Equal(t, []string{"https://a", "https://b"}, ParseOrigins(" https://a ,https://b"))
}

func testConfig(t *testing.T, withAdmin bool) config.Config {
	t.Helper()
	cfg := config.Config{HTTPWriteTimeout: 5 * time.Second, RateLimitPerMin: 100, CORSAllowOrigins: "*"}
	if withAdmin {
		h, err := httpserver.HashPassword("pw", httpserver.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLen: 8, KeyLen: 16})
		require.NoError(t, err)
		cfg.AdminUsername, cfg.AdminPasswordHash = "admin", h
	}
	return cfg
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBuildRouter_PublicRoutes(t *testing.T) {
	h := BuildRouter(testConfig(t, false), httpserver.NewServer(&fakeUsage{}, nil))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/readyz", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil)).Code)
	assert.Equal(t, http.StatusNotFound, serve(h, httptest.NewRequest(http.MethodGet, "/v1/stats", nil)).Code,
		"admin API is not mounted without credentials")
}

func TestBuildRouter_AdminRoutes(t *testing.T) {
	h := BuildRouter(testConfig(t, true), httpserver.NewServer(&fakeUsage{}, nil))

	assert.Equal(t, http.StatusUnauthorized, serve(h, httptest.NewRequest(http.MethodGet, "/v1/stats", nil)).Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.SetBasicAuth("admin", "pw")
	rec := serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mode":"primary"`)
}
