// Package config defines configuration parsing and helpers.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv  string `env:"APP_ENV" envDefault:"dev" validate:"oneof=dev test prod"`
	Version string `env:"APP_VERSION" envDefault:"dev"`
	Port    int    `env:"PORT" envDefault:"8080" validate:"min=1,max=65535"`
	// DBURL empty means profiles and moderation state live in memory only.
	DBURL string `env:"DB_URL"`
	// RedisURL empty disables usage ledger snapshots.
	RedisURL string `env:"REDIS_URL"`

	TelegramToken  string `env:"TELEGRAM_TOKEN"`
	TelegramPoll   int    `env:"TELEGRAM_POLL_TIMEOUT" envDefault:"60"`
	MaxConcurrency int    `env:"MAX_CONCURRENCY" envDefault:"4" validate:"min=1"`
	AdminID        int64  `env:"ADMIN_ID"`
	BotName        string `env:"BOT_NAME" envDefault:"Sych"`
	TriggerPattern string `env:"TRIGGER_PATTERN" envDefault:"(?i)(сыч|sych)"`
	// ChatTaskTimeout is the typing indicator safety cutoff; backend calls are
	// bounded by AIRequestTimeout instead.
	ChatTaskTimeout time.Duration `env:"CHAT_TASK_TIMEOUT" envDefault:"20s"`
	// EventTimeout bounds handling of one update; a reply ready after it is
	// discarded.
	EventTimeout time.Duration `env:"EVENT_TIMEOUT" envDefault:"3m"`

	// Primary OpenAI-compatible backend
	AIBaseURL       string `env:"AI_BASE_URL" envDefault:"https://api.openai.com/v1" validate:"omitempty,url"`
	AIKey           string `env:"AI_KEY"`
	AIModel         string `env:"AI_MODEL" envDefault:"gpt-4o-mini"`
	LogicModel      string `env:"LOGIC_MODEL" envDefault:"gpt-4o-mini"`
	PerplexityModel string `env:"PERPLEXITY_MODEL" envDefault:"perplexity/sonar"`

	// Fallback native Gemini key pool
	GeminiKeys       []string `env:"GEMINI_KEYS" envSeparator:","`
	GeminiModel      string   `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	GeminiLogicModel string   `env:"GEMINI_LOGIC_MODEL" envDefault:"gemini-2.5-flash-lite"`
	GeminiBaseURL    string   `env:"GEMINI_BASE_URL"`

	SearchProvider string `env:"SEARCH_PROVIDER" envDefault:"tavily" validate:"oneof=tavily perplexity google"`
	TavilyKey      string `env:"TAVILY_KEY"`
	TavilyBaseURL  string `env:"TAVILY_BASE_URL" envDefault:"https://api.tavily.com"`

	Timezone               string  `env:"TIMEZONE" envDefault:"Asia/Yekaterinburg"`
	ContextSize            int     `env:"CONTEXT_SIZE" envDefault:"30" validate:"min=1"`
	HistoryTokenBudget     int     `env:"HISTORY_TOKEN_BUDGET" envDefault:"6000" validate:"min=0"`
	ProfileBufferSize      int     `env:"PROFILE_BUFFER_SIZE" envDefault:"20" validate:"min=1"`
	ChatBufferSize         int     `env:"CHAT_BUFFER_SIZE" envDefault:"50" validate:"min=1"`
	SpontaneousProbability float64 `env:"SPONTANEOUS_PROBABILITY" envDefault:"0" validate:"min=0,max=1"`
	ReactionProbability    float64 `env:"REACTION_PROBABILITY" envDefault:"0.015" validate:"min=0,max=1"`
	PersonaFile            string  `env:"PERSONA_FILE"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"ai-chat-router"`

	AdminUsername     string `env:"ADMIN_USERNAME"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`
	CORSAllowOrigins  string `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin   int    `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`

	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	AIRequestTimeout      time.Duration `env:"AI_REQUEST_TIMEOUT" envDefault:"90s"`

	SnapshotSchedule string `env:"SNAPSHOT_SCHEDULE" envDefault:"@every 1m"`
	DigestSchedule   string `env:"DIGEST_SCHEDULE" envDefault:"55 23 * * *"`

	// Operator notification delivery backoff
	NotifyBackoffMaxElapsed time.Duration `env:"NOTIFY_BACKOFF_MAX_ELAPSED" envDefault:"30s"`
	NotifyBackoffInitial    time.Duration `env:"NOTIFY_BACKOFF_INITIAL" envDefault:"500ms"`
}

// AdminEnabled returns true if the admin HTTP API should require credentials.
func (c Config) AdminEnabled() bool {
	return c.AdminUsername != "" && c.AdminPasswordHash != ""
}

// PrimaryEnabled reports whether the OpenAI-compatible backend is configured.
func (c Config) PrimaryEnabled() bool { return c.AIKey != "" && c.AIBaseURL != "" }

// Load reads an optional .env file, then parses environment variables into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

// Validate checks field constraints and that the trigger pattern compiles.
func (c Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		return err
	}
	if _, err := regexp.Compile(c.TriggerPattern); err != nil {
		return fmt.Errorf("TRIGGER_PATTERN: %w", err)
	}
	if c.SearchProvider == "tavily" && c.TavilyKey == "" && c.IsProd() {
		return errors.New("TAVILY_KEY is required when SEARCH_PROVIDER=tavily")
	}
	return nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// GeminiCredentials returns the configured fallback keys with blanks removed.
func (c Config) GeminiCredentials() []string {
	out := make([]string, 0, len(c.GeminiKeys))
	for _, k := range c.GeminiKeys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// GetNotifyBackoffConfig returns backoff settings for operator notifications.
// Tests use much shorter intervals.
func (c Config) GetNotifyBackoffConfig() (maxElapsed, initial time.Duration) {
	if c.IsTest() {
		return 200 * time.Millisecond, 10 * time.Millisecond
	}
	return c.NotifyBackoffMaxElapsed, c.NotifyBackoffInitial
}
