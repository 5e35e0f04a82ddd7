// Command bot runs the chat assistant: Telegram long polling, the provider
// router and the admin HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-chat-router/internal/adapter/ai/gemini"
	"github.com/fairyhunter13/ai-chat-router/internal/adapter/ai/openaicompat"
	"github.com/fairyhunter13/ai-chat-router/internal/adapter/ai/tokencount"
	httpserver "github.com/fairyhunter13/ai-chat-router/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-chat-router/internal/adapter/observability"
	"github.com/fairyhunter13/ai-chat-router/internal/adapter/repo/memory"
	"github.com/fairyhunter13/ai-chat-router/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-chat-router/internal/adapter/search/tavily"
	"github.com/fairyhunter13/ai-chat-router/internal/adapter/telegram"
	"github.com/fairyhunter13/ai-chat-router/internal/app"
	"github.com/fairyhunter13/ai-chat-router/internal/buffer"
	"github.com/fairyhunter13/ai-chat-router/internal/config"
	"github.com/fairyhunter13/ai-chat-router/internal/credential"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
	"github.com/fairyhunter13/ai-chat-router/internal/history"
	"github.com/fairyhunter13/ai-chat-router/internal/persona"
	"github.com/fairyhunter13/ai-chat-router/internal/router"
	"github.com/fairyhunter13/ai-chat-router/internal/search"
	"github.com/fairyhunter13/ai-chat-router/internal/usage"
	"github.com/fairyhunter13/ai-chat-router/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("bot exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.TelegramToken == "" {
		return errors.New("TELEGRAM_TOKEN is required")
	}

	slog.SetDefault(observability.SetupLogger(cfg))
	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	clock, err := usage.NewSystemClock(cfg.Timezone)
	if err != nil {
		return err
	}
	p, err := persona.Load(cfg.PersonaFile)
	if err != nil {
		return err
	}
	trigger := regexp.MustCompile(cfg.TriggerPattern)

	// Storage: Postgres when configured, process memory otherwise.
	var (
		store domain.Storage
		pool  *pgxpool.Pool
	)
	if cfg.DBURL != "" {
		pool, err = postgres.Connect(ctx, cfg.DBURL, 30*time.Second)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
		store = postgres.NewStore(pool)
	} else {
		slog.Warn("DB_URL not set; profiles and moderation state are kept in memory")
		store = memory.NewStore()
	}

	geminiKeys := cfg.GeminiCredentials()
	primaryLabel := "none"
	if cfg.PrimaryEnabled() {
		primaryLabel = cfg.AIModel
	}
	ledger := usage.NewLedger(len(geminiKeys), clock, primaryLabel)

	// Ledger snapshots survive restarts within the same day.
	var (
		rdb       *redis.Client
		snapshots *usage.RedisSnapshotStore
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("op=redis.parse: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		snapshots = usage.NewRedisSnapshotStore(rdb, "")
		usage.Warm(ctx, ledger, snapshots)
	}

	fallback := gemini.New(cfg.GeminiBaseURL, cfg.AIRequestTimeout)
	credPool := credential.NewPool(geminiKeys, ledger, credential.WithRotateHook(fallback.Rebind))

	api, err := telegram.Dial(cfg.TelegramToken)
	if err != nil {
		return err
	}
	maxElapsed, initial := cfg.GetNotifyBackoffConfig()
	messenger := telegram.NewMessenger(api, cfg.AdminID, maxElapsed, initial)

	searchOpts := []search.Option{search.WithClock(clock)}
	routerOpts := []router.Option{
		router.WithClock(clock),
		router.WithNotifier(messenger),
		router.WithModels(router.Models{
			Chat:          cfg.AIModel,
			Logic:         cfg.LogicModel,
			FallbackChat:  cfg.GeminiModel,
			FallbackLogic: cfg.GeminiLogicModel,
		}),
		router.WithHistoryBudget(tokencount.NewCounter(), cfg.HistoryTokenBudget),
		router.WithCallTimeout(cfg.AIRequestTimeout),
	}
	if len(geminiKeys) > 0 {
		routerOpts = append(routerOpts, router.WithFallback(fallback))
	}
	if cfg.PrimaryEnabled() {
		primary := openaicompat.New(cfg.AIBaseURL, cfg.AIKey, cfg.AIRequestTimeout)
		routerOpts = append(routerOpts, router.WithPrimary(primary))
		searchOpts = append(searchOpts, search.WithPerplexity(primary, cfg.PerplexityModel, func(stamp string) string {
			return p.Text("prompts.perplexity_system", map[string]string{"Time": stamp})
		}))
	}
	if cfg.TavilyKey != "" {
		searchOpts = append(searchOpts, search.WithTavily(tavily.New(cfg.TavilyBaseURL, cfg.TavilyKey, cfg.AIRequestTimeout)))
	}
	routerOpts = append(routerOpts, router.WithSearch(search.New(cfg.SearchProvider, ledger, searchOpts...)))
	rt := router.New(credPool, ledger, p, routerOpts...)

	buffers := buffer.New(rt, store, buffer.Thresholds{Profile: cfg.ProfileBufferSize, Topic: cfg.ChatBufferSize})
	orch := usecase.NewOrchestrator(rt, store, messenger, p, history.NewStore(cfg.ContextSize), buffers,
		usecase.Settings{
			AdminID:                cfg.AdminID,
			Version:                cfg.Version,
			Trigger:                trigger,
			SpontaneousProbability: cfg.SpontaneousProbability,
			ReactionProbability:    cfg.ReactionProbability,
			TypingTimeout:          cfg.ChatTaskTimeout,
		},
		usecase.WithNotifier(messenger),
	)

	bot := telegram.NewBot(api, orch, telegram.NewDownloader(api, cfg.AIRequestTimeout, telegram.MaxFileBytes), telegram.Options{
		BotID:          api.Self.ID,
		AdminID:        cfg.AdminID,
		Trigger:        trigger,
		PollTimeout:    cfg.TelegramPoll,
		TaskTimeout:    cfg.EventTimeout,
		MaxConcurrency: cfg.MaxConcurrency,
	})

	sched := app.NewScheduler(clock.Location)
	if snapshots != nil {
		if err := sched.AddSnapshot(cfg.SnapshotSchedule, rt, snapshots); err != nil {
			return err
		}
	}
	if cfg.AdminID != 0 && cfg.DigestSchedule != "" {
		if err := sched.AddDigest(cfg.DigestSchedule, rt, messenger); err != nil {
			return err
		}
	}
	sched.Start()

	var dbPinger app.Pinger
	if pool != nil {
		dbPinger = pool
	}
	var redisPinger app.RedisPinger
	if rdb != nil {
		redisPinger = rdb
	}
	srv := httpserver.NewServer(rt, orch, app.BuildReadinessChecks(dbPinger, redisPinger, bot.Ready)...)
	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.BuildRouter(cfg, srv),
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		if err := srvHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	slog.Info("bot started",
		slog.String("bot", p.BotName()),
		slog.String("search", cfg.SearchProvider),
		slog.Bool("primary", cfg.PrimaryEnabled()),
		slog.Int("fallback_keys", len(geminiKeys)))

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case runErr = <-errCh:
		slog.Error("component failed", slog.Any("error", runErr))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
	bot.Close()
	sched.Stop()
	buffers.Wait()
	orch.Wait()
	rt.Wait()
	if snapshots != nil {
		if err := snapshots.Save(shutdownCtx, rt.Usage()); err != nil {
			slog.Warn("final usage snapshot failed", slog.Any("error", err))
		}
	}
	slog.Info("bot stopped")
	return runErr
}
