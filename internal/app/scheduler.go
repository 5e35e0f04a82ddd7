package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fairyhunter13/ai-chat-router/internal/domain"
	"github.com/fairyhunter13/ai-chat-router/internal/usage"
)

const jobTimeout = 30 * time.Second

// UsageSource is the router's usage view.
type UsageSource interface {
	Usage() usage.Counters
	StatsReport(ctx context.Context) string
}

// SnapshotSaver persists ledger counters.
type SnapshotSaver interface {
	Save(ctx context.Context, c usage.Counters) error
}

// Scheduler runs periodic housekeeping jobs.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler builds a scheduler evaluating specs in loc. A panicking job
// is logged and does not stop the others.
func NewScheduler(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	lg := slogCronLogger{}
	return &Scheduler{cron: cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(lg),
		cron.WithChain(cron.Recover(lg), cron.SkipIfStillRunning(lg)),
	)}
}

// AddSnapshot persists the ledger on spec so a restart keeps today's counts.
func (s *Scheduler) AddSnapshot(spec string, src UsageSource, store SnapshotSaver) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := store.Save(ctx, src.Usage()); err != nil {
			slog.Warn("usage snapshot failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("op=scheduler.snapshot: %w", err)
	}
	return nil
}

// AddDigest sends the usage report to the operator on spec.
func (s *Scheduler) AddDigest(spec string, src UsageSource, n domain.Notifier) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := n.NotifyOperator(ctx, src.StatsReport(ctx)); err != nil {
			slog.Warn("usage digest failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("op=scheduler.digest: %w", err)
	}
	return nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

type slogCronLogger struct{}

func (slogCronLogger) Info(msg string, kv ...any) {
	slog.Debug("cron "+msg, kv...)
}

func (slogCronLogger) Error(err error, msg string, kv ...any) {
	slog.Error("cron "+msg, append([]any{slog.Any("error", err)}, kv...)...)
}
