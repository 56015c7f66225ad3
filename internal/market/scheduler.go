package market

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the engine tick on a fixed interval. Overlapping runs are
// skipped rather than queued: if a tick overruns its interval, the next firing
// is dropped.
type Scheduler struct {
	cron   *cron.Cron
	engine *Engine
}

// NewScheduler wires the engine tick into a cron runner.
func NewScheduler(engine *Engine) (*Scheduler, error) {
	logger := cronLogger{}
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(logger),
		cron.Recover(logger),
	))

	spec := fmt.Sprintf("@every %s", engine.cfg.TickInterval)
	if _, err := c.AddFunc(spec, func() {
		engine.Tick(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("market: schedule %q: %w", spec, err)
	}

	return &Scheduler{cron: c, engine: engine}, nil
}

// Start begins ticking in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("market scheduler started", "interval", s.engine.cfg.TickInterval)
}

// Stop halts scheduling and waits for any in-flight tick to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to the cron logger interface.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Info("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append([]any{"err", err}, keysAndValues...)...)
}
