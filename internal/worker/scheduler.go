package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/cuongbtq/report-autofill/internal/domain"
)

// cronLogger routes cron's own logging through slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{slog.String("error", err.Error())}, keysAndValues...)...)
}

// startScheduler registers the auto submit schedule. Overlapping runs are
// skipped.
func (w *Worker) startScheduler(ctx context.Context) error {
	logger := cronLogger{logger: w.logger}
	w.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := w.cron.AddFunc(w.schedule, func() { w.autoSubmit(ctx) }); err != nil {
		return fmt.Errorf("invalid auto submit schedule %q: %w", w.schedule, err)
	}

	w.cron.Start()
	w.logger.Info("Auto submit scheduler started", slog.String("schedule", w.schedule))
	return nil
}

// autoSubmit runs one batch over every stored profile
func (w *Worker) autoSubmit(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	profiles, err := w.profiles.List(ctx, domain.ProfileFilter{})
	if err != nil {
		w.logger.Error("Auto submit failed to list profiles", slog.String("error", err.Error()))
		return
	}
	if len(profiles) == 0 {
		w.logger.Info("Auto submit skipped, no profiles stored")
		return
	}

	ids := make([]string, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ID
	}

	req := domain.BatchRequest{RequestID: "auto-" + uuid.NewString(), ProfileIDs: ids}
	if err := w.processBatch(ctx, &req); err != nil {
		w.logger.Warn("Auto submit did not complete", slog.String("error", err.Error()))
	}
}
