package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/report-autofill/internal/domain"
)

// processBatch runs one requested batch and logs its tally
func (w *Worker) processBatch(ctx context.Context, req *domain.BatchRequest) error {
	w.logger.Info("Processing batch request",
		slog.String("request_id", req.RequestID),
		slog.Int("profiles", len(req.ProfileIDs)),
		slog.Int("concurrency", req.Concurrency),
	)

	start := time.Now()
	result, err := w.engine.SubmitBatch(ctx, req.ProfileIDs, req.Concurrency)
	if err != nil {
		w.logger.Error("Batch did not complete",
			slog.String("request_id", req.RequestID),
			slog.String("error", err.Error()),
		)
		return err
	}

	w.logger.Info("Batch completed",
		slog.String("request_id", req.RequestID),
		slog.String("batch_id", result.BatchID),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped),
		slog.Duration("elapsed", time.Since(start)),
	)

	return nil
}
