package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cuongbtq/report-autofill/internal/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	logger := w.logger.With(slog.Int("worker_num", workerNum))
	logger.Debug("Worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Worker goroutine stopping - context canceled")
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				logger.Debug("Worker goroutine stopping - jobsChan closed")
				return
			}

			err := w.processBatch(ctx, &msg.request)
			w.settle(logger, msg, err)
		}
	}
}

// settle ACKs or NACKs a delivery based on the batch outcome
func (w *Worker) settle(logger *slog.Logger, msg *batchMessage, err error) {
	requestID := msg.request.RequestID

	if err == nil {
		if ackErr := msg.delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message",
				slog.String("request_id", requestID),
				slog.String("error", ackErr.Error()),
			)
		}
		return
	}

	requeue := shouldRequeue(err)
	if nackErr := msg.delivery.Nack(false, requeue); nackErr != nil {
		logger.Error("Failed to NACK message",
			slog.String("request_id", requestID),
			slog.String("error", nackErr.Error()),
		)
		return
	}

	logger.Info("Message NACKed",
		slog.String("request_id", requestID),
		slog.Bool("requeue", requeue),
	)
}

// shouldRequeue determines if a batch request should be redelivered. Batches
// interrupted by a storage failure or by shutdown run again; their finished
// jobs are skipped as duplicates.
func shouldRequeue(err error) bool {
	switch {
	case errors.Is(err, domain.ErrInvalidBatchRequest):
		return false
	case errors.Is(err, domain.ErrStorageFailure):
		return true
	case errors.Is(err, domain.ErrBatchCanceled):
		return true
	default:
		return false
	}
}
