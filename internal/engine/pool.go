package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/report-autofill/internal/domain"
)

// jobState is owned by exactly one goroutine at a time: the worker running
// its attempt, the timer waiting for its retry, or the final sweep
type jobState struct {
	job    domain.Job
	loaded bool
	done   bool
	result domain.JobResult
}

// batchRun is the state of one SubmitBatch call
type batchRun struct {
	engine    *Engine
	batchID   string
	jobs      []*jobState
	queue     chan *jobState
	startedAt time.Time

	mu        sync.Mutex
	remaining int

	timers sync.WaitGroup
}

func newBatchRun(e *Engine, batchID string, ids []string) *batchRun {
	run := &batchRun{
		engine:    e,
		batchID:   batchID,
		jobs:      make([]*jobState, 0, len(ids)),
		queue:     make(chan *jobState, len(ids)),
		startedAt: time.Now().UTC(),
		remaining: len(ids),
	}

	for _, id := range ids {
		run.jobs = append(run.jobs, &jobState{
			job: domain.Job{ProfileID: id, Status: domain.JobStatusPending},
		})
	}

	return run
}

// execute dispatches every job to a pool of workers and blocks until all
// jobs are terminal, ctx is canceled or a worker aborts the batch
func (r *batchRun) execute(ctx context.Context, concurrency int) error {
	if len(r.jobs) == 0 {
		return nil
	}

	for _, js := range r.jobs {
		r.publish(js, "")
		r.queue <- js
	}

	if concurrency > len(r.jobs) {
		concurrency = len(r.jobs)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		workerNum := i
		g.Go(func() error {
			return r.workerLoop(gctx, workerNum)
		})
	}

	err := g.Wait()
	r.timers.Wait()

	cause := domain.ErrBatchCanceled
	if err != nil {
		cause = err
	}
	for _, js := range r.jobs {
		if !js.done {
			r.cancelJob(js, cause)
		}
	}

	return err
}

// workerLoop is the main processing loop for each worker goroutine
func (r *batchRun) workerLoop(ctx context.Context, workerNum int) error {
	logger := r.engine.logger.With(
		slog.String("batch_id", r.batchID),
		slog.Int("worker_num", workerNum),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Worker stopping - context canceled")
			return nil

		case js, ok := <-r.queue:
			if !ok {
				logger.Debug("Worker stopping - all jobs terminal")
				return nil
			}

			if err := r.process(ctx, js); err != nil {
				return err
			}
		}
	}
}

// scheduleRetry re-enqueues js after delay without holding a worker
func (r *batchRun) scheduleRetry(ctx context.Context, js *jobState, delay time.Duration) {
	r.timers.Add(1)
	go func() {
		defer r.timers.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			r.cancelJob(js, domain.ErrBatchCanceled)
		case <-timer.C:
			r.queue <- js
		}
	}()
}

// setStatus moves a job to a non-terminal status
func (r *batchRun) setStatus(js *jobState, status domain.JobStatus, detail string) {
	js.job.Status = status
	r.publish(js, detail)
}

// finish moves a job to a terminal status and closes the queue after the last one
func (r *batchRun) finish(js *jobState, result domain.JobResult) {
	result.ProfileID = js.job.ProfileID
	result.Revision = js.job.Revision
	result.Attempts = js.job.Attempts

	js.job.Status = result.Status
	js.result = result
	js.done = true

	r.publish(js, result.Error)
	r.engine.metrics.JobFinished(result)

	r.mu.Lock()
	r.remaining--
	if r.remaining == 0 {
		close(r.queue)
	}
	r.mu.Unlock()
}

func (r *batchRun) cancelJob(js *jobState, cause error) {
	r.finish(js, domain.JobResult{
		Status:    domain.JobStatusCanceled,
		ErrorKind: domain.ErrorKindCanceled,
		Error:     cause.Error(),
	})
}

func (r *batchRun) publish(js *jobState, detail string) {
	r.engine.notify(domain.JobUpdate{
		BatchID:   r.batchID,
		ProfileID: js.job.ProfileID,
		Revision:  js.job.Revision,
		Attempt:   js.job.Attempts,
		Status:    js.job.Status,
		Detail:    detail,
		At:        time.Now().UTC(),
	})
}

// result assembles the BatchResult in request order
func (r *batchRun) result() *domain.BatchResult {
	result := &domain.BatchResult{
		BatchID:    r.batchID,
		Jobs:       make([]domain.JobResult, 0, len(r.jobs)),
		StartedAt:  r.startedAt,
		FinishedAt: time.Now().UTC(),
	}

	for _, js := range r.jobs {
		result.Jobs = append(result.Jobs, js.result)
	}
	result.Tally()

	return result
}
