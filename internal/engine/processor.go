package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/report-autofill/internal/domain"
	"github.com/cuongbtq/report-autofill/internal/retry"
)

func lockKey(id string, revision int64) string {
	return fmt.Sprintf("%s#%d", id, revision)
}

// process runs the next attempt of a job. It returns an error only when
// the batch must be aborted.
func (r *batchRun) process(ctx context.Context, js *jobState) error {
	e := r.engine

	if ctx.Err() != nil {
		r.cancelJob(js, domain.ErrBatchCanceled)
		return nil
	}

	// Step 1: Load the profile snapshot on first dispatch
	if !js.loaded {
		profile, err := e.profiles.Get(ctx, js.job.ProfileID)
		if err != nil {
			return r.handleReadError(ctx, js, "read profile", err)
		}
		js.job.Revision = profile.Revision
		js.job.Fields = profile.Fields
		js.loaded = true
	}

	logger := e.logger.With(
		slog.String("batch_id", r.batchID),
		slog.String("profile_id", js.job.ProfileID),
		slog.Int64("revision", js.job.Revision),
	)

	unlock := e.locks.Lock(lockKey(js.job.ProfileID, js.job.Revision))
	defer unlock()

	// Step 2: Claim the revision against other processes sharing the store
	if err := e.recorder.Claim(ctx, js.job.ProfileID, js.job.Revision, r.batchID, e.claimTTL); err != nil {
		if errors.Is(err, domain.ErrRevisionClaimed) {
			logger.Info("Revision claimed by another process, waiting",
				slog.Duration("delay", e.policy.BaseDelay),
			)
			r.setStatus(js, domain.JobStatusPending, "waiting for another process")
			r.scheduleRetry(ctx, js, e.policy.BaseDelay)
			return nil
		}
		return r.handleReadError(ctx, js, "claim revision", err)
	}
	defer r.release(ctx, js, logger)

	// Step 3: Skip revisions that were already delivered
	outcome, found, err := e.recorder.LastOutcome(ctx, js.job.ProfileID, js.job.Revision)
	if err != nil {
		return r.handleReadError(ctx, js, "read last outcome", err)
	}
	if found && outcome == domain.OutcomeSuccess {
		logger.Info("Revision already submitted, skipping")
		r.finish(js, domain.JobResult{Status: domain.JobStatusSucceeded, Deduplicated: true})
		return nil
	}

	// Step 4: Run the attempt. It is not interrupted by batch cancellation.
	js.job.Attempts++
	attempt := js.job.Attempts
	r.setStatus(js, domain.JobStatusInFlight, "")

	result := r.attempt(ctx, js)

	logger.Info("Submission attempt finished",
		slog.Int("attempt", attempt),
		slog.String("outcome", string(result.Kind)),
		slog.String("reason", result.Reason),
	)

	// Step 5: Record the attempt before deciding what comes next
	rec := &domain.SubmissionRecord{
		BatchID:   r.batchID,
		ProfileID: js.job.ProfileID,
		Revision:  js.job.Revision,
		Attempt:   attempt,
		Outcome:   result.Kind,
		Detail:    result.Reason,
	}
	if err := e.recorder.Append(context.WithoutCancel(ctx), rec); err != nil {
		if errors.Is(err, domain.ErrDuplicateSuccess) {
			logger.Warn("Revision was submitted by another process")
			r.finish(js, domain.JobResult{Status: domain.JobStatusSucceeded, Deduplicated: true})
			return nil
		}

		logger.Error("Failed to record submission attempt",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		r.finish(js, domain.JobResult{
			Status:    domain.JobStatusFailedFatal,
			ErrorKind: domain.ErrorKindStorage,
			Error:     fmt.Sprintf("record attempt %d: %s", attempt, err),
		})
		return nil
	}

	// Step 6: Apply the retry policy
	decision := e.policy.Decide(result.Kind, attempt)
	switch decision.Action {
	case retry.ActionStopSuccess:
		r.finish(js, domain.JobResult{Status: domain.JobStatusSucceeded})

	case retry.ActionRetry:
		logger.Info("Scheduling retry",
			slog.Int("attempt", attempt),
			slog.Duration("delay", decision.Delay),
		)
		r.setStatus(js, domain.JobStatusFailedRetryable, result.Reason)
		r.scheduleRetry(ctx, js, decision.Delay)

	default:
		kind := domain.ErrorKindFatal
		if result.Kind == domain.OutcomeRetryable {
			kind = domain.ErrorKindRetryable
		}
		r.finish(js, domain.JobResult{
			Status:    domain.JobStatusFailedFatal,
			ErrorKind: kind,
			Error:     result.Reason,
		})
	}

	return nil
}

// release drops the claim taken by process. A failed release only delays
// other processes until the claim expires.
func (r *batchRun) release(ctx context.Context, js *jobState, logger *slog.Logger) {
	err := r.engine.recorder.Release(context.WithoutCancel(ctx), js.job.ProfileID, js.job.Revision, r.batchID)
	if err != nil {
		logger.Warn("Failed to release submission claim",
			slog.String("error", err.Error()),
		)
	}
}

// attempt calls the submitter once, bounded by the attempt timeout
func (r *batchRun) attempt(ctx context.Context, js *jobState) domain.Outcome {
	e := r.engine

	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.attemptTimeout)
	defer cancel()

	e.metrics.AttemptStarted()
	start := time.Now()

	err := e.submitter.Submit(attemptCtx, js.job.Fields)
	result := domain.Classify(err)
	e.metrics.AttemptFinished(result.Kind, time.Since(start))

	return result
}

// handleReadError settles a job whose profile or history could not be read
func (r *batchRun) handleReadError(ctx context.Context, js *jobState, op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		r.finish(js, domain.JobResult{
			Status:    domain.JobStatusFailedFatal,
			ErrorKind: domain.ErrorKindNotFound,
			Error:     err.Error(),
		})
		return nil

	case errors.Is(err, domain.ErrInvalidProfileID):
		r.finish(js, domain.JobResult{
			Status:    domain.JobStatusFailedFatal,
			ErrorKind: domain.ErrorKindFatal,
			Error:     err.Error(),
		})
		return nil

	case ctx.Err() != nil:
		r.cancelJob(js, domain.ErrBatchCanceled)
		return nil
	}

	r.engine.logger.Error("Storage read failed, aborting batch",
		slog.String("batch_id", r.batchID),
		slog.String("profile_id", js.job.ProfileID),
		slog.String("error", err.Error()),
	)
	if errors.Is(err, domain.ErrStorageFailure) {
		return fmt.Errorf("%s %q: %w", op, js.job.ProfileID, err)
	}
	return domain.NewStorageError(fmt.Sprintf("%s %q", op, js.job.ProfileID), err)
}
