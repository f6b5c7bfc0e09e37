// Package engine runs batches of profile submissions against a Submitter
// with bounded concurrency, retries and per-revision deduplication.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/report-autofill/internal/domain"
	"github.com/cuongbtq/report-autofill/internal/keylock"
	"github.com/cuongbtq/report-autofill/internal/metrics"
	"github.com/cuongbtq/report-autofill/internal/retry"
)

// Defaults applied when Config fields are left zero
const (
	DefaultConcurrency    = 3
	DefaultAttemptTimeout = 2 * time.Minute
)

// ProfileReader loads the current snapshot of a profile
type ProfileReader interface {
	Get(ctx context.Context, id string) (*domain.Profile, error)
}

// Recorder persists submission attempts. Claim and Release guard the
// remote call of a profile revision across every process sharing the
// store; Claim fails with domain.ErrRevisionClaimed while another owner
// holds an unexpired claim.
type Recorder interface {
	Append(ctx context.Context, rec *domain.SubmissionRecord) error
	LastOutcome(ctx context.Context, id string, revision int64) (domain.OutcomeKind, bool, error)
	Claim(ctx context.Context, id string, revision int64, owner string, ttl time.Duration) error
	Release(ctx context.Context, id string, revision int64, owner string) error
}

// Submitter performs one remote submission attempt. A nil error is a
// success, a *domain.RetryableError or a timeout is retryable and any
// other error is fatal.
//
// Implementations must return once ctx is done. The attempt timeout and
// batch shutdown are only enforced through ctx, so a Submitter that
// ignores it holds its worker slot until it returns.
type Submitter interface {
	Submit(ctx context.Context, fields domain.Fields) error
}

// Observer receives every job state change. Implementations must be safe
// for concurrent use.
type Observer interface {
	OnJobUpdate(update domain.JobUpdate)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(update domain.JobUpdate)

// OnJobUpdate calls f(update)
func (f ObserverFunc) OnJobUpdate(update domain.JobUpdate) {
	f(update)
}

// Config holds engine configuration
type Config struct {
	Logger         *slog.Logger
	Profiles       ProfileReader
	Recorder       Recorder
	Submitter      Submitter
	Policy         retry.Policy
	Concurrency    int
	AttemptTimeout time.Duration

	// ClaimTTL bounds how long a crashed process can block a revision.
	// Defaults to twice AttemptTimeout.
	ClaimTTL  time.Duration
	Metrics   *metrics.Metrics
	Observers []Observer
}

// Engine orchestrates batch submissions. One Engine may run many batches
// concurrently; attempts on the same profile revision are serialized
// across all of them, and across engines sharing a Recorder store.
type Engine struct {
	logger         *slog.Logger
	profiles       ProfileReader
	recorder       Recorder
	submitter      Submitter
	policy         retry.Policy
	concurrency    int
	attemptTimeout time.Duration
	claimTTL       time.Duration
	metrics        *metrics.Metrics
	observers      []Observer
	locks          keylock.Locker
	newBatchID     func() string
}

// NewEngine creates a new engine instance
func NewEngine(cfg *Config) (*Engine, error) {
	if cfg.Profiles == nil || cfg.Recorder == nil || cfg.Submitter == nil {
		return nil, errors.New("engine requires a profile reader, a recorder and a submitter")
	}

	policy := cfg.Policy.WithDefaults()
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	attemptTimeout := cfg.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}

	claimTTL := cfg.ClaimTTL
	if claimTTL <= 0 {
		claimTTL = 2 * attemptTimeout
	}

	return &Engine{
		logger:         logger,
		profiles:       cfg.Profiles,
		recorder:       cfg.Recorder,
		submitter:      cfg.Submitter,
		policy:         policy,
		concurrency:    concurrency,
		attemptTimeout: attemptTimeout,
		claimTTL:       claimTTL,
		metrics:        cfg.Metrics,
		observers:      cfg.Observers,
		newBatchID:     uuid.NewString,
	}, nil
}

// SubmitBatch submits the current revision of every listed profile and
// waits until each job is terminal. Duplicate IDs collapse into one job.
// concurrency <= 0 uses the configured default.
//
// The returned BatchResult is never nil. The error is non-nil when the
// batch was canceled through ctx (wrapping domain.ErrBatchCanceled) or
// aborted by a storage read failure (wrapping domain.ErrStorageFailure);
// jobs that had not finished are then reported as CANCELED.
func (e *Engine) SubmitBatch(ctx context.Context, profileIDs []string, concurrency int) (*domain.BatchResult, error) {
	if concurrency <= 0 {
		concurrency = e.concurrency
	}

	ids := uniqueIDs(profileIDs)
	run := newBatchRun(e, e.newBatchID(), ids)

	e.logger.Info("Starting batch",
		slog.String("batch_id", run.batchID),
		slog.Int("jobs", len(ids)),
		slog.Int("concurrency", concurrency),
	)

	runErr := run.execute(ctx, concurrency)
	result := run.result()
	e.metrics.BatchFinished(result.FinishedAt.Sub(result.StartedAt))

	e.logger.Info("Batch finished",
		slog.String("batch_id", result.BatchID),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped),
		slog.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	)

	switch {
	case runErr != nil:
		e.logger.Error("Batch aborted",
			slog.String("batch_id", result.BatchID),
			slog.String("error", runErr.Error()),
		)
		return result, fmt.Errorf("batch %s aborted: %w", result.BatchID, runErr)
	case ctx.Err() != nil:
		return result, fmt.Errorf("batch %s: %w: %w", result.BatchID, domain.ErrBatchCanceled, context.Cause(ctx))
	}

	return result, nil
}

// uniqueIDs drops duplicates while keeping first-seen order
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}

func (e *Engine) notify(update domain.JobUpdate) {
	for _, observer := range e.observers {
		observer.OnJobUpdate(update)
	}
}
