package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/report-autofill/internal/domain"
)

// Cursor marks the last record of a page of submissions
type Cursor struct {
	CreatedAt int64  `json:"created_at"`
	ID        string `json:"id"`
}

type submissionRow struct {
	ID        string `db:"submission_id"`
	BatchID   string `db:"batch_id"`
	ProfileID string `db:"profile_id"`
	Revision  int64  `db:"revision"`
	Attempt   int    `db:"attempt"`
	Outcome   string `db:"outcome"`
	Detail    string `db:"detail"`
	CreatedAt int64  `db:"created_at"`
}

func (r submissionRow) toDomain() domain.SubmissionRecord {
	return domain.SubmissionRecord{
		ID:        r.ID,
		BatchID:   r.BatchID,
		ProfileID: r.ProfileID,
		Revision:  r.Revision,
		Attempt:   r.Attempt,
		Outcome:   domain.OutcomeKind(r.Outcome),
		Detail:    r.Detail,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

// SubmissionRecorder is the append-only log of submission attempts
type SubmissionRecorder struct {
	db       *sqlx.DB
	logger   *slog.Logger
	pageSize int
	now      func() time.Time

	clockMu  sync.Mutex
	lastTick int64
}

// NewSubmissionRecorder creates a new SubmissionRecorder instance
func NewSubmissionRecorder(db *sqlx.DB, logger *slog.Logger) *SubmissionRecorder {
	return &SubmissionRecorder{
		db:       db,
		logger:   logger,
		pageSize: defaultPageSize,
		now:      time.Now,
	}
}

// tick returns a timestamp strictly greater than any previously returned one
func (r *SubmissionRecorder) tick() int64 {
	r.clockMu.Lock()
	defer r.clockMu.Unlock()

	now := r.now().UTC().UnixNano()
	if now <= r.lastTick {
		now = r.lastTick + 1
	}
	r.lastTick = now
	return now
}

func validateRecord(rec *domain.SubmissionRecord) error {
	if err := validateProfileID(rec.ProfileID); err != nil {
		return err
	}
	if rec.Revision < 1 {
		return fmt.Errorf("invalid submission record: revision %d", rec.Revision)
	}
	if rec.Attempt < 1 {
		return fmt.Errorf("invalid submission record: attempt %d", rec.Attempt)
	}
	switch rec.Outcome {
	case domain.OutcomeSuccess, domain.OutcomeRetryable, domain.OutcomeFatal:
	default:
		return fmt.Errorf("invalid submission record: outcome %q", rec.Outcome)
	}
	return nil
}

// Append stores one attempt. ID and CreatedAt are assigned when empty.
// A second SUCCESS for the same profile revision fails with
// domain.ErrDuplicateSuccess and leaves the log unchanged.
func (r *SubmissionRecorder) Append(ctx context.Context, rec *domain.SubmissionRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	createdAt := r.tick()
	if !rec.CreatedAt.IsZero() {
		createdAt = rec.CreatedAt.UTC().UnixNano()
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()

	query := r.db.Rebind(`
		INSERT INTO submissions (
			submission_id, batch_id, profile_id, revision,
			attempt, outcome, detail, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(
		ctx,
		query,
		rec.ID,
		rec.BatchID,
		rec.ProfileID,
		rec.Revision,
		rec.Attempt,
		string(rec.Outcome),
		rec.Detail,
		createdAt,
	)
	if err != nil {
		if rec.Outcome == domain.OutcomeSuccess && isUniqueViolation(err) {
			r.logger.Warn("Rejected duplicate successful submission",
				slog.String("profile_id", rec.ProfileID),
				slog.Int64("revision", rec.Revision),
				slog.String("batch_id", rec.BatchID),
			)
			return fmt.Errorf("profile %q revision %d: %w", rec.ProfileID, rec.Revision, domain.ErrDuplicateSuccess)
		}
		return wrapErr(ctx, "append submission", err)
	}

	return nil
}

// LastOutcome returns the outcome of the latest attempt for a profile
// revision. A recorded SUCCESS always wins over later attempts.
func (r *SubmissionRecorder) LastOutcome(ctx context.Context, id string, revision int64) (domain.OutcomeKind, bool, error) {
	query := r.db.Rebind(`
		SELECT outcome
		FROM submissions
		WHERE profile_id = ? AND revision = ?
		ORDER BY
			CASE WHEN outcome = 'SUCCESS' THEN 0 ELSE 1 END,
			created_at DESC,
			attempt DESC
		LIMIT 1
	`)

	var outcome string
	if err := r.db.GetContext(ctx, &outcome, query, id, revision); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, wrapErr(ctx, "last outcome", err)
	}

	return domain.OutcomeKind(outcome), true, nil
}

// Page returns up to limit records of a profile after cursor, oldest first,
// and the cursor of the next page (nil on the last page)
func (r *SubmissionRecorder) Page(ctx context.Context, id string, cursor *Cursor, limit int) ([]domain.SubmissionRecord, *Cursor, error) {
	if limit <= 0 {
		limit = r.pageSize
	}

	query := `
		SELECT
			submission_id, batch_id, profile_id, revision,
			attempt, outcome, detail, created_at
		FROM submissions
		WHERE profile_id = ?
	`
	args := []interface{}{id}

	if cursor != nil {
		query += " AND (created_at > ? OR (created_at = ? AND submission_id > ?))"
		args = append(args, cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	// Fetch one extra to determine if there are more results
	query += " ORDER BY created_at ASC, submission_id ASC LIMIT ?"
	args = append(args, limit+1)

	var rows []submissionRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, nil, wrapErr(ctx, "list submissions", err)
	}

	var next *Cursor
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	records := make([]domain.SubmissionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toDomain())
	}

	return records, next, nil
}

// StreamAll yields every record of a profile from oldest to newest. Pages
// are fetched lazily and every range over the sequence starts a fresh read.
func (r *SubmissionRecorder) StreamAll(ctx context.Context, id string) iter.Seq2[domain.SubmissionRecord, error] {
	return func(yield func(domain.SubmissionRecord, error) bool) {
		var cursor *Cursor
		for {
			records, next, err := r.Page(ctx, id, cursor, r.pageSize)
			if err != nil {
				yield(domain.SubmissionRecord{}, err)
				return
			}

			for _, rec := range records {
				if !yield(rec, nil) {
					return
				}
			}

			if next == nil {
				return
			}
			cursor = next
		}
	}
}

// Claim takes the submission claim of a profile revision for owner until
// ttl elapses. It fails with domain.ErrRevisionClaimed while another owner
// holds an unexpired claim. An expired claim is taken over.
func (r *SubmissionRecorder) Claim(ctx context.Context, id string, revision int64, owner string, ttl time.Duration) error {
	if err := validateProfileID(id); err != nil {
		return err
	}

	now := r.now().UTC()
	query := r.db.Rebind(`
		INSERT INTO submission_claims (profile_id, revision, owner, claimed_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (profile_id, revision) DO UPDATE
		SET owner = excluded.owner,
			claimed_at = excluded.claimed_at,
			expires_at = excluded.expires_at
		WHERE submission_claims.expires_at < ?
	`)

	res, err := r.db.ExecContext(ctx, query,
		id, revision, owner, now.UnixNano(), now.Add(ttl).UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return wrapErr(ctx, "claim submission", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return wrapErr(ctx, "claim submission", err)
	}
	if affected == 0 {
		r.logger.Debug("Submission claim held by another owner",
			slog.String("profile_id", id),
			slog.Int64("revision", revision),
			slog.String("owner", owner),
		)
		return fmt.Errorf("profile %q revision %d: %w", id, revision, domain.ErrRevisionClaimed)
	}

	return nil
}

// Release drops the submission claim of a profile revision if owner still holds it
func (r *SubmissionRecorder) Release(ctx context.Context, id string, revision int64, owner string) error {
	query := r.db.Rebind(`
		DELETE FROM submission_claims
		WHERE profile_id = ? AND revision = ? AND owner = ?
	`)

	if _, err := r.db.ExecContext(ctx, query, id, revision, owner); err != nil {
		return wrapErr(ctx, "release submission claim", err)
	}
	return nil
}
