package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/report-autofill/internal/domain"
	"github.com/cuongbtq/report-autofill/internal/keylock"
)

const defaultPageSize = 100

type profileRow struct {
	ProfileID string `db:"profile_id"`
	Fields    string `db:"fields"`
	Revision  int64  `db:"revision"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r profileRow) toDomain() (*domain.Profile, error) {
	var fields domain.Fields
	if err := json.Unmarshal([]byte(r.Fields), &fields); err != nil {
		return nil, domain.NewStorageError("decode profile fields", err)
	}

	return &domain.Profile{
		ID:        r.ProfileID,
		Fields:    fields,
		Revision:  r.Revision,
		UpdatedAt: time.Unix(0, r.UpdatedAt).UTC(),
	}, nil
}

type revisionRow struct {
	ProfileID string `db:"profile_id"`
	Revision  int64  `db:"revision"`
	Fields    string `db:"fields"`
	Changes   string `db:"changes"`
	Note      string `db:"note"`
	CreatedAt int64  `db:"created_at"`
}

func (r revisionRow) toDomain() (domain.Revision, error) {
	rev := domain.Revision{
		ProfileID: r.ProfileID,
		Number:    r.Revision,
		Note:      r.Note,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}

	if err := json.Unmarshal([]byte(r.Fields), &rev.Fields); err != nil {
		return domain.Revision{}, domain.NewStorageError("decode revision fields", err)
	}
	if err := json.Unmarshal([]byte(r.Changes), &rev.Changes); err != nil {
		return domain.Revision{}, domain.NewStorageError("decode revision changes", err)
	}

	return rev, nil
}

// ProfileStore keeps the current snapshot of every profile together with
// its append-only revision log
type ProfileStore struct {
	db       *sqlx.DB
	logger   *slog.Logger
	locks    keylock.Locker
	pageSize int
	now      func() time.Time
}

// NewProfileStore creates a new ProfileStore instance
func NewProfileStore(db *sqlx.DB, logger *slog.Logger) *ProfileStore {
	return &ProfileStore{
		db:       db,
		logger:   logger,
		pageSize: defaultPageSize,
		now:      time.Now,
	}
}

func validateProfileID(id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.ErrInvalidProfileID
	}
	return nil
}

// Get returns the current snapshot of a profile
func (s *ProfileStore) Get(ctx context.Context, id string) (*domain.Profile, error) {
	if err := validateProfileID(id); err != nil {
		return nil, err
	}

	query := s.db.Rebind(`
		SELECT profile_id, fields, revision, updated_at
		FROM profiles
		WHERE profile_id = ?
	`)

	var row profileRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %q: %w", id, domain.ErrNotFound)
		}
		return nil, wrapErr(ctx, "get profile", err)
	}

	return row.toDomain()
}

// Put replaces the fields of a profile, creating it when missing, and
// returns the new revision number. Exactly one revision is appended.
func (s *ProfileStore) Put(ctx context.Context, id string, fields domain.Fields, note string) (int64, error) {
	if err := validateProfileID(id); err != nil {
		return 0, err
	}

	normalized, err := fields.Normalize()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidFields, err)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, wrapErr(ctx, "begin profile transaction", err)
	}
	defer tx.Rollback()

	var current profileRow
	previous := int64(0)
	before := domain.Fields{}

	err = tx.GetContext(ctx, &current, tx.Rebind(`
		SELECT profile_id, fields, revision, updated_at
		FROM profiles
		WHERE profile_id = ?
	`), id)
	switch {
	case err == nil:
		previous = current.Revision
		if err := json.Unmarshal([]byte(current.Fields), &before); err != nil {
			return 0, domain.NewStorageError("decode profile fields", err)
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return 0, wrapErr(ctx, "read current revision", err)
	}

	revision := previous + 1
	changes := domain.Diff(before, normalized)

	fieldsJSON, err := json.Marshal(normalized)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidFields, err)
	}
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidFields, err)
	}

	now := s.now().UTC().UnixNano()

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO profile_revisions (
			profile_id, revision, fields, changes, note, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`), id, revision, string(fieldsJSON), string(changesJSON), note, now)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.NewStorageError("append revision", fmt.Errorf("revision %d of %q was written concurrently", revision, id))
		}
		return 0, wrapErr(ctx, "append revision", err)
	}

	if previous == 0 {
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO profiles (profile_id, fields, revision, updated_at)
			VALUES (?, ?, ?, ?)
		`), id, string(fieldsJSON), revision, now)
		if err != nil {
			return 0, wrapErr(ctx, "insert profile", err)
		}
	} else {
		result, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE profiles
			SET fields = ?, revision = ?, updated_at = ?
			WHERE profile_id = ? AND revision = ?
		`), string(fieldsJSON), revision, now, id, previous)
		if err != nil {
			return 0, wrapErr(ctx, "update profile", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return 0, wrapErr(ctx, "update profile", err)
		}
		if rowsAffected != 1 {
			return 0, domain.NewStorageError("update profile", fmt.Errorf("revision of %q moved past %d", id, previous))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapErr(ctx, "commit profile", err)
	}

	s.logger.Debug("Profile saved",
		slog.String("profile_id", id),
		slog.Int64("revision", revision),
		slog.Int("changed_fields", len(changes)),
	)

	return revision, nil
}

// History yields the revisions of a profile from oldest to newest. Pages are
// fetched lazily and every range over the sequence starts a fresh read.
func (s *ProfileStore) History(ctx context.Context, id string) iter.Seq2[domain.Revision, error] {
	return func(yield func(domain.Revision, error) bool) {
		if err := validateProfileID(id); err != nil {
			yield(domain.Revision{}, err)
			return
		}

		query := s.db.Rebind(`
			SELECT profile_id, revision, fields, changes, note, created_at
			FROM profile_revisions
			WHERE profile_id = ? AND revision > ?
			ORDER BY revision ASC
			LIMIT ?
		`)

		after := int64(0)
		for {
			var rows []revisionRow
			if err := s.db.SelectContext(ctx, &rows, query, id, after, s.pageSize); err != nil {
				yield(domain.Revision{}, wrapErr(ctx, "list revisions", err))
				return
			}

			// every stored profile has revision 1
			if after == 0 && len(rows) == 0 {
				yield(domain.Revision{}, fmt.Errorf("profile %q: %w", id, domain.ErrNotFound))
				return
			}

			for _, row := range rows {
				rev, err := row.toDomain()
				if err != nil {
					yield(domain.Revision{}, err)
					return
				}
				if !yield(rev, nil) {
					return
				}
				after = row.Revision
			}

			if len(rows) < s.pageSize {
				return
			}
		}
	}
}

// List returns the snapshots accepted by filter, ordered by profile ID
func (s *ProfileStore) List(ctx context.Context, filter domain.ProfileFilter) ([]domain.Profile, error) {
	query := s.db.Rebind(`
		SELECT profile_id, fields, revision, updated_at
		FROM profiles
		WHERE profile_id > ?
		ORDER BY profile_id ASC
		LIMIT ?
	`)

	profiles := []domain.Profile{}
	after := ""
	for {
		var rows []profileRow
		if err := s.db.SelectContext(ctx, &rows, query, after, s.pageSize); err != nil {
			return nil, wrapErr(ctx, "list profiles", err)
		}

		for _, row := range rows {
			profile, err := row.toDomain()
			if err != nil {
				return nil, err
			}
			if filter.Accepts(profile) {
				profiles = append(profiles, *profile)
			}
			after = row.ProfileID
		}

		if len(rows) < s.pageSize {
			return profiles, nil
		}
	}
}
