package domain

import "time"

// OutcomeKind classifies the result of one submission attempt
type OutcomeKind string

// Outcome is the classified result of one submission attempt
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

// SubmissionRecord is one immutable attempt entry in the submission log
type SubmissionRecord struct {
	ID        string      `json:"id" db:"submission_id"`
	BatchID   string      `json:"batch_id" db:"batch_id"`
	ProfileID string      `json:"profile_id" db:"profile_id"`
	Revision  int64       `json:"revision" db:"revision"`
	Attempt   int         `json:"attempt" db:"attempt"`
	Outcome   OutcomeKind `json:"outcome" db:"outcome"`
	Detail    string      `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time   `json:"created_at" db:"-"`
}
