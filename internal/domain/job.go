package domain

import "time"

// JobStatus represents the state of one profile's submission within a batch
type JobStatus string

// IsTerminal reports whether no further attempts will be made
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailedFatal, JobStatusCanceled:
		return true
	}
	return false
}

// Job is the transient unit of work for one profile inside a batch run.
// It is never persisted; its attempts are recorded as SubmissionRecords.
type Job struct {
	ProfileID string
	Revision  int64
	Fields    Fields
	Attempts  int
	Status    JobStatus
}

// JobResult is the terminal outcome of one job
type JobResult struct {
	ProfileID    string    `json:"profile_id"`
	Revision     int64     `json:"revision"`
	Status       JobStatus `json:"status"`
	Attempts     int       `json:"attempts"`
	Deduplicated bool      `json:"deduplicated,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// BatchResult aggregates the terminal outcomes of a batch run
type BatchResult struct {
	BatchID    string      `json:"batch_id"`
	Succeeded  int         `json:"succeeded"`
	Failed     int         `json:"failed"`
	Skipped    int         `json:"skipped"`
	Jobs       []JobResult `json:"jobs"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Tally recomputes the succeeded / failed / skipped counters from Jobs.
// Deduplicated and canceled jobs count as skipped.
func (r *BatchResult) Tally() {
	r.Succeeded, r.Failed, r.Skipped = 0, 0, 0
	for _, job := range r.Jobs {
		switch {
		case job.Deduplicated, job.Status == JobStatusCanceled:
			r.Skipped++
		case job.Status == JobStatusSucceeded:
			r.Succeeded++
		default:
			r.Failed++
		}
	}
}

// JobUpdate is emitted on every job state change
type JobUpdate struct {
	BatchID   string    `json:"batch_id"`
	ProfileID string    `json:"profile_id"`
	Revision  int64     `json:"revision"`
	Attempt   int       `json:"attempt"`
	Status    JobStatus `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}
