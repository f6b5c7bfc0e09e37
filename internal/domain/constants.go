package domain

// Job status constants
const (
	JobStatusPending         JobStatus = "PENDING"
	JobStatusInFlight        JobStatus = "IN_FLIGHT"
	JobStatusSucceeded       JobStatus = "SUCCEEDED"
	JobStatusFailedRetryable JobStatus = "FAILED_RETRYABLE"
	JobStatusFailedFatal     JobStatus = "FAILED_FATAL"
	JobStatusCanceled        JobStatus = "CANCELED"
)

// Outcome kind constants, persisted as-is in the submissions table
const (
	OutcomeSuccess   OutcomeKind = "SUCCESS"
	OutcomeRetryable OutcomeKind = "RETRYABLE_FAILURE"
	OutcomeFatal     OutcomeKind = "FATAL_FAILURE"
)

// Error kinds reported on terminal job results
const (
	ErrorKindNotFound  = "not_found"
	ErrorKindRetryable = "retryable"
	ErrorKindFatal     = "fatal"
	ErrorKindStorage   = "storage"
	ErrorKindCanceled  = "canceled"
)
