package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidBatchRequest is returned for batch request messages that can never be processed
var ErrInvalidBatchRequest = errors.New("invalid batch request")

// BatchRequest asks the worker service to run one batch
type BatchRequest struct {
	RequestID   string    `json:"request_id"`
	ProfileIDs  []string  `json:"profile_ids"`
	Concurrency int       `json:"concurrency,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Validate checks the request names at least one profile
func (r *BatchRequest) Validate() error {
	if strings.TrimSpace(r.RequestID) == "" {
		return fmt.Errorf("%w: request_id is required", ErrInvalidBatchRequest)
	}
	if r.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency must not be negative", ErrInvalidBatchRequest)
	}
	for _, id := range r.ProfileIDs {
		if strings.TrimSpace(id) != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: profile_ids must name at least one profile", ErrInvalidBatchRequest)
}
