// Package retry decides what happens after each submission attempt.
package retry

import (
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/report-autofill/internal/domain"
)

// Defaults used when a Policy field is left zero
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 5 * time.Second
	DefaultMaxDelay    = time.Minute
)

// ErrInvalidPolicy is returned by Validate for an unusable policy
var ErrInvalidPolicy = errors.New("invalid retry policy")

// Action is what the engine does with a job after an attempt
type Action int

const (
	// ActionStopSuccess ends the job as succeeded
	ActionStopSuccess Action = iota
	// ActionStopFatal ends the job as failed
	ActionStopFatal
	// ActionRetry schedules another attempt after Decision.Delay
	ActionRetry
)

func (a Action) String() string {
	switch a {
	case ActionStopSuccess:
		return "stop-success"
	case ActionStopFatal:
		return "stop-fatal"
	case ActionRetry:
		return "retry"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decision is the result of Policy.Decide
type Decision struct {
	Action Action
	Delay  time.Duration
}

// Policy is an immutable exponential backoff retry policy
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// WithDefaults fills zero fields from DefaultPolicy
func (p Policy) WithDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// Validate checks the policy is usable
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1", ErrInvalidPolicy)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("%w: base delay must be greater than 0", ErrInvalidPolicy)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("%w: max delay %s is below base delay %s", ErrInvalidPolicy, p.MaxDelay, p.BaseDelay)
	}
	return nil
}

// Decide returns what to do after the attempt numbered attempt (1-based)
// finished with the given outcome.
func (p Policy) Decide(outcome domain.OutcomeKind, attempt int) Decision {
	switch outcome {
	case domain.OutcomeSuccess:
		return Decision{Action: ActionStopSuccess}
	case domain.OutcomeRetryable:
		if attempt >= p.MaxAttempts {
			return Decision{Action: ActionStopFatal}
		}
		return Decision{Action: ActionRetry, Delay: p.Backoff(attempt)}
	default:
		return Decision{Action: ActionStopFatal}
	}
}

// Backoff returns BaseDelay * 2^(attempt-1), capped at MaxDelay
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if delay >= p.MaxDelay/2 {
			return p.MaxDelay
		}
		delay *= 2
	}

	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
