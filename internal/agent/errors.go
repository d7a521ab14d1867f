package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrAgentUnavailable indicates an agent call failed after all retry attempts.
	ErrAgentUnavailable = errors.New("agent unavailable")

	// ErrMalformedResponse indicates the agent output could not be parsed even
	// after a reformat attempt.
	ErrMalformedResponse = errors.New("malformed agent response")

	// ErrMissingAPIKey indicates a backend was selected without credentials.
	ErrMissingAPIKey = errors.New("api key required")

	// ErrUnknownBackend indicates an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown backend")
)

// UnavailableError reports which agent failed and how many attempts were made.
type UnavailableError struct {
	Agent    Role
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable after %d attempt(s): %v", e.Agent, e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is matches ErrAgentUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrAgentUnavailable
}

// MalformedError carries the raw output that failed to parse.
type MalformedError struct {
	Agent    Role
	Attempts int
	Raw      string
	Err      error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s returned malformed output: %v", e.Agent, e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// Is matches ErrMalformedResponse.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// retryableError wraps an error to indicate it can be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryableError checks if an error should be retried.
func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
