package graph

import "errors"

// ErrMaxStepsExceeded indicates that the run reached the MaxSteps limit
// without reaching a terminal node.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrMaxAttemptsExceeded is wrapped by Retry when every attempt failed.
var ErrMaxAttemptsExceeded = errors.New("maximum retry attempts exceeded")

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// EngineError represents a failure of the engine itself, as opposed to a
// failure inside a node. Code is stable and meant for programmatic checks:
// MISSING_REDUCER, MISSING_STORE, NO_START_NODE, NODE_NOT_FOUND,
// DUPLICATE_NODE, MAX_STEPS_EXCEEDED, NO_ROUTE, STORE_ERROR, NODE_TIMEOUT,
// RUN_NOT_FOUND, CHECKPOINT_NOT_FOUND.
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap exposes the underlying cause, if any.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// IsCode reports whether err is an EngineError with the given code.
func IsCode(err error, code string) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}
