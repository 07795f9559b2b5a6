package graph

import "errors"

// ErrMaxStepsExceeded is wrapped by the EngineError returned when a run
// executes more steps than WithMaxSteps allows.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy: MaxAttempts must be >= 1 and MaxDelay >= BaseDelay")

// EngineError is an engine-level failure with a machine readable code, such as
// MAX_STEPS_EXCEEDED, NO_ROUTE, NODE_TIMEOUT or STORE_ERROR.
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the EngineError code carried anywhere in err's chain, or "".
func ErrorCode(err error) string {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Code
	}
	return ""
}
