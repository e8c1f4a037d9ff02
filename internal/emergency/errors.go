package emergency

import (
	"fmt"
	"time"
)

// EmergencyStopError is raised at a cooperative checkpoint when the global
// stop flag is set or an operation exceeds its limits.
type EmergencyStopError struct {
	Reason string
}

// Error implements error.
func (e *EmergencyStopError) Error() string {
	return fmt.Sprintf("emergency stop: %s", e.Reason)
}

// TimeoutExceededError is raised when a cooperative timeout checkpoint
// observes that an operation has run past its allowance.
type TimeoutExceededError struct {
	OperationID string
	Description string
	Elapsed     time.Duration
	Limit       time.Duration
}

// Error implements error.
func (e *TimeoutExceededError) Error() string {
	return fmt.Sprintf("operation %s (%s) exceeded %s after %s",
		e.OperationID, e.Description, e.Limit, e.Elapsed)
}

// CircuitBreakerOpenError is returned when an operation is refused because
// the breaker is open. The caller owns the retry policy; the breaker never
// retries internally.
type CircuitBreakerOpenError struct {
	Failures   int
	RetryAfter time.Duration
}

// Error implements error.
func (e *CircuitBreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open after %d consecutive failures, retry in %s",
		e.Failures, e.RetryAfter)
}
