package gateway

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned (wrapped as transient) while the breaker is
// cooling down after sustained provider failure.
var ErrCircuitOpen = errors.New("model provider circuit open")

// TransientError marks a failure worth retrying: timeouts, 5xx, rate-limit
// rejections, open circuit. The pipeline owns the backoff/retry loop.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provider error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a request the provider reports as fundamentally
// unprocessable. No retry; the submission fails immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent provider error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
