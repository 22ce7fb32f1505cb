package driver

import (
	stderrors "errors"
)

// sentinelError tags a native client error with a driver sentinel. Both
// remain reachable through errors.Is and errors.As, from the standard
// library and from github.com/cockroachdb/errors alike.
type sentinelError struct {
	cause    error
	sentinel error
}

// WithSentinel returns err tagged with sentinel. The message is err's own.
func WithSentinel(err, sentinel error) error {
	if err == nil {
		return nil
	}
	return &sentinelError{cause: err, sentinel: sentinel}
}

func (e *sentinelError) Error() string { return e.cause.Error() }

func (e *sentinelError) Unwrap() []error { return []error{e.cause, e.sentinel} }

func (e *sentinelError) Is(target error) bool {
	return target == e.sentinel || stderrors.Is(e.cause, target)
}
