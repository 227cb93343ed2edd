package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedTimestamp is returned when an event timestamp cannot be parsed.
	// Retrying will not fix it, so callers drop the event.
	ErrMalformedTimestamp = errors.New("malformed event timestamp")

	// ErrSinkReport marks a failure while reporting to the failure sink.
	// It is logged and never changes a retry decision.
	ErrSinkReport = errors.New("failure sink report failed")
)

// MalformedTimestampError carries the raw value that failed to parse.
type MalformedTimestampError struct {
	Raw string
	Err error
}

func (e *MalformedTimestampError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %q", ErrMalformedTimestamp, e.Raw)
	}
	return fmt.Sprintf("%s: %q: %v", ErrMalformedTimestamp, e.Raw, e.Err)
}

func (e *MalformedTimestampError) Is(target error) bool {
	return target == ErrMalformedTimestamp
}

func (e *MalformedTimestampError) Unwrap() error {
	return e.Err
}
