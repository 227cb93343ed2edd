package domain

import (
	"errors"
	"fmt"
	"time"
)

// Failure describes a handler failure: the "outcome" a failure sink receives.
type Failure struct {
	Function string   `json:"function"`
	EventID  string   `json:"event_id"`
	Message  string   `json:"message"`
	Type     string   `json:"type"`
	Stack    string   `json:"stack,omitempty"`
	Causes   []string `json:"causes,omitempty"`
	Retry    bool     `json:"retry"`
	Attempt  int      `json:"attempt,omitempty"`

	Err error `json:"-"`
}

// NewFailure captures err and an optional stack trace.
func NewFailure(err error, stack []byte) *Failure {
	if err == nil {
		err = errors.New("unknown failure")
	}

	f := &Failure{
		Message: err.Error(),
		Type:    fmt.Sprintf("%T", err),
		Stack:   string(stack),
		Err:     err,
	}
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		f.Causes = append(f.Causes, cause.Error())
	}
	return f
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// FailureReport is a Failure as stored by a failure sink.
type FailureReport struct {
	ID         string    `json:"id"`
	Failure    Failure   `json:"failure"`
	ReportedAt time.Time `json:"reported_at"`
}
