package reconcile

import (
	"fmt"
	"strings"
)

// Stage names the step at which an identity failed.
type Stage string

const (
	StageCreate        Stage = "create"
	StageSetProperties Stage = "set-properties"
)

// IdentityFailure is one identity that could not be provisioned.
type IdentityFailure struct {
	Login string
	Stage Stage
	Err   error
}

func (f IdentityFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Stage, f.Login, f.Err)
}

func (f IdentityFailure) Unwrap() error {
	return f.Err
}

// AggregateError collects the per-identity failures of a pass that still ran
// to completion.
type AggregateError struct {
	Failures []IdentityFailure
}

func (e *AggregateError) Error() string {
	if len(e.Failures) == 1 {
		return "1 identity failed: " + e.Failures[0].Error()
	}

	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("%d identities failed: %s", len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

func (e *AggregateError) add(login string, stage Stage, err error) {
	e.Failures = append(e.Failures, IdentityFailure{Login: login, Stage: stage, Err: err})
}

func (e *AggregateError) orNil() error {
	if e == nil || len(e.Failures) == 0 {
		return nil
	}
	return e
}
