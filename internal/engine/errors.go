package engine

import (
	"errors"
	"fmt"
)

// ValidationError rejects an input before anything is mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StoreError is a persistence failure. It is fatal to the request and never
// retried locally.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

var errNotRecorded = errors.New("action was not inserted or updated")

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsStore reports whether err is a StoreError.
func IsStore(err error) bool {
	var s *StoreError
	return errors.As(err, &s)
}
