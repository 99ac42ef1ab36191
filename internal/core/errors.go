package core

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the store error taxonomy. Use errors.Is to test an
// error returned by a TaskStore against them.
var (
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
	ErrValidation    = errors.New("validation failed")
	ErrConfiguration = errors.New("invalid configuration")
)

// ErrorKind classifies a StoreError.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindNotFound
	KindValidation
	KindConfiguration
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	default:
		return "transient"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindValidation:
		return ErrValidation
	case KindConfiguration:
		return ErrConfiguration
	default:
		return ErrTransient
	}
}

// StoreError is returned by TaskStore adapters. Op names the failed
// operation, Err carries the underlying cause.
type StoreError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewStoreError builds a StoreError of the given kind.
func NewStoreError(kind ErrorKind, op string, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Err: err}
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind.sentinel())
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *StoreError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// IsTransient reports whether err is worth retrying. Context cancellation is
// never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrTransient)
}
