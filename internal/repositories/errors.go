package repositories

import (
	"errors"
	"fmt"
)

// StoreError is the RepositoryError used by backends that do not carry their own.
type StoreError struct {
	Op          string
	Err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StoreError) IsNotFound() bool    { return e != nil && e.notFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.conflict }
func (e *StoreError) IsUnavailable() bool { return e != nil && e.unavailable }

// NewNotFoundError reports a missing record.
func NewNotFoundError(op string, format string, args ...any) *StoreError {
	return &StoreError{Op: op, Err: fmt.Errorf(format, args...), notFound: true}
}

// NewConflictError reports a conflicting write.
func NewConflictError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err, conflict: true}
}

// NewUnavailableError reports a transient backend failure.
func NewUnavailableError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err, unavailable: true}
}

// IsNotFound reports whether err carries a not-found RepositoryError.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

var _ RepositoryError = (*StoreError)(nil)
