package repositories

import "fmt"

type errorKind int

const (
	kindUnknown errorKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

// StoreError is a backend-neutral RepositoryError for repositories that do not carry their own
// error type.
type StoreError struct {
	Op   string
	kind errorKind
	Err  error
}

var _ RepositoryError = (*StoreError)(nil)

// NewNotFound reports a missing record.
func NewNotFound(op string, err error) *StoreError {
	return &StoreError{Op: op, kind: kindNotFound, Err: err}
}

// NewConflict reports a uniqueness or precondition failure.
func NewConflict(op string, err error) *StoreError {
	return &StoreError{Op: op, kind: kindConflict, Err: err}
}

// NewUnavailable reports a backend that could not be reached.
func NewUnavailable(op string, err error) *StoreError {
	return &StoreError{Op: op, kind: kindUnavailable, Err: err}
}

// NewUnknown wraps any other backend failure.
func NewUnknown(op string, err error) *StoreError {
	return &StoreError{Op: op, kind: kindUnknown, Err: err}
}

func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StoreError) IsNotFound() bool    { return e != nil && e.kind == kindNotFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.kind == kindConflict }
func (e *StoreError) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }
