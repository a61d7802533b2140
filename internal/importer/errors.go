package importer

import (
	"errors"
	"fmt"
)

// Parse error codes
const (
	CodeInvalidFormat = "INVALID_FORMAT"
	CodeMissingHeader = "MISSING_HEADER"
	CodeFileTooLarge  = "FILE_TOO_LARGE"
	CodeUnreadable    = "PARSE_ERROR"
)

// ErrInvalidState is returned when an operation is called out of order, such
// as committing before validation.
var ErrInvalidState = errors.New("import is not in a state that allows this operation")

// ParseError is fatal for the whole batch.
type ParseError struct {
	Code    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error { return e.Err }

// ResolutionError means a missing brand or category could not be created.
// It fails only the row that needed the entity.
type ResolutionError struct {
	Kind string
	Name string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// PersistenceError means the product itself could not be created.
type PersistenceError struct {
	Row int
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("row %d: create product: %v", e.Row, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// InfrastructureError stops the remainder of a batch. Rows committed before
// it stay committed.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }
