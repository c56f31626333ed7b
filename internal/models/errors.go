package models

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrCorruptArchive ErrorType = iota
	ErrMissingControlFields
	ErrDuplicateVersionConflict
	ErrNotFound
	ErrInconsistentPool
	ErrEmptyArchitectureSet
	ErrStagingVerificationFailed
	ErrSigningUnavailable
	ErrUnsupportedArchitecture
	ErrPublishInProgress
	ErrFileOp
	ErrInvalidConfig
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrCorruptArchive:
		return "CorruptArchive"
	case ErrMissingControlFields:
		return "MissingControlFields"
	case ErrDuplicateVersionConflict:
		return "DuplicateVersionConflict"
	case ErrNotFound:
		return "NotFound"
	case ErrInconsistentPool:
		return "InconsistentPool"
	case ErrEmptyArchitectureSet:
		return "EmptyArchitectureSet"
	case ErrStagingVerificationFailed:
		return "StagingVerificationFailed"
	case ErrSigningUnavailable:
		return "SigningUnavailable"
	case ErrUnsupportedArchitecture:
		return "UnsupportedArchitecture"
	case ErrPublishInProgress:
		return "PublishInProgress"
	case ErrFileOp:
		return "FileOp"
	case ErrInvalidConfig:
		return "InvalidConfig"
	default:
		return "Unknown"
	}
}

// PoolError is the error returned by every component of the engine. Key
// identifies the offending record (name/version/arch) or file path.
type PoolError struct {
	Type ErrorType
	Key  string
	Err  error
}

// NewError builds a PoolError with a formatted message.
func NewError(t ErrorType, key, format string, args ...interface{}) *PoolError {
	return &PoolError{Type: t, Key: key, Err: fmt.Errorf(format, args...)}
}

// Error implements the error interface
func (e *PoolError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Key, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *PoolError) Unwrap() error {
	return e.Err
}

// KindOf returns the type of the first PoolError in err's chain.
func KindOf(err error) (ErrorType, bool) {
	var pe *PoolError
	if errors.As(err, &pe) {
		return pe.Type, true
	}
	return 0, false
}

// IsKind reports whether err's chain holds a PoolError of type t.
func IsKind(err error, t ErrorType) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *PoolError:
		return e.Type == t || IsKind(e.Err, t)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if IsKind(inner, t) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return IsKind(e.Unwrap(), t)
	default:
		return false
	}
}
