package common

import (
	"errors"
	"fmt"
)

type DBErrorCode int

const (
	// DuplicateObjectError indicates an attempt to create a table or index
	// that already exists in the catalog.
	DuplicateObjectError DBErrorCode = iota
	// NoSuchObjectError indicates a request for a table, column or index that does
	// not exist in the catalog.
	NoSuchObjectError
	// DeadlockError is returned by the lock manager when granting a lock could
	// deadlock, necessitating a transaction abort.
	DeadlockError
	// UnsupportedOperationError indicates an expression was asked for an
	// evaluation it does not implement. It points at a query construction bug.
	UnsupportedOperationError
	// BindError indicates an expression could not be resolved against the
	// query's tables (unknown or ambiguous column, misplaced aggregate).
	BindError
	// ParseError indicates a malformed numeric or date string met during evaluation.
	ParseError
	// EncodingError indicates a value that does not fit the row encoding.
	EncodingError
	// ConstraintError indicates a violated UNIQUE column or index.
	ConstraintError
	// TransactionClosedError indicates use of a committed or rolled-back transaction.
	TransactionClosedError
)

func (ec DBErrorCode) String() string {
	switch ec {
	case DuplicateObjectError:
		return "DuplicateObjectError"
	case NoSuchObjectError:
		return "NoSuchObjectError"
	case DeadlockError:
		return "DeadlockError"
	case UnsupportedOperationError:
		return "UnsupportedOperationError"
	case BindError:
		return "BindError"
	case ParseError:
		return "ParseError"
	case EncodingError:
		return "EncodingError"
	case ConstraintError:
		return "ConstraintError"
	case TransactionClosedError:
		return "TransactionClosedError"
	}
	return "unknown"
}

// DBError is the custom error type for the database engine.
// It wraps a specific DBErrorCode with a detailed message and, for data errors, the underlying cause.
//
// The code gives the statement layer enough metadata to make decisions (like rolling back the transaction)
// without inspecting message text.
type DBError struct {
	Code      DBErrorCode
	ErrString string
	Cause     error
}

func (e DBError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("err: %s; msg: %s; cause: %v", e.Code.String(), e.ErrString, e.Cause)
	}
	return fmt.Sprintf("err: %s; msg: %s", e.Code.String(), e.ErrString)
}

func (e DBError) Unwrap() error {
	return e.Cause
}

// NewError builds a DBError with a formatted message.
func NewError(code DBErrorCode, format string, args ...any) error {
	return DBError{Code: code, ErrString: fmt.Sprintf(format, args...)}
}

// WrapError builds a DBError that carries cause.
func WrapError(code DBErrorCode, cause error, format string, args ...any) error {
	return DBError{Code: code, ErrString: fmt.Sprintf(format, args...), Cause: cause}
}

// ErrorCode extracts the DBErrorCode from anywhere in err's chain.
func ErrorCode(err error) (DBErrorCode, bool) {
	var dbErr DBError
	if errors.As(err, &dbErr) {
		return dbErr.Code, true
	}
	return 0, false
}

// IsErrorCode reports whether err's chain carries a DBError with the given code.
func IsErrorCode(err error, code DBErrorCode) bool {
	c, ok := ErrorCode(err)
	return ok && c == code
}
