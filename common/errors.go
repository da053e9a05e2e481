package common

import (
	"errors"
	"fmt"
)

type GoDBErrorCode int

const (
	// FileNotFoundError indicates that the page file could not be opened.
	FileNotFoundError GoDBErrorCode = iota
	// WriteFailedError indicates that the operating system rejected a write or a file creation.
	WriteFailedError
	// ReadNonExistingPageError indicates a page number outside the page file.
	ReadNonExistingPageError
	// CapacityExceededError is returned when a file, header or directory cannot hold any more entries.
	CapacityExceededError
	// PinnedPagesError is returned when every frame of the pool is pinned, or when the pool
	// is shut down while pages are still pinned.
	PinnedPagesError
	// PageNotPinnedError indicates an unpin of a page whose fix count is already zero.
	PageNotPinnedError
	// PageNotResidentError indicates an operation on a page that is not in any frame.
	PageNotResidentError
	// PoolClosedError indicates use of a buffer pool after Shutdown.
	PoolClosedError
	// RecordOutOfRangeError indicates a record id beyond the allocated slots of a table.
	RecordOutOfRangeError
	// RecordNotActiveError indicates a record id whose slot is not occupied.
	RecordNotActiveError
	// TableNotFoundError indicates a lookup of a table that is not in the directory.
	TableNotFoundError
	// TableNameTooLongError indicates a table name longer than the directory can store.
	TableNameTooLongError
	// DuplicateObjectError indicates an attempt to create a table that already exists.
	DuplicateObjectError
	// NoMoreTuplesError is returned by a scan that has been exhausted.
	NoMoreTuplesError
	// TypeMismatchError indicates a value whose type does not match the attribute or operator.
	TypeMismatchError
	// CorruptHeaderError indicates a header page that fails to decode.
	CorruptHeaderError
	// InvalidSchemaError indicates a schema that cannot describe a record.
	InvalidSchemaError
)

func (ec GoDBErrorCode) String() string {
	switch ec {
	case FileNotFoundError:
		return "FileNotFoundError"
	case WriteFailedError:
		return "WriteFailedError"
	case ReadNonExistingPageError:
		return "ReadNonExistingPageError"
	case CapacityExceededError:
		return "CapacityExceededError"
	case PinnedPagesError:
		return "PinnedPagesError"
	case PageNotPinnedError:
		return "PageNotPinnedError"
	case PageNotResidentError:
		return "PageNotResidentError"
	case PoolClosedError:
		return "PoolClosedError"
	case RecordOutOfRangeError:
		return "RecordOutOfRangeError"
	case RecordNotActiveError:
		return "RecordNotActiveError"
	case TableNotFoundError:
		return "TableNotFoundError"
	case TableNameTooLongError:
		return "TableNameTooLongError"
	case DuplicateObjectError:
		return "DuplicateObjectError"
	case NoMoreTuplesError:
		return "NoMoreTuplesError"
	case TypeMismatchError:
		return "TypeMismatchError"
	case CorruptHeaderError:
		return "CorruptHeaderError"
	case InvalidSchemaError:
		return "InvalidSchemaError"
	}
	return "unknown"
}

// GoDBError is the custom error type for the storage engine. It carries a GoDBErrorCode so callers
// can branch on the failure kind with errors.Is, no matter how many layers wrapped it.
type GoDBError struct {
	Code      GoDBErrorCode
	ErrString string
}

func (e GoDBError) Error() string {
	return fmt.Sprintf("err: %s; msg: %s", e.Code.String(), e.ErrString)
}

// Is matches any GoDBError with the same code, ignoring the message.
func (e GoDBError) Is(target error) bool {
	var other GoDBError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewError builds a GoDBError with a formatted message.
func NewError(code GoDBErrorCode, format string, args ...any) GoDBError {
	return GoDBError{Code: code, ErrString: fmt.Sprintf(format, args...)}
}

// IsErrorCode reports whether err, or anything it wraps, is a GoDBError with the given code.
func IsErrorCode(err error, code GoDBErrorCode) bool {
	return errors.Is(err, GoDBError{Code: code})
}
