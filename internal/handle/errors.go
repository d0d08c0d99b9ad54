package handle

import (
	"errors"
	"fmt"
)

// StatusSuccess is the status reported for a committed statement.
const StatusSuccess = "success"

var (
	// ErrClosed is returned by operations on a handle after Close.
	ErrClosed = errors.New("handle is closed")

	// ErrEmptyStatement is returned when the statement text is blank.
	ErrEmptyStatement = errors.New("statement is empty")

	// ErrUnsupportedDriver is returned by Open for an unknown driver name.
	ErrUnsupportedDriver = errors.New("unsupported driver")

	// ErrMissingParameter is returned by Open when a required connection
	// parameter is not set.
	ErrMissingParameter = errors.New("missing connection parameter")
)

// StatementError reports a failed FetchOne, FetchAll or Commit. Connection
// failures during Open are never reported as a StatementError.
type StatementError struct {
	Op    string // fetch_one, fetch_all or commit
	Query string
	Err   error
}

func (e *StatementError) Error() string {
	return "error: " + e.Err.Error()
}

func (e *StatementError) Unwrap() error { return e.Err }

// IsStatementError reports whether err is, or wraps, a StatementError.
func IsStatementError(err error) bool {
	var se *StatementError
	return errors.As(err, &se)
}

// Status renders the outcome of an operation as text: "success" for a nil
// error, otherwise "error: <message>".
func Status(err error) string {
	if err == nil {
		return StatusSuccess
	}
	var se *StatementError
	if errors.As(err, &se) {
		return se.Error()
	}
	return fmt.Sprintf("error: %v", err)
}
