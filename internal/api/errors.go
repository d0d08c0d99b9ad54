package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"dbhandle/internal/handle"
)

// httpStatusFromError maps handle errors to an HTTP status and error code.
func httpStatusFromError(err error) (int, string) {
	switch {
	case errors.Is(err, handle.ErrClosed):
		return http.StatusServiceUnavailable, "HANDLE_CLOSED"
	case errors.Is(err, handle.ErrEmptyStatement):
		return http.StatusBadRequest, "EMPTY_STATEMENT"
	case handle.IsStatementError(err):
		return http.StatusUnprocessableEntity, "EXECUTION_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// normalizeArgs converts JSON numbers to int64 when integral, otherwise
// float64. Nested arrays and objects cannot be bound and are rejected.
func normalizeArgs(args []any) ([]any, error) {
	for i, a := range args {
		switch v := a.(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				args[i] = n
				continue
			}
			f, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("args[%d]: %w", i, err)
			}
			args[i] = f
		case nil, string, bool:
		default:
			return nil, fmt.Errorf("args[%d]: unsupported type %T", i, a)
		}
	}
	return args, nil
}
