package handle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Row is one fetched row keyed by field name. When a result repeats a column
// name, as in a self-join, the first occurrence keeps the name and later ones
// are keyed name_2, name_3 and so on, skipping names the result already uses.
type Row map[string]any

// ExecResult is the outcome of a successful Commit.
type ExecResult struct {
	Status       string // always StatusSuccess
	RowsAffected int64
	LastInsertID int64
}

// querier is satisfied by both *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// FetchOne executes query and returns its first row, or nil when no row
// matched. Rows past the first are discarded.
func (h *Handle) FetchOne(ctx context.Context, query string, args ...any) (Row, error) {
	return run(ctx, h, "fetch_one", query, func(ctx context.Context, q querier) (Row, error) {
		rows, err := scanRows(ctx, q, h.shape, 1, query, args)
		if err != nil || len(rows) == 0 {
			return nil, err
		}
		return rows[0], nil
	})
}

// FetchAll executes query and returns every row in order. The result is empty,
// not nil, when no row matched.
func (h *Handle) FetchAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	return run(ctx, h, "fetch_all", query, func(ctx context.Context, q querier) ([]Row, error) {
		return scanRows(ctx, q, h.shape, 0, query, args)
	})
}

// Commit executes query and commits. With autocommit on the statement has
// already committed by the time it returns.
func (h *Handle) Commit(ctx context.Context, query string, args ...any) (ExecResult, error) {
	return run(ctx, h, "commit", query, func(ctx context.Context, q querier) (ExecResult, error) {
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return ExecResult{}, err
		}
		if h.tx != nil {
			err := h.tx.Commit()
			h.tx = nil
			if err != nil {
				return ExecResult{}, fmt.Errorf("commit: %w", err)
			}
		}

		out := ExecResult{Status: StatusSuccess}
		// Not every driver reports these; absence is not a failure.
		if n, err := res.RowsAffected(); err == nil {
			out.RowsAffected = n
		}
		if id, err := res.LastInsertId(); err == nil {
			out.LastInsertID = id
		}
		return out, nil
	})
}

// run is the error-wrapping adapter shared by every execute operation. It
// serializes access to the connection and turns any failure, including a
// driver panic, into a *StatementError.
//
// ctx is honoured until the statement starts. Once started, the statement runs
// to completion: cancelling a query makes some drivers (mysql) drop the
// network connection, which would kill the pinned connection for every
// caller sharing the handle.
func run[T any](ctx context.Context, h *Handle, op, query string, fn func(context.Context, querier) (T, error)) (out T, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("driver panic: %v", r)
		}
		if err != nil {
			var zero T
			out = zero
			err = &StatementError{Op: op, Query: query, Err: err}
			h.logger.Warn("statement failed", "op", op, "duration", time.Since(start), "error", err)
			return
		}
		h.logger.Debug("statement executed", "op", op, "duration", time.Since(start))
	}()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return out, ErrClosed
	}
	if strings.TrimSpace(query) == "" {
		return out, ErrEmptyStatement
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	ctx = context.WithoutCancel(ctx)
	if err := h.ensureConn(ctx); err != nil {
		return out, err
	}
	q, err := h.querier(ctx)
	if err == nil {
		out, err = fn(ctx, q)
	}
	if err != nil && connGone(err) {
		h.dropConn(err)
	}
	return out, err
}

// querier returns the connection, or the open transaction when autocommit is
// off, beginning one if needed. Callers must hold h.mu.
func (h *Handle) querier(ctx context.Context) (querier, error) {
	if h.autocomm {
		return h.conn, nil
	}
	if h.tx == nil {
		// ctx is detached by run, so the transaction outlives the call.
		tx, err := h.conn.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin: %w", err)
		}
		h.tx = tx
	}
	return h.tx, nil
}

// scanRows reads up to limit rows (0 for all) into name-keyed maps.
func scanRows(ctx context.Context, q querier, shape RowShape, limit int, query string, args []any) ([]Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	keys := rowKeys(cols)

	out := make([]Row, 0)
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, k := range keys {
			row[k] = convertValue(vals[i], shape)
		}
		out = append(out, row)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

// rowKeys maps result columns to Row keys, renaming repeated names so no
// value is overwritten.
func rowKeys(cols []string) []string {
	names := make(map[string]bool, len(cols))
	for _, c := range cols {
		names[c] = true
	}
	used := make(map[string]bool, len(cols))
	keys := make([]string, len(cols))
	for i, c := range cols {
		k := c
		if used[k] {
			for n := 2; ; n++ {
				k = fmt.Sprintf("%s_%d", c, n)
				if !used[k] && !names[k] {
					break
				}
			}
		}
		used[k] = true
		keys[i] = k
	}
	return keys
}

func convertValue(v any, shape RowShape) any {
	if shape == RowShapeRaw {
		return v
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
