// Package handle wraps a single database connection behind three operations:
// FetchOne, FetchAll and Commit.
//
// A Handle owns exactly one connection at a time. If the driver reports that
// connection unusable, the next operation pins a replacement. Statements are
// passed per call and operations are serialized, so one Handle may be shared
// between goroutines. Failures while executing a statement are reported as
// *StatementError; failures while connecting are returned from Open as plain
// errors.
package handle

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"dbhandle/internal/db"
)

// Handle owns one live database connection.
type Handle struct {
	id       string
	driver   string
	shape    RowShape
	autocomm bool
	logger   *slog.Logger

	db          *sql.DB
	conn        *sql.Conn // nil after the driver dropped it
	connTimeout time.Duration

	mu     sync.Mutex
	tx     *sql.Tx // open transaction when autocommit is off
	closed bool
}

// Open connects using cfg and pins one connection. There is no retry; a
// failed connection attempt is returned to the caller unchanged in kind.
func Open(ctx context.Context, cfg Config) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	pool, err := db.OpenSingle(ctx, cfg.Driver, cfg.dsn(), cfg.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	connCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	conn, err := pool.Conn(connCtx)
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("acquire %s connection: %w", cfg.Driver, err)
	}

	h := &Handle{
		id:       uuid.Must(uuid.NewV7()).String(),
		driver:   cfg.Driver,
		shape:    cfg.RowShape,
		autocomm: cfg.AutocommitEnabled(),
		db:       pool,
		conn:     conn,

		connTimeout: cfg.ConnectTimeout,
	}
	h.logger = cfg.Logger.With("handle_id", h.id, "driver", cfg.Driver)
	h.logger.Debug("handle opened", "database", cfg.Database, "autocommit", h.autocomm)

	return h, nil
}

// With opens a handle, passes it to fn and closes it on every exit path. A
// Close error is returned only when fn succeeded.
func With(ctx context.Context, cfg Config, fn func(*Handle) error) (err error) {
	h, err := Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(h)
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string { return h.id }

// Driver returns the database/sql driver name in use.
func (h *Handle) Driver() string { return h.driver }

// Autocommit reports whether statements commit without an explicit Commit.
func (h *Handle) Autocommit() bool { return h.autocomm }

// Ping verifies the pinned connection is still usable, re-pinning one if the
// previous connection was dropped.
func (h *Handle) Ping(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	if err := h.ensureConn(ctx); err != nil {
		return err
	}
	err := h.conn.PingContext(ctx)
	if err != nil && connGone(err) {
		h.dropConn(err)
	}
	return err
}

// ensureConn pins a fresh pool connection when the previous one was dropped.
// Callers must hold h.mu.
func (h *Handle) ensureConn(ctx context.Context) error {
	if h.conn != nil {
		return nil
	}
	connCtx, cancel := context.WithTimeout(ctx, h.connTimeout)
	defer cancel()
	conn, err := h.db.Conn(connCtx)
	if err != nil {
		return fmt.Errorf("reconnect %s: %w", h.driver, err)
	}
	h.conn = conn
	h.logger.Info("connection re-pinned")
	return nil
}

// dropConn forgets a connection the driver reported as unusable. Work left
// uncommitted on it is lost with it. Callers must hold h.mu.
func (h *Handle) dropConn(cause error) {
	if h.tx != nil {
		_ = h.tx.Rollback()
		h.tx = nil
	}
	_ = h.conn.Close()
	h.conn = nil
	h.logger.Warn("connection dropped", "error", cause)
}

// connGone reports whether err means the pinned connection cannot be reused.
func connGone(err error) bool {
	return errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn)
}

// Close releases the connection. Work left uncommitted with autocommit off is
// rolled back. Close is idempotent.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	var errs []error
	if h.tx != nil {
		err := h.tx.Rollback()
		switch {
		case err == nil:
			h.logger.Warn("uncommitted work rolled back on close")
		case !errors.Is(err, sql.ErrTxDone):
			errs = append(errs, fmt.Errorf("rollback: %w", err))
		}
		h.tx = nil
	}
	if h.conn != nil {
		if err := h.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
		h.conn = nil
	}
	if err := h.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", h.driver, err))
	}

	h.logger.Debug("handle closed")
	return errors.Join(errs...)
}
