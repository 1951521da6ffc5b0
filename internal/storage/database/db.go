package database

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strconv"
	"strings"
	"time"

	xerrors "tasks-api/internal/errors"
	"tasks-api/internal/observability/metrics"
)

// DB executes single parameterized statements against the pool. It is safe
// for concurrent use; connections are acquired and released per statement.
type DB struct {
	db      *sql.DB
	dialect Dialect
	timeout time.Duration
}

// New wraps an already opened pool. A non-positive timeout selects the default.
func New(db *sql.DB, dialect Dialect, statementTimeout time.Duration) *DB {
	if statementTimeout <= 0 {
		statementTimeout = defaultStatementTimeout
	}
	return &DB{db: db, dialect: dialect, timeout: statementTimeout}
}

// Dialect returns the SQL flavour of the pool.
func (d *DB) Dialect() Dialect { return d.dialect }

// Exec runs a statement that returns no rows.
func (d *DB) Exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	res, err := d.db.ExecContext(ctx, d.Rebind(query), args...)
	if err != nil {
		err = d.failure(ctx, op, err)
	}
	metrics.ObserveStatement(op, err, time.Since(start))
	return res, err
}

// Query runs a statement and hands every row to scan. Rows are always closed.
func (d *DB) Query(ctx context.Context, op, query string, scan func(*sql.Rows) error, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := d.query(ctx, query, scan, args)
	if err != nil {
		err = d.failure(ctx, op, err)
	}
	metrics.ObserveStatement(op, err, time.Since(start))
	return err
}

func (d *DB) query(ctx context.Context, query string, scan func(*sql.Rows) error, args []any) error {
	rows, err := d.db.QueryContext(ctx, d.Rebind(query), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (d *DB) failure(ctx context.Context, op string, err error) error {
	if stdErrors.Is(err, context.DeadlineExceeded) || stdErrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "statement timed out after "+d.timeout.String(),
			xerrors.WithMetadata("op", op))
	}
	return xerrors.Wrap(xerrors.CodeStorageFailure, err, op+" failed", xerrors.WithMetadata("op", op))
}

// Rebind rewrites '?' placeholders into the dialect's bind syntax.
func (d *DB) Rebind(query string) string {
	if d.dialect != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Ping checks that a connection can be acquired.
func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.db.PingContext(ctx); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "数据库不可用")
	}
	return nil
}

// Close releases the pool.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}
