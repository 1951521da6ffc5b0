// Package dbtest provides a scripted database/sql driver for asserting the
// exact statements a store sends, in order.
package dbtest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type opType int

const (
	opExec opType = iota
	opQuery
)

func (o opType) String() string {
	if o == opQuery {
		return "query"
	}
	return "exec"
}

// Result is returned from a scripted Exec.
type Result struct {
	InsertID int64
	Affected int64
}

func (r Result) LastInsertId() (int64, error) { return r.InsertID, nil }
func (r Result) RowsAffected() (int64, error) { return r.Affected, nil }

// Rows is returned from a scripted Query.
type Rows struct {
	Columns []string
	Values  [][]driver.Value
}

// Op is one expected driver call.
type Op struct {
	typ    opType
	query  string
	args   []driver.Value
	result Result
	rows   Rows
	err    error
	block  bool
}

// Exec expects an ExecContext with the given SQL (whitespace-insensitive).
func Exec(query string, result Result) Op {
	return Op{typ: opExec, query: query, result: result}
}

// Query expects a QueryContext with the given SQL.
func Query(query string, rows Rows) Op {
	return Op{typ: opQuery, query: query, rows: rows}
}

// WithArgs also asserts the bound arguments.
func (o Op) WithArgs(args ...driver.Value) Op {
	o.args = args
	return o
}

// Fails makes the call return err.
func (o Op) Fails(err error) Op {
	o.err = err
	return o
}

// Blocks makes the call wait until its context is done.
func (o Op) Blocks() Op {
	o.block = true
	return o
}

// Driver replays the scripted operations.
type Driver struct {
	ops []Op
	idx int32
}

var seq atomic.Int32

// Open registers a fresh driver instance and returns a pool bound to it.
func Open(t *testing.T, ops ...Op) (*sql.DB, *Driver) {
	t.Helper()

	drv := &Driver{ops: ops}
	name := fmt.Sprintf("dbtest-%d", seq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { db.Close() })
	return db, drv
}

// AssertConsumed fails the test when scripted operations were not executed.
func (d *Driver) AssertConsumed(t *testing.T) {
	t.Helper()
	mu.Lock()
	got := d.idx
	mu.Unlock()
	if int(got) != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", got, len(d.ops))
	}
}

func (d *Driver) Open(string) (driver.Conn, error) {
	return &conn{driver: d}, nil
}

var mu sync.Mutex

func (d *Driver) next(expected opType, query string, args []driver.NamedValue) (*Op, error) {
	mu.Lock()
	defer mu.Unlock()

	idx := int(d.idx)
	if idx >= len(d.ops) {
		return nil, fmt.Errorf("unexpected %s: %s", expected, query)
	}
	op := &d.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected %s, got %s", op.typ, expected)
	}
	d.idx++
	if want, got := Normalize(op.query), Normalize(query); want != got {
		return nil, fmt.Errorf("unexpected query. want %q got %q", want, got)
	}
	if op.args != nil {
		if len(op.args) != len(args) {
			return nil, fmt.Errorf("unexpected arg count for %q: want %d got %d", query, len(op.args), len(args))
		}
		for i, arg := range args {
			if fmt.Sprint(op.args[i]) != fmt.Sprint(arg.Value) {
				return nil, fmt.Errorf("arg %d mismatch: want %v got %v", i+1, op.args[i], arg.Value)
			}
		}
	}
	return op, nil
}

type conn struct {
	driver *Driver
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return nil, fmt.Errorf("transactions not supported")
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.driver.next(opExec, query, args)
	if err != nil {
		return nil, err
	}
	if op.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	op, err := c.driver.next(opQuery, query, args)
	if err != nil {
		return nil, err
	}
	if op.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if op.err != nil {
		return nil, op.err
	}
	return &rows{columns: op.rows.Columns, values: op.rows.Values}, nil
}

func (c *conn) Ping(context.Context) error { return nil }

type rows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *rows) Columns() []string { return r.columns }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

// Normalize collapses whitespace so multi-line SQL literals compare equal.
func Normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
