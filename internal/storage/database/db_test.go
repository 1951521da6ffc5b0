package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stdErrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	xerrors "tasks-api/internal/errors"
	"tasks-api/internal/storage/database/dbtest"
)

func TestRebindPostgres(t *testing.T) {
	db := New(nil, DialectPostgres, 0)
	got := db.Rebind(`UPDATE tasks SET title = ?, completed = ? WHERE id = ?`)
	if got != `UPDATE tasks SET title = $1, completed = $2 WHERE id = $3` {
		t.Fatalf("unexpected rebind: %s", got)
	}

	mysql := New(nil, DialectMySQL, 0)
	if got := mysql.Rebind(`DELETE FROM tasks WHERE id = ?`); got != `DELETE FROM tasks WHERE id = ?` {
		t.Fatalf("mysql queries must be left untouched: %s", got)
	}
}

func TestQueryScansEveryRow(t *testing.T) {
	pool, drv := dbtest.Open(t,
		dbtest.Query(`SELECT id FROM tasks WHERE id > $1`, dbtest.Rows{
			Columns: []string{"id"},
			Values:  [][]driver.Value{{int64(1)}, {int64(2)}},
		}).WithArgs(0),
	)
	db := New(pool, DialectPostgres, time.Second)

	var ids []int64
	err := db.Query(context.Background(), "test.list", `SELECT id FROM tasks WHERE id > ?`, func(rows *sql.Rows) error {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	}, 0)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("unexpected ids: %v", ids)
	}
	drv.AssertConsumed(t)
}

func TestExecWrapsDriverErrors(t *testing.T) {
	pool, drv := dbtest.Open(t,
		dbtest.Exec(`DELETE FROM tasks WHERE id = ?`, dbtest.Result{}).Fails(stdErrors.New("connection reset")),
	)
	db := New(pool, DialectMySQL, time.Second)

	_, err := db.Exec(context.Background(), "task.delete", `DELETE FROM tasks WHERE id = ?`, 1)
	if err == nil {
		t.Fatalf("expected error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeStorageFailure {
		t.Fatalf("expected storage failure, got %v", err)
	}
	e, _ := xerrors.From(err)
	if !strings.Contains(e.Detail(), "connection reset") || e.Metadata()["op"] != "task.delete" {
		t.Fatalf("unexpected error detail: %q %v", e.Detail(), e.Metadata())
	}
	drv.AssertConsumed(t)
}

func TestStatementTimeoutSurfacesAsStorageFailure(t *testing.T) {
	pool, _ := dbtest.Open(t,
		dbtest.Query(`SELECT id FROM tasks`, dbtest.Rows{}).Blocks(),
	)
	db := New(pool, DialectSQLite, 20*time.Millisecond)

	err := db.Query(context.Background(), "task.list", `SELECT id FROM tasks`, func(*sql.Rows) error { return nil })
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeStorageFailure {
		t.Fatalf("expected storage failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout message, got %v", err)
	}
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{
		"mysql":      DialectMySQL,
		"PostgreSQL": DialectPostgres,
		"pgx":        DialectPostgres,
		"sqlite3":    DialectSQLite,
	} {
		got, err := ParseDialect(in)
		if err != nil || got != want {
			t.Fatalf("ParseDialect(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDialect("oracle"); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for unknown driver, got %v", err)
	}
}

func TestPrepareDSN(t *testing.T) {
	mysqlDSN, err := prepareDSN(DialectMySQL, "user:pass@tcp(127.0.0.1:3306)/tasks")
	if err != nil {
		t.Fatalf("prepare mysql dsn: %v", err)
	}
	if !strings.Contains(mysqlDSN, "clientFoundRows=true") || !strings.Contains(mysqlDSN, "parseTime=true") {
		t.Fatalf("mysql dsn missing forced params: %s", mysqlDSN)
	}

	dir := t.TempDir()
	sqliteDSN, err := prepareDSN(DialectSQLite, filepath.Join(dir, "nested", "tasks.db")+"?_pragma=busy_timeout(100)")
	if err != nil {
		t.Fatalf("prepare sqlite dsn: %v", err)
	}
	if strings.Count(sqliteDSN, "busy_timeout") != 1 || !strings.Contains(sqliteDSN, "journal_mode") {
		t.Fatalf("unexpected sqlite dsn: %s", sqliteDSN)
	}
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "tasks.db")})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	if db.Dialect() != DialectSQLite || !db.Dialect().SupportsReturning() {
		t.Fatalf("unexpected dialect: %s", db.Dialect())
	}
	if err := db.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := db.Exec(ctx, "test.create", `CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(ctx, "test.insert", `INSERT INTO t (v) VALUES (?)`, "x"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var v string
	if err := db.Query(ctx, "test.select", `SELECT v FROM t`, func(rows *sql.Rows) error {
		return rows.Scan(&v)
	}); err != nil || v != "x" {
		t.Fatalf("select: %q %v", v, err)
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "mysql"}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestOpenSQLiteRejectsNetworkURL(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "sqlite", DSN: "postgres://u:p@localhost:5432/tasks"})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, statErr := os.Stat("postgres:"); !stdErrors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("no local directory may be created for a network url: %v", statErr)
	}

	if _, err := prepareDSN(DialectSQLite, "file:"+filepath.Join(t.TempDir(), "tasks.db")); err != nil {
		t.Fatalf("file: uri must stay accepted: %v", err)
	}
}

func TestPrepareDSNConvertsMySQLURL(t *testing.T) {
	dsn, err := prepareDSN(DialectMySQL, "mysql://tasks:secret@db/tasks?charset=utf8mb4")
	if err != nil {
		t.Fatalf("prepare mysql url: %v", err)
	}
	for _, want := range []string{"tasks:secret@tcp(db:3306)/tasks", "clientFoundRows=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("expected %q in %s", want, dsn)
		}
	}
}
