package task

import (
	"context"
	"database/sql"

	xerrors "tasks-api/internal/errors"
	"tasks-api/internal/storage/database"
)

const (
	insertTaskSQL          = `INSERT INTO tasks (title, completed) VALUES (?, ?)`
	insertTaskReturningSQL = `INSERT INTO tasks (title, completed) VALUES (?, ?) RETURNING id, title, completed`
	listTasksSQL           = `SELECT id, title, completed FROM tasks ORDER BY id ASC`
	updateTaskSQL          = `UPDATE tasks SET title = ?, completed = ? WHERE id = ?`
	updateTaskReturningSQL = `UPDATE tasks SET title = ?, completed = ? WHERE id = ? RETURNING id, title, completed`
	deleteTaskSQL          = `DELETE FROM tasks WHERE id = ?`
)

// SQLStore 使用关系型数据库中的 tasks 表保存任务。
type SQLStore struct {
	db *database.DB
}

// NewSQLStore 基于已打开的连接池构造 SQLStore。
func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db}
}

// EnsureSchema 在表不存在时按当前方言建表。
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	var schema string
	switch s.db.Dialect() {
	case database.DialectMySQL:
		schema = `CREATE TABLE IF NOT EXISTS tasks (
        id BIGINT AUTO_INCREMENT PRIMARY KEY,
        title TEXT NOT NULL,
        completed BOOLEAN NOT NULL DEFAULT FALSE
)`
	case database.DialectPostgres:
		schema = `CREATE TABLE IF NOT EXISTS tasks (
        id BIGSERIAL PRIMARY KEY,
        title TEXT NOT NULL,
        completed BOOLEAN NOT NULL DEFAULT FALSE
)`
	default:
		// AUTOINCREMENT keeps SQLite from reusing the ids of deleted rows.
		schema = `CREATE TABLE IF NOT EXISTS tasks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        title TEXT NOT NULL,
        completed BOOLEAN NOT NULL DEFAULT 0
)`
	}
	if _, err := s.db.Exec(ctx, "task.schema", schema); err != nil {
		return xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化 tasks 表失败")
	}
	return nil
}

// Create 实现 Store 接口。
func (s *SQLStore) Create(ctx context.Context, title string) (*Task, error) {
	if s.db.Dialect().SupportsReturning() {
		created, err := s.queryOne(ctx, "task.create", insertTaskReturningSQL, title, false)
		if err != nil {
			return nil, err
		}
		if created == nil {
			return nil, xerrors.New(xerrors.CodeStorageFailure, "插入任务后未返回记录")
		}
		return created, nil
	}

	res, err := s.db.Exec(ctx, "task.create", insertTaskSQL, title, false)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取新任务 ID 失败")
	}
	return &Task{ID: id, Title: title, Completed: false}, nil
}

// List 实现 Store 接口。
func (s *SQLStore) List(ctx context.Context) ([]Task, error) {
	tasks := make([]Task, 0)
	err := s.db.Query(ctx, "task.list", listTasksSQL, func(rows *sql.Rows) error {
		var t Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Completed); err != nil {
			return err
		}
		tasks = append(tasks, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// Update 实现 Store 接口。
func (s *SQLStore) Update(ctx context.Context, t Task) (*Task, error) {
	if s.db.Dialect().SupportsReturning() {
		updated, err := s.queryOne(ctx, "task.update", updateTaskReturningSQL, t.Title, t.Completed, t.ID)
		if err != nil {
			return nil, err
		}
		if updated == nil {
			return nil, ErrTaskNotFound
		}
		return updated, nil
	}

	res, err := s.db.Exec(ctx, "task.update", updateTaskSQL, t.Title, t.Completed, t.ID)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := t
	return &updated, nil
}

// Delete 实现 Store 接口。
func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.Exec(ctx, "task.delete", deleteTaskSQL, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Ping 检查连接池是否可用。
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close 关闭底层数据库连接池。
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) queryOne(ctx context.Context, op, query string, args ...any) (*Task, error) {
	var found *Task
	err := s.db.Query(ctx, op, query, func(rows *sql.Rows) error {
		var t Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Completed); err != nil {
			return err
		}
		found = &t
		return nil
	}, args...)
	if err != nil {
		return nil, err
	}
	return found, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
