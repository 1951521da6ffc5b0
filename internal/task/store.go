package task

import "context"

// Store 抽象了任务的持久化接口，每个方法对应一条独立的原子语句。
type Store interface {
	// Create 插入 completed=false 的新任务并返回存储层分配的 ID。
	Create(ctx context.Context, title string) (*Task, error)
	// List 按 ID 升序返回全部任务，没有任务时返回空切片。
	List(ctx context.Context) ([]Task, error)
	// Update 覆盖 title 与 completed，任务不存在时返回 ErrTaskNotFound。
	Update(ctx context.Context, t Task) (*Task, error)
	// Delete 永久删除任务，任务不存在时返回 ErrTaskNotFound。
	Delete(ctx context.Context, id int64) error
	Close() error
}
