package task

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore 以内存方式保存任务，用于本地调试与测试。ID 单调递增，删除后不会复用。
type MemoryStore struct {
	mu     sync.RWMutex
	tasks  map[int64]Task
	nextID int64
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[int64]Task)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, title string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := Task{ID: m.nextID, Title: title}
	m.tasks[t.ID] = t
	return &t, nil
}

// List 实现 Store 接口。
func (m *MemoryStore) List(_ context.Context) ([]Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tasks := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// Update 实现 Store 接口。
func (m *MemoryStore) Update(_ context.Context, t Task) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; !ok {
		return nil, ErrTaskNotFound
	}
	m.tasks[t.ID] = t
	return &t, nil
}

// Delete 实现 Store 接口。
func (m *MemoryStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
