package task

import (
	"context"
	stdErrors "errors"
	"testing"
)

func TestMemoryStoreCRUD(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, _ := store.Create(ctx, "first")
	second, _ := store.Create(ctx, "second")
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("unexpected ids: %d %d", first.ID, second.ID)
	}

	updated, err := store.Update(ctx, Task{ID: second.ID, Title: "second", Completed: true})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Completed {
		t.Fatalf("expected completed task, got %+v", updated)
	}

	if err := store.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, first.ID); !stdErrors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.Update(ctx, Task{ID: first.ID, Title: "x"}); !stdErrors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	third, _ := store.Create(ctx, "third")
	if third.ID != 3 {
		t.Fatalf("deleted ids must not be reused, got %d", third.ID)
	}

	list, _ := store.List(ctx)
	if len(list) != 2 || list[0].ID != 2 || list[1].ID != 3 {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestMemoryStoreListEmpty(t *testing.T) {
	list, err := NewMemoryStore().List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list == nil {
		t.Fatalf("expected non-nil empty slice")
	}
}
