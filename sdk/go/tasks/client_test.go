package tasks

import (
	"context"
	stdErrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tasks-api/internal/api"
	"tasks-api/internal/observability/metrics"
	"tasks-api/internal/task"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	server := api.NewServer(":0", task.NewService(task.NewMemoryStore()), api.WithMetrics(metrics.NewCollector()))
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestClientRoundTrip(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()

	created, err := client.Create(ctx, "Buy milk")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != 1 || created.Title != "Buy milk" || created.Completed {
		t.Fatalf("unexpected task: %+v", created)
	}

	updated, err := client.Update(ctx, created.ID, "Buy milk", true)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Completed {
		t.Fatalf("expected completed task, got %+v", updated)
	}

	list, err := client.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0] != updated {
		t.Fatalf("unexpected list: %+v", list)
	}

	if err := client.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, err = client.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %#v", list)
	}
}

func TestClientErrors(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()

	err := client.Delete(ctx, 42)
	var apiErr *APIError
	if !stdErrors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if !apiErr.NotFound() || apiErr.Code != "TASK_NOT_FOUND" || apiErr.Message == "" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}

	_, err = client.Create(ctx, "  ")
	if !stdErrors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestClientPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.List(context.Background())
	var apiErr *APIError
	if !stdErrors.As(err, &apiErr) || apiErr.Message != "gateway exploded" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	if _, err := NewClient("localhost", nil); err == nil {
		t.Fatal("expected error for url without scheme")
	}
}
