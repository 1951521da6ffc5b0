package main

import (
	"context"
	"fmt"
	"net/http/httptest"
	"time"

	"tasks-api/internal/api"
	"tasks-api/internal/task"
	"tasks-api/sdk/go/tasks"
)

func main() {
	server := api.NewServer(":0", task.NewService(task.NewMemoryStore()))
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	client, err := tasks.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := client.Create(ctx, "Buy milk")
	if err != nil {
		panic(err)
	}
	fmt.Printf("created task %d (%s)\n", created.ID, created.Title)

	updated, err := client.Update(ctx, created.ID, created.Title, true)
	if err != nil {
		panic(err)
	}
	fmt.Printf("task %d completed=%v\n", updated.ID, updated.Completed)

	if err := client.Delete(ctx, created.ID); err != nil {
		panic(err)
	}
	list, err := client.List(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("remaining tasks: %d\n", len(list))
}
