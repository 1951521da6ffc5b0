package task

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestMemoryPublisherRejectsWhenFullOrClosed(t *testing.T) {
	pub := NewMemoryPublisher(1)
	ctx := context.Background()

	if err := pub.Publish(ctx, Event{Type: EventCreated}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := pub.Publish(ctx, Event{Type: EventCreated}); err == nil {
		t.Fatalf("expected full buffer to be reported")
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := pub.Publish(ctx, Event{Type: EventDeleted}); err == nil {
		t.Fatalf("expected closed publisher to fail")
	}
}

func TestEventEncode(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	payload, err := Event{
		Type:       EventUpdated,
		Task:       Task{ID: 3, Title: "Buy milk", Completed: true},
		RequestID:  "req-9",
		OccurredAt: at,
	}.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["type"] != "task.updated" || decoded["request_id"] != "req-9" {
		t.Fatalf("unexpected payload: %s", payload)
	}
	task, _ := decoded["task"].(map[string]any)
	if task["id"] != float64(3) || task["title"] != "Buy milk" || task["completed"] != true {
		t.Fatalf("unexpected task payload: %s", payload)
	}
}

func TestRedisPublisherRequiresAddress(t *testing.T) {
	if _, err := NewRedisPublisher(context.Background(), RedisPublisherConfig{}); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestRabbitMQPublisherRequiresURL(t *testing.T) {
	if _, err := NewRabbitMQPublisher(RabbitMQConfig{}); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
