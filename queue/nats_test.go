package queue

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/steerkit/steerkit/errors"
	"github.com/steerkit/steerkit/task"
)

// getNATSURL returns the NATS URL for testing, or skips the test.
func getNATSURL(t *testing.T) string {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = "nats://localhost:4222"
	}

	// Skip if short mode or NATS not available
	if testing.Short() {
		t.Skip("skipping NATS test in short mode")
	}

	cfg := DefaultNATSConfig()
	cfg.URL = url
	cfg.ConnectTimeout = 2 * time.Second
	cfg.MaxReconnects = 0

	client, err := NewNATSClient(cfg)
	if err != nil {
		t.Skipf("skipping: NATS not available at %s: %v", url, err)
	}
	client.Close()

	return url
}

// natsPair builds a connected client/server pair on a test-scoped prefix.
// The client comes up first so its result subscriptions exist before any
// result is published.
func natsPair(t *testing.T, topics ...string) (*NATSClient, *NATSServer) {
	t.Helper()
	url := getNATSURL(t)

	cfg := DefaultNATSConfig()
	cfg.URL = url
	cfg.Prefix = fmt.Sprintf("steerkit-test-%d", time.Now().UnixNano())
	if len(topics) > 0 {
		cfg.Topics = topics
	}

	client, err := NewNATSClient(cfg)
	if err != nil {
		t.Fatalf("NewNATSClient error: %v", err)
	}
	server, err := NewNATSServer(cfg)
	if err != nil {
		client.Close()
		t.Fatalf("NewNATSServer error: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

// --- Integration Tests ---

func TestNATSQueues_RoundTrip(t *testing.T) {
	client, server := natsPair(t)
	ctx := context.Background()

	taskID, err := client.SendInputs(ctx, "simulate", []any{"ethanol"},
		WithKwargs(map[string]any{"steps": 100}))
	if err != nil {
		t.Fatalf("SendInputs error: %v", err)
	}

	got, err := server.GetTask(ctx, 2*time.Second)
	if err != nil {
		t.Fatalf("GetTask error: %v", err)
	}
	if got.TaskID != taskID {
		t.Errorf("TaskID = %q, want %q", got.TaskID, taskID)
	}

	got.SetResult("done", time.Millisecond)
	if err := server.SendResult(ctx, got); err != nil {
		t.Fatalf("SendResult error: %v", err)
	}

	res, err := client.GetResult(ctx, task.DefaultTopic, 2*time.Second)
	if err != nil {
		t.Fatalf("GetResult error: %v", err)
	}
	if res.Value != "done" {
		t.Errorf("Value = %v, want done", res.Value)
	}
}

func TestNATSQueues_KillSignal(t *testing.T) {
	client, server := natsPair(t)
	ctx := context.Background()

	if err := client.SendKillSignal(ctx); err != nil {
		t.Fatalf("SendKillSignal error: %v", err)
	}

	_, err := server.GetTask(ctx, 2*time.Second)
	if !errors.Is(err, errors.CodeKillSignal) {
		t.Fatalf("GetTask = %v, want kill signal", err)
	}
}

func TestNATSQueues_Timeout(t *testing.T) {
	client, server := natsPair(t)
	ctx := context.Background()

	if _, err := server.GetTask(ctx, 200*time.Millisecond); !errors.Is(err, errors.CodeTimeout) {
		t.Errorf("GetTask = %v, want timeout", err)
	}
	if _, err := client.GetResult(ctx, task.DefaultTopic, 200*time.Millisecond); !errors.Is(err, errors.CodeTimeout) {
		t.Errorf("GetResult = %v, want timeout", err)
	}
}

func TestNATSQueues_QueueGroup(t *testing.T) {
	url := getNATSURL(t)

	cfg := DefaultNATSConfig()
	cfg.URL = url
	cfg.Prefix = fmt.Sprintf("steerkit-test-%d", time.Now().UnixNano())

	client, err := NewNATSClient(cfg)
	if err != nil {
		t.Fatalf("NewNATSClient error: %v", err)
	}
	defer client.Close()

	// Two servers in the same queue group split the stream: each task goes
	// to exactly one of them.
	serverA, err := NewNATSServer(cfg)
	if err != nil {
		t.Fatalf("NewNATSServer error: %v", err)
	}
	defer serverA.Close()
	serverB, err := NewNATSServer(cfg)
	if err != nil {
		t.Fatalf("NewNATSServer error: %v", err)
	}
	defer serverB.Close()

	ctx := context.Background()
	const numTasks = 10
	for i := 0; i < numTasks; i++ {
		if _, err := client.SendInputs(ctx, "simulate", []any{i}); err != nil {
			t.Fatalf("SendInputs error: %v", err)
		}
	}

	seen := make(map[string]bool, numTasks)
	deadline := time.Now().Add(5 * time.Second)
	for len(seen) < numTasks && time.Now().Before(deadline) {
		for _, server := range []*NATSServer{serverA, serverB} {
			got, err := server.GetTask(ctx, 100*time.Millisecond)
			if err != nil {
				continue
			}
			if seen[got.TaskID] {
				t.Errorf("task %s delivered to both servers", got.TaskID)
			}
			seen[got.TaskID] = true
		}
	}
	if len(seen) != numTasks {
		t.Errorf("servers received %d tasks, want %d", len(seen), numTasks)
	}
}

func TestNATSQueues_InvalidTopic(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.Topics = []string{"bad.topic"}

	// Rejected before any connection is attempted.
	if _, err := NewNATSClient(cfg); !errors.Is(err, errors.CodeConfig) {
		t.Fatalf("NewNATSClient = %v, want config error", err)
	}
}
