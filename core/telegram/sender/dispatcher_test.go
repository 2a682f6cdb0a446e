package sender

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestEnqueueWaitBlocksUntilQueueDrains(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	defer d.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var order []string
	record := func(name string) func() error {
		return func() error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	blocker := func() error {
		close(started)
		<-release
		return record("blocker")()
	}
	if err := d.Enqueue(context.Background(), "test", "sendMessage", blocker); err != nil {
		t.Fatalf("enqueue blocker: %v", err)
	}
	<-started

	if err := d.Enqueue(context.Background(), "test", "sendMessage", record("a")); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	if err := d.Enqueue(context.Background(), "test", "sendMessage", record("b")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	waited := make(chan error, 1)
	go func() {
		waited <- d.EnqueueWait(context.Background(), "test", "sendMessage", record("b"))
	}()

	close(release)
	if err := <-waited; err != nil {
		t.Fatalf("enqueue wait: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("jobs did not finish in time")
		}
		time.Sleep(2 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "blocker" || order[1] != "a" || order[2] != "b" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestEnqueueWaitHonorsContext(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	defer d.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	if err := d.Enqueue(context.Background(), "test", "sendMessage", func() error {
		close(started)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("enqueue blocker: %v", err)
	}
	<-started
	if err := d.Enqueue(context.Background(), "test", "sendMessage", func() error { return nil }); err != nil {
		t.Fatalf("enqueue filler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.EnqueueWait(ctx, "test", "sendMessage", func() error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
