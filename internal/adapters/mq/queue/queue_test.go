package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Cap(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}

	if !q.Enqueue(ctx, Task{JobID: "job1", EnqueuedAt: time.Now()}) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	task := <-q.Dequeue(dctx)
	if task.JobID != "job1" {
		t.Errorf("expected job1, got %v", task.JobID)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, Task{JobID: "job1"}) || !q.Enqueue(ctx, Task{JobID: "job2"}) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, Task{JobID: "job3"}) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, Task{JobID: "job1"}) {
		t.Error("expected enqueue to fail with cancelled context")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const producers, perProducer = 10, 100

	var seen sync.Map
	var consumed sync.WaitGroup
	consumed.Add(producers * perProducer)
	for i := 0; i < producers; i++ {
		go func() {
			for task := range q.Dequeue(ctx) {
				if _, dup := seen.LoadOrStore(task.JobID, true); dup {
					t.Errorf("task %s delivered twice", task.JobID)
				}
				consumed.Done()
			}
		}()
	}

	var produced sync.WaitGroup
	for i := 0; i < producers; i++ {
		produced.Add(1)
		go func(id int) {
			defer produced.Done()
			for j := 0; j < perProducer; j++ {
				task := Task{JobID: fmt.Sprintf("job%d_%d", id, j)}
				for !q.Enqueue(ctx, task) {
					time.Sleep(time.Millisecond)
				}
			}
		}(i)
	}
	produced.Wait()

	done := make(chan struct{})
	go func() {
		consumed.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumers did not drain the queue")
	}

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected final length 0, got %d", l)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !q.Enqueue(ctx, Task{JobID: fmt.Sprintf("job%d", i)}) {
			t.Fatal("expected enqueue to succeed")
		}
	}

	if err := q.Close(); err != nil {
		t.Fatalf("unexpected error closing queue: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}
	if err := q.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
	if q.Enqueue(ctx, Task{JobID: "late"}) {
		t.Error("expected enqueue to fail after close")
	}

	// queued tasks are still delivered after close
	var drained []string
	for task := range q.Dequeue(ctx) {
		drained = append(drained, task.JobID)
	}
	if len(drained) != 3 {
		t.Errorf("expected 3 drained tasks, got %d", len(drained))
	}
}
