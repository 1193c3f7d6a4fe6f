package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/agentmatch/internal/adapters/mq/queue"
	"github.com/okian/agentmatch/internal/adapters/mq/worker"
	logging "github.com/okian/agentmatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type recordingRunner struct {
	mu    sync.Mutex
	seen  []string
	fail  map[string]error
	delay time.Duration
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{fail: make(map[string]error)}
}

func (r *recordingRunner) Execute(ctx context.Context, jobID string) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, jobID)
	return r.fail[jobID]
}

func (r *recordingRunner) executed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		runner := newRecordingRunner()
		w := worker.NewInMemoryWorker(q, runner, worker.WithName("test-worker"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When tasks are enqueued", func() {
			q.Enqueue(ctx, queue.Task{JobID: "job-1", EnqueuedAt: time.Now()})
			q.Enqueue(ctx, queue.Task{JobID: "job-2", EnqueuedAt: time.Now()})

			convey.Convey("Then the runner executes them in order", func() {
				ok := waitFor(func() bool { return len(runner.executed()) == 2 })
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(runner.executed(), convey.ShouldResemble, []string{"job-1", "job-2"})
			})
		})

		convey.Convey("When the runner fails a job", func() {
			runner.fail["job-bad"] = errors.New("boom")
			q.Enqueue(ctx, queue.Task{JobID: "job-bad"})
			q.Enqueue(ctx, queue.Task{JobID: "job-good"})

			convey.Convey("Then the worker keeps going", func() {
				ok := waitFor(func() bool { return len(runner.executed()) == 2 })
				convey.So(ok, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the worker is shut down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()
			err := w.Shutdown(sctx)

			convey.Convey("Then Run returns", func() {
				convey.So(err, convey.ShouldBeNil)
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker still running", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init()

		convey.Convey("When created with a non-positive count", func() {
			pool := worker.NewPool(0, queue.NewInMemoryQueue(), newRecordingRunner())

			convey.Convey("Then it falls back to a CPU based default", func() {
				convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
			})
		})

		convey.Convey("When several workers share a queue", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(64))
			runner := newRecordingRunner()
			pool := worker.NewPool(4, q, runner)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			for i := 0; i < 20; i++ {
				q.Enqueue(ctx, queue.Task{JobID: fmt.Sprintf("job-%d", i)})
			}

			convey.Convey("Then every job runs exactly once", func() {
				ok := waitFor(func() bool { return len(runner.executed()) == 20 })
				convey.So(ok, convey.ShouldBeTrue)

				seen := make(map[string]int)
				for _, id := range runner.executed() {
					seen[id]++
				}
				convey.So(len(seen), convey.ShouldEqual, 20)
				for _, n := range seen {
					convey.So(n, convey.ShouldEqual, 1)
				}
			})
		})

		convey.Convey("When shutting down with queued work", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(16))
			runner := newRecordingRunner()
			runner.delay = 5 * time.Millisecond
			pool := worker.NewPool(2, q, runner)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			for i := 0; i < 8; i++ {
				q.Enqueue(ctx, queue.Task{JobID: fmt.Sprintf("job-%d", i)})
			}

			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			err := pool.Shutdown(sctx)

			convey.Convey("Then the queue is drained before workers exit", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				convey.So(len(runner.executed()), convey.ShouldEqual, 8)
				convey.So(pool.Active(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When stopped", func() {
			q := queue.NewInMemoryQueue()
			pool := worker.NewPool(2, q, newRecordingRunner())
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)
			pool.Stop()

			convey.Convey("Then a second stop is harmless", func() {
				convey.So(func() { pool.Stop() }, convey.ShouldNotPanic)
			})
		})
	})
}
