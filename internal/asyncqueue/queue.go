// Package asyncqueue implements the Async Queue: a single-worker FIFO of
// background tells, grounded on the teacher's orchestrator task queue
// (internal/orchestrator/queue) but simplified from a priority heap to a
// plain FIFO, since the spec defines no priority concept.
package asyncqueue

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/irisorch/iris/internal/ierrors"
	"github.com/irisorch/iris/internal/logger"
)

// TaskType discriminates the kind of background work a task performs. The
// queue only ever carries tells today, but the field is kept so a future
// task kind doesn't require a wire-format break.
type TaskType string

const TaskTypeTell TaskType = "tell"

// Task is one unit of background work: a tell that the caller did not wait
// for synchronously.
type Task struct {
	ID       string
	Type     TaskType
	FromTeam string
	ToTeam   string
	Content  string
	Timeout  int
	QueuedAt time.Time
}

// Executor performs one dequeued task. The queue does not interpret its
// outcome; the executor is responsible for logging.
type Executor func(ctx context.Context, task Task)

// Queue is the single-worker FIFO. Enqueue is non-blocking; a background
// goroutine drains tasks one at a time in arrival order.
type Queue struct {
	mu      sync.Mutex
	items   *list.List
	maxSize int

	executor Executor
	logger   *logger.Logger

	notify chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
}

// New creates a Queue with the given soft capacity (0 = unbounded) and
// starts its single worker goroutine immediately.
func New(maxSize int, executor Executor, log *logger.Logger) *Queue {
	q := &Queue{
		items:    list.New(),
		maxSize:  maxSize,
		executor: executor,
		logger:   log.WithFields(zap.String("component", "async-queue")),
		notify:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Enqueue appends a task, assigning it a fresh task id, and returns that id.
// It fails with a QueueFull error when the queue is at its soft bound.
func (q *Queue) Enqueue(task Task) (string, error) {
	q.mu.Lock()
	if q.maxSize > 0 && q.items.Len() >= q.maxSize {
		depth := q.items.Len()
		q.mu.Unlock()
		return "", ierrors.QueueFull(depth)
	}
	task.ID = uuid.New().String()
	task.QueuedAt = time.Now().UTC()
	q.items.PushBack(task)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return task.ID, nil
}

// Len returns the number of tasks currently waiting (excludes the one
// in flight, if any).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *Queue) dequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.items.Front()
	if front == nil {
		return Task{}, false
	}
	q.items.Remove(front)
	return front.Value.(Task), true
}

// run is the queue's single worker: it drains tasks strictly in FIFO order,
// one at a time, until Stop is called.
func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		default:
		}
		task, ok := q.dequeue()
		if !ok {
			select {
			case <-q.notify:
				continue
			case <-q.stop:
				return
			}
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					q.logger.Error("async task executor panicked", zap.Any("panic", r), zap.String("taskId", task.ID))
				}
			}()
			q.executor(context.Background(), task)
		}()
	}
}

// Stop signals the worker to exit once its current task (if any) finishes,
// then waits for it to return. Queued-but-undequeued tasks are discarded.
func (q *Queue) Stop() {
	close(q.stop)
	q.wg.Wait()
}
