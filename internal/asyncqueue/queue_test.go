package asyncqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irisorch/iris/internal/ierrors"
	"github.com/irisorch/iris/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func TestEnqueueRunsTasksInFIFOOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	q := New(0, func(_ context.Context, task Task) {
		mu.Lock()
		order = append(order, task.Content)
		n := len(order)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
	}, testLogger(t))
	defer q.Stop()

	for _, content := range []string{"first", "second", "third"} {
		_, err := q.Enqueue(Task{Type: TaskTypeTell, Content: content})
		require.NoError(t, err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not complete in time")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestEnqueueAssignsTaskID(t *testing.T) {
	q := New(0, func(context.Context, Task) {}, testLogger(t))
	defer q.Stop()

	id, err := q.Enqueue(Task{Type: TaskTypeTell, Content: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestEnqueueReturnsQueueFullAtCapacity(t *testing.T) {
	block := make(chan struct{})
	q := New(1, func(ctx context.Context, task Task) {
		<-block
	}, testLogger(t))
	defer func() {
		close(block)
		q.Stop()
	}()

	_, err := q.Enqueue(Task{Type: TaskTypeTell, Content: "in-flight"})
	require.NoError(t, err)

	// Give the worker a moment to dequeue the in-flight task so the next
	// enqueue lands in the (now full) waiting list.
	time.Sleep(50 * time.Millisecond)

	_, err = q.Enqueue(Task{Type: TaskTypeTell, Content: "queued"})
	require.NoError(t, err)

	_, err = q.Enqueue(Task{Type: TaskTypeTell, Content: "overflow"})
	require.Error(t, err)
	assert.True(t, ierrors.Is(err, ierrors.KindQueueFull))
}

func TestStopWaitsForInFlightTask(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan struct{})
	q := New(0, func(context.Context, Task) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		close(finished)
	}, testLogger(t))

	_, err := q.Enqueue(Task{Type: TaskTypeTell, Content: "slow"})
	require.NoError(t, err)

	<-started
	q.Stop()

	select {
	case <-finished:
	default:
		t.Fatal("Stop returned before the in-flight task finished")
	}
}
