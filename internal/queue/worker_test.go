package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestRetryPolicyBackoff(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 5,
		BackoffBase: 30 * time.Second,
		BackoffCap:  120 * time.Second,
	}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 120 * time.Second},
	}
	for _, tc := range cases {
		if got := policy.Backoff(tc.attempt); got != tc.want {
			t.Errorf("Backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRetryPolicyZeroBase(t *testing.T) {
	var policy RetryPolicy
	if got := policy.Backoff(3); got != 0 {
		t.Fatalf("Backoff = %v, want 0 for zero policy", got)
	}
}

func TestWorkerProcessesTask(t *testing.T) {
	broker := NewMemoryBroker()
	worker := NewWorker(broker, 2, zap.NewNop())

	done := make(chan Task, 1)
	worker.Register(TaskTicketCreate, func(ctx context.Context, task Task) error {
		done <- task
		return nil
	}, RetryPolicy{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	ticketID := uuid.New()
	if err := broker.Enqueue(ctx, NewTask(TaskTicketCreate, ticketID)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case task := <-done:
		if task.TicketID != ticketID {
			t.Fatalf("ticket id = %s, want %s", task.TicketID, ticketID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task was never processed")
	}
}

func TestWorkerRetriesUntilMaxAttempts(t *testing.T) {
	broker := NewMemoryBroker()
	worker := NewWorker(broker, 1, zap.NewNop())

	var mu sync.Mutex
	var attempts []int
	allDone := make(chan struct{})
	worker.Register(TaskTicketCreate, func(ctx context.Context, task Task) error {
		mu.Lock()
		attempts = append(attempts, task.Attempt)
		n := len(attempts)
		mu.Unlock()
		if n == 3 {
			close(allDone)
		}
		return errors.New("remote down")
	}, RetryPolicy{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffCap: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	if err := broker.Enqueue(ctx, NewTask(TaskTicketCreate, uuid.New())); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case <-allDone:
	case <-time.After(2 * time.Second):
		mu.Lock()
		defer mu.Unlock()
		t.Fatalf("only %d attempts ran, want 3", len(attempts))
	}

	// No fourth delivery after exhaustion.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 3 {
		t.Fatalf("ran %d attempts, want exactly 3", len(attempts))
	}
	for i, attempt := range attempts {
		if attempt != i+1 {
			t.Fatalf("attempt %d carried number %d", i, attempt)
		}
	}
}

func TestWorkerSucceedingRetryStops(t *testing.T) {
	broker := NewMemoryBroker()
	worker := NewWorker(broker, 1, zap.NewNop())

	var mu sync.Mutex
	calls := 0
	recovered := make(chan struct{})
	worker.Register(TaskTicketCreate, func(ctx context.Context, task Task) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		close(recovered)
		return nil
	}, RetryPolicy{MaxAttempts: 5, BackoffBase: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	_ = broker.Enqueue(ctx, NewTask(TaskTicketCreate, uuid.New()))

	select {
	case <-recovered:
	case <-time.After(2 * time.Second):
		t.Fatal("task never recovered")
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("handler ran %d times, want 2", calls)
	}
}

func TestMemoryBrokerDelayedRelease(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()

	if err := broker.EnqueueAfter(ctx, NewTask(TaskTicketCreate, uuid.New()), 20*time.Millisecond); err != nil {
		t.Fatalf("EnqueueAfter: %v", err)
	}

	if _, ok, _ := broker.Dequeue(ctx, time.Millisecond); ok {
		t.Fatal("delayed task released early")
	}

	task, ok, err := broker.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if !ok {
		t.Fatal("delayed task never released")
	}
	if task.Type != TaskTicketCreate {
		t.Fatalf("task type = %q", task.Type)
	}
}

func TestWorkerIgnoresUnknownTaskType(t *testing.T) {
	broker := NewMemoryBroker()
	worker := NewWorker(broker, 1, zap.NewNop())

	handled := make(chan struct{}, 1)
	worker.Register(TaskRetrySweep, func(ctx context.Context, task Task) error {
		handled <- struct{}{}
		return nil
	}, RetryPolicy{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	_ = broker.Enqueue(ctx, NewTask(TaskType("bogus"), uuid.Nil))
	_ = broker.Enqueue(ctx, NewTask(TaskRetrySweep, uuid.Nil))

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("worker stalled on unknown task type")
	}
}
