package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker is an in-process Broker used in tests and single-node
// development runs. Delayed tasks are released by their ready time on
// dequeue.
type MemoryBroker struct {
	mu      sync.Mutex
	ready   []Task
	delayed []delayedTask
	wake    chan struct{}
}

type delayedTask struct {
	task    Task
	readyAt time.Time
}

// NewMemoryBroker builds an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{wake: make(chan struct{}, 1)}
}

// Enqueue appends a task to the ready list.
func (b *MemoryBroker) Enqueue(ctx context.Context, task Task) error {
	b.mu.Lock()
	b.ready = append(b.ready, task)
	b.mu.Unlock()
	b.signal()
	return nil
}

// EnqueueAfter parks a task until delay elapses.
func (b *MemoryBroker) EnqueueAfter(ctx context.Context, task Task, delay time.Duration) error {
	if delay <= 0 {
		return b.Enqueue(ctx, task)
	}
	b.mu.Lock()
	b.delayed = append(b.delayed, delayedTask{task: task, readyAt: time.Now().Add(delay)})
	b.mu.Unlock()
	return nil
}

// Dequeue returns the next ready task, waiting up to wait.
func (b *MemoryBroker) Dequeue(ctx context.Context, wait time.Duration) (Task, bool, error) {
	deadline := time.Now().Add(wait)
	for {
		if task, ok := b.pop(); ok {
			return task, true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Task{}, false, nil
		}
		timer := time.NewTimer(minDuration(remaining, 10*time.Millisecond))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Task{}, false, ctx.Err()
		case <-b.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Depth reports how many tasks are ready. Test helper.
func (b *MemoryBroker) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ready)
}

func (b *MemoryBroker) pop() (Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	kept := b.delayed[:0]
	for _, d := range b.delayed {
		if !d.readyAt.After(now) {
			b.ready = append(b.ready, d.task)
		} else {
			kept = append(kept, d)
		}
	}
	b.delayed = kept

	if len(b.ready) == 0 {
		return Task{}, false
	}
	task := b.ready[0]
	b.ready = b.ready[1:]
	return task, true
}

func (b *MemoryBroker) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
