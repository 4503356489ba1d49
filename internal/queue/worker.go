package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler processes one task. A returned error triggers the task type's
// retry policy.
type Handler func(ctx context.Context, task Task) error

// RetryPolicy governs what happens after a handler failure. A zero policy
// means no retry: periodic tasks simply run again on their next schedule.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Backoff returns the delay before the given (1-based) attempt number.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BackoffBase <= 0 {
		return 0
	}
	delay := p.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.BackoffCap > 0 && delay >= p.BackoffCap {
			return p.BackoffCap
		}
	}
	if p.BackoffCap > 0 && delay > p.BackoffCap {
		delay = p.BackoffCap
	}
	return delay
}

type registration struct {
	handler Handler
	policy  RetryPolicy
}

// Worker pulls tasks from a broker and dispatches them to registered
// handlers. Several workers share one broker; ordering across tasks is
// not guaranteed and not required.
type Worker struct {
	broker   Broker
	logger   *zap.Logger
	handlers map[TaskType]registration
	workers  int
	wait     time.Duration
}

// NewWorker builds a worker pool of the given size.
func NewWorker(broker Broker, workers int, logger *zap.Logger) *Worker {
	if workers <= 0 {
		workers = 1
	}
	return &Worker{
		broker:   broker,
		logger:   logger,
		handlers: make(map[TaskType]registration),
		workers:  workers,
		wait:     5 * time.Second,
	}
}

// Register binds a handler and retry policy to a task type. Must be called
// before Run.
func (w *Worker) Register(taskType TaskType, handler Handler, policy RetryPolicy) {
	w.handlers[taskType] = registration{handler: handler, policy: policy}
}

// Run blocks until ctx is cancelled, processing tasks on the configured
// number of goroutines.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		task, ok, err := w.broker.Dequeue(ctx, w.wait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("dequeue failed", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		w.dispatch(ctx, task)
	}
}

func (w *Worker) dispatch(ctx context.Context, task Task) {
	reg, ok := w.handlers[task.Type]
	if !ok {
		w.logger.Warn("no handler for task type", zap.String("type", string(task.Type)))
		return
	}

	err := reg.handler(ctx, task)
	if err == nil {
		return
	}

	w.logger.Warn("task handler failed",
		zap.String("type", string(task.Type)),
		zap.String("ticket_id", task.TicketID.String()),
		zap.Int("attempt", task.Attempt),
		zap.Error(err))

	if reg.policy.MaxAttempts <= 0 || task.Attempt >= reg.policy.MaxAttempts {
		// Exhausted here; the periodic sweep re-covers failed tickets.
		return
	}

	retry := task
	retry.Attempt++
	delay := reg.policy.Backoff(retry.Attempt)
	if err := w.broker.EnqueueAfter(ctx, retry, delay); err != nil {
		w.logger.Error("re-enqueue failed",
			zap.String("type", string(task.Type)),
			zap.String("ticket_id", task.TicketID.String()),
			zap.Error(err))
	}
}
