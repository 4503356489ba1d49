package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskType identifies which handler a task is dispatched to.
type TaskType string

const (
	TaskTicketCreate  TaskType = "ticket.create"
	TaskRetrySweep    TaskType = "sweep.retry"
	TaskStatusSweep   TaskType = "sweep.status"
	TaskReplyDispatch TaskType = "sweep.reply"
)

// Task is the unit handed to workers. Delivery is at-least-once: handlers
// must be idempotent.
type Task struct {
	ID         uuid.UUID `json:"id"`
	Type       TaskType  `json:"type"`
	TicketID   uuid.UUID `json:"ticket_id,omitempty"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewTask builds a first-attempt task.
func NewTask(taskType TaskType, ticketID uuid.UUID) Task {
	return Task{
		ID:         uuid.New(),
		Type:       taskType,
		TicketID:   ticketID,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Enqueuer is the producer-side queue contract.
type Enqueuer interface {
	Enqueue(ctx context.Context, task Task) error
}

// Broker is the full queue contract workers run against.
type Broker interface {
	Enqueuer

	// EnqueueAfter schedules a task to become ready after delay.
	EnqueueAfter(ctx context.Context, task Task, delay time.Duration) error

	// Dequeue blocks up to wait for the next ready task. The second
	// return value is false when the wait expired without a task.
	Dequeue(ctx context.Context, wait time.Duration) (Task, bool, error)
}
