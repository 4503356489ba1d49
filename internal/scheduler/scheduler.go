package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/queue"
)

// Scheduler enqueues the periodic sweep tasks on fixed wall-clock
// intervals. Execution stays on the queue workers; a slow sweep never
// blocks the next trigger of a different type.
type Scheduler struct {
	enqueuer queue.Enqueuer
	logger   *zap.Logger
	entries  []entry
}

type entry struct {
	taskType queue.TaskType
	interval time.Duration
}

// New builds a scheduler from the configured intervals. Intervals of zero
// or less disable the corresponding trigger.
func New(cfg config.SchedulerConfig, enqueuer queue.Enqueuer, logger *zap.Logger) *Scheduler {
	s := &Scheduler{enqueuer: enqueuer, logger: logger}
	s.add(queue.TaskStatusSweep, time.Duration(cfg.StatusReconcileMinutes)*time.Minute)
	s.add(queue.TaskRetrySweep, time.Duration(cfg.CreationRetryMinutes)*time.Minute)
	s.add(queue.TaskReplyDispatch, time.Duration(cfg.ReplyDispatchMinutes)*time.Minute)
	return s
}

func (s *Scheduler) add(taskType queue.TaskType, interval time.Duration) {
	if interval <= 0 {
		s.logger.Info("periodic trigger disabled", zap.String("type", string(taskType)))
		return
	}
	s.entries = append(s.entries, entry{taskType: taskType, interval: interval})
}

// Run blocks until ctx is cancelled, with one ticker loop per trigger.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range s.entries {
		wg.Add(1)
		go func(e entry) {
			defer wg.Done()
			s.loop(ctx, e)
		}(e)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task := queue.NewTask(e.taskType, uuid.Nil)
			if err := s.enqueuer.Enqueue(ctx, task); err != nil {
				s.logger.Warn("enqueue periodic task failed",
					zap.String("type", string(e.taskType)), zap.Error(err))
			}
		}
	}
}
