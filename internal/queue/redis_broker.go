package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	readyKey   = "ticketsync:tasks:ready"
	delayedKey = "ticketsync:tasks:delayed"

	promoteInterval = time.Second
)

// RedisBroker is a durable at-least-once task queue over a Redis list,
// with a sorted-set bucket for delayed (backoff) tasks. Two promoters
// racing on the same due task can duplicate a delivery; the at-least-once
// contract makes that harmless.
type RedisBroker struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBroker wraps an existing client.
func NewRedisBroker(client *redis.Client, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{client: client, logger: logger}
}

// Enqueue pushes a task onto the ready list.
func (b *RedisBroker) Enqueue(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := b.client.LPush(ctx, readyKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// EnqueueAfter parks a task in the delayed bucket until its ready time.
func (b *RedisBroker) EnqueueAfter(ctx context.Context, task Task, delay time.Duration) error {
	if delay <= 0 {
		return b.Enqueue(ctx, task)
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	readyAt := float64(time.Now().Add(delay).UnixMilli())
	if err := b.client.ZAdd(ctx, delayedKey, redis.Z{Score: readyAt, Member: payload}).Err(); err != nil {
		return fmt.Errorf("enqueue delayed task: %w", err)
	}
	return nil
}

// Dequeue blocks up to wait for the next ready task.
func (b *RedisBroker) Dequeue(ctx context.Context, wait time.Duration) (Task, bool, error) {
	res, err := b.client.BRPop(ctx, wait, readyKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Task{}, false, nil
		}
		return Task{}, false, err
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return Task{}, false, fmt.Errorf("unexpected BRPOP reply length %d", len(res))
	}
	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		b.logger.Warn("dropping malformed task payload", zap.Error(err))
		return Task{}, false, nil
	}
	return task, true, nil
}

// RunPromoter moves due delayed tasks onto the ready list until ctx is
// cancelled. Meant to run in its own goroutine.
func (b *RedisBroker) RunPromoter(ctx context.Context) {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.promoteDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
				b.logger.Warn("promote delayed tasks", zap.Error(err))
			}
		}
	}
}

func (b *RedisBroker) promoteDue(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	due, err := b.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 100,
	}).Result()
	if err != nil {
		return err
	}
	for _, payload := range due {
		removed, err := b.client.ZRem(ctx, delayedKey, payload).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue // another promoter won
		}
		if err := b.client.LPush(ctx, readyKey, payload).Err(); err != nil {
			return err
		}
	}
	return nil
}
