// Package queue implements the Redis-resident notification queue: a FIFO
// list under notifications:pending with bounded batch pop, a capped retry
// counter, and a direct-dispatch fallback when Redis is unreachable.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/domain"
	"github.com/trackfleet/logistics-core/internal/store"
)

// Dispatcher fans one notification out to its requested channels.
// Implemented by dispatch.Dispatcher; faked in tests.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *domain.Notification) (domain.DispatchResult, error)
}

// Hooks carries metric callbacks so the queue stays metrics-agnostic.
type Hooks struct {
	OnEnqueued func()
	OnDropped  func()
	OnFallback func()
}

func (h *Hooks) fill() {
	if h.OnEnqueued == nil {
		h.OnEnqueued = func() {}
	}
	if h.OnDropped == nil {
		h.OnDropped = func() {}
	}
	if h.OnFallback == nil {
		h.OnFallback = func() {}
	}
}

// Queue is the producer/consumer surface over the Redis list.
type Queue struct {
	list   store.ListQueue
	logger *zap.Logger
	hooks  Hooks
}

func New(list store.ListQueue, logger *zap.Logger, hooks Hooks) *Queue {
	hooks.fill()
	return &Queue{
		list:   list,
		logger: logger.With(zap.String("component", "notification_queue")),
		hooks:  hooks,
	}
}

// Enqueue appends a fresh item at the tail. On backend failure the caller
// receives domain.ErrQueueUnavailable and must direct-dispatch.
func (q *Queue) Enqueue(ctx context.Context, n domain.Notification) error {
	return q.push(ctx, domain.QueueItem{
		Notification: n,
		EnqueuedAt:   time.Now().UTC(),
	})
}

func (q *Queue) push(ctx context.Context, item domain.QueueItem) error {
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	if err := q.list.Push(ctx, store.NotificationsPendingKey, b); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	q.hooks.OnEnqueued()
	return nil
}

// Depth returns the number of items waiting, for the metrics gauge.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.list.Len(ctx, store.NotificationsPendingKey)
}

// pop removes the head item. Malformed payloads are dropped with a parse
// error log and reported as (nil, false, nil).
func (q *Queue) pop(ctx context.Context) (*domain.QueueItem, bool, error) {
	b, err := q.list.Pop(ctx, store.NotificationsPendingKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	var item domain.QueueItem
	if err := json.Unmarshal(b, &item); err != nil {
		q.logger.Error("dropping malformed queue item", zap.Error(err))
		q.hooks.OnDropped()
		return nil, true, nil
	}
	return &item, true, nil
}
