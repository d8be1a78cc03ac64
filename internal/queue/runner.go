package queue

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/domain"
)

// DefaultDrainMax bounds one drain cycle.
const DefaultDrainMax = 100

// Runner consumes the queue. It runs as the processNotificationQueue job
// every five minutes; producers keep enqueuing between cycles.
type Runner struct {
	q      *Queue
	disp   Dispatcher
	max    int
	logger *zap.Logger
}

func NewRunner(q *Queue, disp Dispatcher, max int, logger *zap.Logger) *Runner {
	if max <= 0 {
		max = DefaultDrainMax
	}
	return &Runner{
		q:      q,
		disp:   disp,
		max:    max,
		logger: logger.With(zap.String("component", "queue_runner")),
	}
}

// ProcessPending pops up to max items and dispatches each. A dispatch
// failure re-enqueues the item at the tail with retryCount+1; at the retry
// cap the item is terminally dropped with a log record. When Redis itself
// is unreachable the tick is skipped and the error surfaces to the job run.
func (r *Runner) ProcessPending(ctx context.Context) error {
	depth, err := r.q.Depth(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}

	// Bound the cycle by the depth at drain start so an item re-enqueued
	// for retry is not popped again until the next cycle.
	limit := int(depth)
	if limit > r.max {
		limit = r.max
	}

	var delivered, retried, dropped int
	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		item, ok, err := r.q.pop(ctx)
		if err != nil {
			return err // queue unavailable: skip this tick
		}
		if !ok {
			break // queue empty
		}
		if item == nil {
			continue // malformed, already logged and counted
		}

		res, dispErr := r.disp.Dispatch(ctx, &item.Notification)
		if dispErr == nil {
			delivered++
			continue
		}

		if item.RetryCount >= domain.MaxQueueRetries {
			dropped++
			r.q.hooks.OnDropped()
			r.logger.Error("dropping notification after exhausted retries",
				zap.String("notification_id", item.Notification.ID),
				zap.String("recipient_id", item.Notification.RecipientID),
				zap.String("type", string(item.Notification.Type)),
				zap.Int("retry_count", item.RetryCount),
				zap.Error(dispErr),
			)
			continue
		}

		item.RetryCount++
		if err := r.q.push(ctx, *item); err != nil {
			// Redis died between pop and re-enqueue. The item is lost for
			// this process; record it the same way as a terminal drop.
			dropped++
			r.q.hooks.OnDropped()
			r.logger.Error("failed to re-enqueue notification",
				zap.String("notification_id", item.Notification.ID),
				zap.Error(err),
			)
			continue
		}
		retried++
		_ = res // per-channel outcomes are logged by the dispatcher

		r.logger.Warn("notification re-enqueued for retry",
			zap.String("notification_id", item.Notification.ID),
			zap.Int("retry_count", item.RetryCount),
			zap.Error(dispErr),
		)
	}

	if delivered+retried+dropped > 0 {
		r.logger.Info("queue drain complete",
			zap.Int("delivered", delivered),
			zap.Int("retried", retried),
			zap.Int("dropped", dropped),
		)
	}
	return nil
}
