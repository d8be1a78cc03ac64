package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/domain"
)

// Notifier is the producer surface job handlers use. It validates, stamps
// and enqueues; when the queue backend is unreachable it falls back to one
// direct dispatch attempt so critical notifications are not silently lost.
type Notifier struct {
	q      *Queue
	disp   Dispatcher
	logger *zap.Logger
}

func NewNotifier(q *Queue, disp Dispatcher, logger *zap.Logger) *Notifier {
	return &Notifier{
		q:      q,
		disp:   disp,
		logger: logger.With(zap.String("component", "notifier")),
	}
}

// Send stamps and queues the notification for asynchronous dispatch.
func (s *Notifier) Send(ctx context.Context, n domain.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	err := s.q.Enqueue(ctx, n)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrQueueUnavailable) {
		return err
	}

	// Fallback: single direct attempt, no retry.
	s.logger.Warn("queue unavailable, dispatching directly",
		zap.String("notification_id", n.ID),
		zap.Error(err),
	)
	s.q.hooks.OnFallback()
	if _, dispErr := s.disp.Dispatch(ctx, &n); dispErr != nil {
		return fmt.Errorf("direct dispatch fallback: %w", dispErr)
	}
	return nil
}
