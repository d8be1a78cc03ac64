// Package dispatch fans one notification out to its requested channels:
// in-app persistence plus realtime push, email, SMS, and web push. Each
// channel reports its own outcome; no channel's failure aborts the others.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/domain"
	"github.com/trackfleet/logistics-core/internal/ratelimiter"
)

// NotificationStore persists the in-app copy of a notification.
type NotificationStore interface {
	Insert(ctx context.Context, n *domain.Notification) error
}

// Directory resolves recipients to contact details.
type Directory interface {
	User(ctx context.Context, id string) (*domain.User, error)
}

// SubscriptionStore lists a user's registered push endpoints.
type SubscriptionStore interface {
	Subscriptions(ctx context.Context, userID string) ([]domain.PushSubscription, error)
}

// Bus is the slice of the realtime hub the dispatcher needs.
type Bus interface {
	EmitToUser(userID, event string, payload any)
	EmitToNotifications(userID, event string, payload any)
}

// EmailSink submits one rendered email to the outbound provider.
type EmailSink interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMSSink submits one rendered text message.
type SMSSink interface {
	Send(ctx context.Context, phone, text string) error
}

// PushSink delivers a payload to a single push endpoint.
type PushSink interface {
	Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error
}

// Hooks carries the per-channel metric callback injected by main.
type Hooks struct {
	OnOutcome func(ch domain.Channel, state domain.DeliveryState)
}

// Dispatcher delivers notifications across channels. A nil sink disables
// its channel silently: requested deliveries on it report skipped.
type Dispatcher struct {
	repo    NotificationStore
	dir     Directory
	subs    SubscriptionStore
	bus     Bus
	email   EmailSink
	sms     SMSSink
	push    PushSink
	limiter *ratelimiter.ChannelLimiters
	logger  *zap.Logger
	hooks   Hooks
}

func New(
	repo NotificationStore,
	dir Directory,
	subs SubscriptionStore,
	bus Bus,
	email EmailSink,
	sms SMSSink,
	push PushSink,
	limiter *ratelimiter.ChannelLimiters,
	logger *zap.Logger,
	hooks Hooks,
) *Dispatcher {
	if hooks.OnOutcome == nil {
		hooks.OnOutcome = func(domain.Channel, domain.DeliveryState) {}
	}
	return &Dispatcher{
		repo:    repo,
		dir:     dir,
		subs:    subs,
		bus:     bus,
		email:   email,
		sms:     sms,
		push:    push,
		limiter: limiter,
		logger:  logger.With(zap.String("component", "dispatcher")),
		hooks:   hooks,
	}
}

// Dispatch attempts every requested channel and returns the per-channel
// outcome map. The error is non-nil when at least one channel failed, so
// the queue runner can schedule a retry; skipped channels are not failures.
func (d *Dispatcher) Dispatch(ctx context.Context, n *domain.Notification) (domain.DispatchResult, error) {
	res := make(domain.DispatchResult, len(n.Channels))

	var user *domain.User
	if n.HasChannel(domain.ChannelEmail) || n.HasChannel(domain.ChannelSMS) {
		u, err := d.dir.User(ctx, n.RecipientID)
		if err != nil {
			d.logger.Warn("recipient lookup failed",
				zap.String("recipient_id", n.RecipientID), zap.Error(err))
		} else {
			user = u
		}
	}

	for _, ch := range n.Channels {
		var out domain.ChannelOutcome
		switch ch {
		case domain.ChannelInApp:
			out = d.deliverInApp(ctx, n)
		case domain.ChannelEmail:
			out = d.deliverEmail(ctx, n, user)
		case domain.ChannelSMS:
			out = d.deliverSMS(ctx, n, user)
		case domain.ChannelPush:
			out = d.deliverPush(ctx, n)
		default:
			out = domain.ChannelOutcome{State: domain.DeliverySkipped, Error: "unknown channel"}
		}
		res[ch] = out
		d.hooks.OnOutcome(ch, out.State)
	}

	if res.Failed() {
		return res, fmt.Errorf("notification %s: one or more channels failed", n.ID)
	}
	return res, nil
}

// deliverInApp persists the row, then pushes to the user's rooms. The
// realtime push is best-effort; the outcome follows persistence alone.
func (d *Dispatcher) deliverInApp(ctx context.Context, n *domain.Notification) domain.ChannelOutcome {
	if err := d.repo.Insert(ctx, n); err != nil {
		return domain.ChannelOutcome{State: domain.DeliveryFailed, Error: err.Error()}
	}
	if d.bus != nil {
		d.bus.EmitToUser(n.RecipientID, "notification", n)
		d.bus.EmitToNotifications(n.RecipientID, "notification", n)
	}
	return domain.ChannelOutcome{State: domain.DeliveryOK}
}

func (d *Dispatcher) deliverEmail(ctx context.Context, n *domain.Notification, user *domain.User) domain.ChannelOutcome {
	if d.email == nil {
		return domain.ChannelOutcome{State: domain.DeliverySkipped, Error: "email channel disabled"}
	}
	if user == nil || user.Email == "" {
		return domain.ChannelOutcome{State: domain.DeliverySkipped, Error: "no email on file"}
	}
	if err := d.limiter.Wait(ctx, domain.ChannelEmail); err != nil {
		return domain.ChannelOutcome{State: domain.DeliveryFailed, Error: err.Error()}
	}
	if err := d.email.Send(ctx, user.Email, emailSubject(n), emailBody(n)); err != nil {
		return domain.ChannelOutcome{State: domain.DeliveryFailed, Error: err.Error()}
	}
	return domain.ChannelOutcome{State: domain.DeliveryOK}
}

func (d *Dispatcher) deliverSMS(ctx context.Context, n *domain.Notification, user *domain.User) domain.ChannelOutcome {
	if d.sms == nil {
		return domain.ChannelOutcome{State: domain.DeliverySkipped, Error: "sms channel disabled"}
	}
	if user == nil || user.Phone == "" {
		return domain.ChannelOutcome{State: domain.DeliverySkipped, Error: "no phone on file"}
	}
	if err := d.limiter.Wait(ctx, domain.ChannelSMS); err != nil {
		return domain.ChannelOutcome{State: domain.DeliveryFailed, Error: err.Error()}
	}
	if err := d.sms.Send(ctx, user.Phone, smsText(n)); err != nil {
		return domain.ChannelOutcome{State: domain.DeliveryFailed, Error: err.Error()}
	}
	return domain.ChannelOutcome{State: domain.DeliveryOK}
}

// deliverPush fans out to every registered endpoint. The channel succeeds
// when at least one endpoint accepted the payload.
func (d *Dispatcher) deliverPush(ctx context.Context, n *domain.Notification) domain.ChannelOutcome {
	if d.push == nil {
		return domain.ChannelOutcome{State: domain.DeliverySkipped, Error: "push channel disabled"}
	}
	subs, err := d.subs.Subscriptions(ctx, n.RecipientID)
	if err != nil {
		return domain.ChannelOutcome{State: domain.DeliveryFailed, Error: err.Error()}
	}
	if len(subs) == 0 {
		return domain.ChannelOutcome{State: domain.DeliverySkipped, Error: "no push subscriptions"}
	}

	payload, err := json.Marshal(map[string]any{
		"title":    n.Title,
		"message":  n.Message,
		"type":     n.Type,
		"priority": n.Priority,
		"data":     n.Data,
	})
	if err != nil {
		return domain.ChannelOutcome{State: domain.DeliveryFailed, Error: err.Error()}
	}

	if err := d.limiter.Wait(ctx, domain.ChannelPush); err != nil {
		return domain.ChannelOutcome{State: domain.DeliveryFailed, Error: err.Error()}
	}

	delivered := 0
	for _, sub := range subs {
		if err := d.push.Send(ctx, sub, payload); err != nil {
			d.logger.Warn("push endpoint delivery failed",
				zap.String("recipient_id", n.RecipientID),
				zap.String("endpoint", sub.Endpoint),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return domain.ChannelOutcome{State: domain.DeliveryFailed, Error: "all push endpoints failed"}
	}
	return domain.ChannelOutcome{State: domain.DeliveryOK}
}
