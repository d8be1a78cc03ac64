package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/trackfleet/logistics-core/internal/domain"
)

// ChannelLimiters holds one token bucket per outbound channel so a burst of
// scheduled notifications cannot flood the email or SMS provider.
// Burst equals the rate: no saved-up burst above the per-second maximum.
// The in-app channel is not limited; it only touches our own stores.
type ChannelLimiters struct {
	limiters map[domain.Channel]*rate.Limiter
}

// New creates limiters with ratePerSec tokens per second per channel.
func New(ratePerSec int) *ChannelLimiters {
	r := rate.Limit(ratePerSec)
	burst := ratePerSec

	return &ChannelLimiters{
		limiters: map[domain.Channel]*rate.Limiter{
			domain.ChannelEmail: rate.NewLimiter(r, burst),
			domain.ChannelSMS:   rate.NewLimiter(r, burst),
			domain.ChannelPush:  rate.NewLimiter(r, burst),
		},
	}
}

// Wait blocks until the channel's limiter grants a token. Unlimited
// channels pass through. Returns non-nil only when ctx is cancelled.
func (cl *ChannelLimiters) Wait(ctx context.Context, ch domain.Channel) error {
	l, ok := cl.limiters[ch]
	if !ok {
		return nil
	}
	return l.Wait(ctx)
}
