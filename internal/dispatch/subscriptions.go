package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/trackfleet/logistics-core/internal/domain"
	"github.com/trackfleet/logistics-core/internal/store"
)

// RedisSubscriptions reads a user's push endpoints from the
// push:subscriptions:{userId} key. A missing key means no subscriptions,
// not an error.
type RedisSubscriptions struct {
	cache store.Cache
}

func NewRedisSubscriptions(cache store.Cache) *RedisSubscriptions {
	return &RedisSubscriptions{cache: cache}
}

func (r *RedisSubscriptions) Subscriptions(ctx context.Context, userID string) ([]domain.PushSubscription, error) {
	b, err := r.cache.Get(ctx, store.PushSubscriptionsKey(userID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var subs []domain.PushSubscription
	if err := json.Unmarshal(b, &subs); err != nil {
		return nil, fmt.Errorf("decode push subscriptions for %s: %w", userID, err)
	}
	return subs, nil
}

var _ SubscriptionStore = (*RedisSubscriptions)(nil)
