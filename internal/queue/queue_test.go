package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/domain"
	"github.com/trackfleet/logistics-core/internal/queue"
)

// memList is an in-memory stand-in for the Redis list. Operations mirror
// RPUSH/LPOP/LLEN semantics, including domain.ErrNotFound on empty pop.
type memList struct {
	mu    sync.Mutex
	items map[string][][]byte
	down  bool // simulate Redis outage
}

func newMemList() *memList {
	return &memList{items: make(map[string][][]byte)}
}

func (m *memList) Push(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errors.New("connection refused")
	}
	m.items[key] = append(m.items[key], value)
	return nil
}

func (m *memList) Pop(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errors.New("connection refused")
	}
	list := m.items[key]
	if len(list) == 0 {
		return nil, domain.ErrNotFound
	}
	head := list[0]
	m.items[key] = list[1:]
	return head, nil
}

func (m *memList) Len(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.items[key])), nil
}

// fakeDispatcher records calls and fails on demand.
type fakeDispatcher struct {
	mu       sync.Mutex
	calls    int
	err      error
	received []domain.Notification
}

func (f *fakeDispatcher) Dispatch(_ context.Context, n *domain.Notification) (domain.DispatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.received = append(f.received, *n)
	if f.err != nil {
		return domain.DispatchResult{
			domain.ChannelInApp: {State: domain.DeliveryFailed, Error: f.err.Error()},
		}, f.err
	}
	return domain.DispatchResult{
		domain.ChannelInApp: {State: domain.DeliveryOK},
	}, nil
}

func testNotification() domain.Notification {
	return domain.Notification{
		RecipientID: "user-1",
		CompanyID:   "co-1",
		Type:        domain.TypePaymentReminder,
		Title:       "Invoice due",
		Message:     "Invoice INV-42 is due tomorrow",
		Channels:    []domain.Channel{domain.ChannelInApp},
		Priority:    domain.PriorityNormal,
	}
}

func TestQueue_EnqueueThenDrainDelivers(t *testing.T) {
	list := newMemList()
	q := queue.New(list, zap.NewNop(), queue.Hooks{})
	disp := &fakeDispatcher{}
	notifier := queue.NewNotifier(q, disp, zap.NewNop())
	runner := queue.NewRunner(q, disp, 0, zap.NewNop())

	ctx := context.Background()
	if err := notifier.Send(ctx, testNotification()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	depth, _ := q.Depth(ctx)
	if depth != 1 {
		t.Fatalf("expected depth 1, got %d", depth)
	}

	if err := runner.ProcessPending(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if disp.calls != 1 {
		t.Fatalf("expected 1 dispatch, got %d", disp.calls)
	}
	depth, _ = q.Depth(ctx)
	if depth != 0 {
		t.Fatalf("expected empty queue after drain, got %d", depth)
	}
}

// TestQueue_RetryThenDrop walks an always-failing item through the full
// retry ladder: attempts 1-3 re-enqueue with an incremented counter,
// attempt 4 drops terminally.
func TestQueue_RetryThenDrop(t *testing.T) {
	list := newMemList()
	var drops int
	q := queue.New(list, zap.NewNop(), queue.Hooks{OnDropped: func() { drops++ }})
	disp := &fakeDispatcher{err: errors.New("provider down")}
	notifier := queue.NewNotifier(q, disp, zap.NewNop())
	runner := queue.NewRunner(q, disp, 0, zap.NewNop())

	ctx := context.Background()
	if err := notifier.Send(ctx, testNotification()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		if err := runner.ProcessPending(ctx); err != nil {
			t.Fatalf("drain %d: unexpected error: %v", attempt, err)
		}
		depth, _ := q.Depth(ctx)
		if depth != 1 {
			t.Fatalf("drain %d: expected item re-enqueued, depth=%d", attempt, depth)
		}

		raw, err := list.Pop(ctx, "notifications:pending")
		if err != nil {
			t.Fatal(err)
		}
		var item domain.QueueItem
		if err := json.Unmarshal(raw, &item); err != nil {
			t.Fatal(err)
		}
		if item.RetryCount != attempt {
			t.Fatalf("drain %d: expected retry_count=%d, got %d", attempt, attempt, item.RetryCount)
		}
		// Put it back for the next attempt.
		if err := list.Push(ctx, "notifications:pending", raw); err != nil {
			t.Fatal(err)
		}
	}

	// Fourth attempt: retry cap reached, item dropped, no re-enqueue.
	if err := runner.ProcessPending(ctx); err != nil {
		t.Fatalf("final drain: unexpected error: %v", err)
	}
	depth, _ := q.Depth(ctx)
	if depth != 0 {
		t.Fatalf("expected terminal drop, depth=%d", depth)
	}
	if drops != 1 {
		t.Fatalf("expected 1 terminal drop, got %d", drops)
	}
	if disp.calls != 4 {
		t.Fatalf("retry cap: item must be observed exactly 4 times, got %d", disp.calls)
	}
}

func TestQueue_DrainBounded(t *testing.T) {
	list := newMemList()
	q := queue.New(list, zap.NewNop(), queue.Hooks{})
	disp := &fakeDispatcher{}
	notifier := queue.NewNotifier(q, disp, zap.NewNop())
	runner := queue.NewRunner(q, disp, 5, zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 12; i++ {
		if err := notifier.Send(ctx, testNotification()); err != nil {
			t.Fatal(err)
		}
	}

	if err := runner.ProcessPending(ctx); err != nil {
		t.Fatal(err)
	}
	if disp.calls != 5 {
		t.Fatalf("expected drain bounded to 5, dispatched %d", disp.calls)
	}
	depth, _ := q.Depth(ctx)
	if depth != 7 {
		t.Fatalf("expected 7 items left, got %d", depth)
	}
}

func TestQueue_MalformedItemDropped(t *testing.T) {
	list := newMemList()
	var drops int
	q := queue.New(list, zap.NewNop(), queue.Hooks{OnDropped: func() { drops++ }})
	disp := &fakeDispatcher{}
	runner := queue.NewRunner(q, disp, 0, zap.NewNop())

	ctx := context.Background()
	if err := list.Push(ctx, "notifications:pending", []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	if err := runner.ProcessPending(ctx); err != nil {
		t.Fatal(err)
	}
	if disp.calls != 0 {
		t.Fatal("malformed item must not reach the dispatcher")
	}
	if drops != 1 {
		t.Fatalf("expected 1 parse drop, got %d", drops)
	}
}

func TestNotifier_FallbackOnQueueOutage(t *testing.T) {
	list := newMemList()
	list.down = true
	var fallbacks int
	q := queue.New(list, zap.NewNop(), queue.Hooks{OnFallback: func() { fallbacks++ }})
	disp := &fakeDispatcher{}
	notifier := queue.NewNotifier(q, disp, zap.NewNop())

	if err := notifier.Send(context.Background(), testNotification()); err != nil {
		t.Fatalf("fallback path must succeed when dispatch succeeds: %v", err)
	}
	if disp.calls != 1 {
		t.Fatalf("expected exactly one direct dispatch, got %d", disp.calls)
	}
	if fallbacks != 1 {
		t.Fatalf("expected fallback hook once, got %d", fallbacks)
	}
}

func TestNotifier_FallbackSurfacesDispatchError(t *testing.T) {
	list := newMemList()
	list.down = true
	q := queue.New(list, zap.NewNop(), queue.Hooks{})
	disp := &fakeDispatcher{err: errors.New("smtp down")}
	notifier := queue.NewNotifier(q, disp, zap.NewNop())

	err := notifier.Send(context.Background(), testNotification())
	if err == nil {
		t.Fatal("expected error when both queue and direct dispatch fail")
	}
	if disp.calls != 1 {
		t.Fatalf("fallback is single-attempt, got %d dispatches", disp.calls)
	}
}

func TestNotifier_StampsIDAndCreatedAt(t *testing.T) {
	list := newMemList()
	q := queue.New(list, zap.NewNop(), queue.Hooks{})
	disp := &fakeDispatcher{}
	notifier := queue.NewNotifier(q, disp, zap.NewNop())
	runner := queue.NewRunner(q, disp, 0, zap.NewNop())

	ctx := context.Background()
	before := time.Now().UTC()
	if err := notifier.Send(ctx, testNotification()); err != nil {
		t.Fatal(err)
	}
	if err := runner.ProcessPending(ctx); err != nil {
		t.Fatal(err)
	}

	if len(disp.received) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(disp.received))
	}
	got := disp.received[0]
	if got.ID == "" {
		t.Fatal("expected generated notification id")
	}
	if got.CreatedAt.Before(before.Add(-time.Second)) {
		t.Fatal("expected created_at to be stamped")
	}
}

func TestNotifier_RejectsInvalid(t *testing.T) {
	q := queue.New(newMemList(), zap.NewNop(), queue.Hooks{})
	notifier := queue.NewNotifier(q, &fakeDispatcher{}, zap.NewNop())

	bad := testNotification()
	bad.Channels = nil
	if err := notifier.Send(context.Background(), bad); !errors.Is(err, domain.ErrNoChannels) {
		t.Fatalf("expected ErrNoChannels, got %v", err)
	}
}
