package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/events"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/models"
)

type recordingStore struct {
	mu          sync.Mutex
	invalidated []string
}

func (r *recordingStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (r *recordingStore) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (r *recordingStore) Invalidate(_ context.Context, key string) error {
	r.mu.Lock()
	r.invalidated = append(r.invalidated, key)
	r.mu.Unlock()
	return nil
}

func (r *recordingStore) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.invalidated...)
}

type fakeCounts struct {
	notif int
	msg   int
}

func (f *fakeCounts) Count(_ context.Context, ch models.Channel, _ uint64) (int, error) {
	if ch == models.ChannelNotification {
		return f.notif, nil
	}
	return f.msg, nil
}

type recordingAlerter struct {
	mu    sync.Mutex
	calls [][2]int
}

func (r *recordingAlerter) Observe(n, m int) {
	r.mu.Lock()
	r.calls = append(r.calls, [2]int{n, m})
	r.mu.Unlock()
}

func TestReceiver_InvalidatesPerEventType(t *testing.T) {
	sub := newTestSub(&fakeDialer{})
	store := &recordingStore{}
	r := NewReceiver(sub, store, nil, nil)

	r.handle(events.Event{Type: events.TypeBooking, Action: events.ActionUpdate})
	r.handle(events.Event{Type: events.TypeGPS, Action: events.ActionUpdate})
	r.handle(events.Event{Type: events.TypeDashboard, Action: events.ActionUpdate})

	require.Equal(t, []string{"bookings", "live-tracking", "dashboard"}, store.keys())
}

func TestReceiver_FeedsAlerterAuthoritativeCounts(t *testing.T) {
	sub := newTestSub(&fakeDialer{})
	store := &recordingStore{}
	counts := &fakeCounts{notif: 3, msg: 1}
	al := &recordingAlerter{}
	r := NewReceiver(sub, store, counts, al)

	r.handle(events.Event{Type: events.TypeNotification, Action: events.ActionNew})
	require.Equal(t, [][2]int{{3, 1}}, al.calls)

	// событие брони кэш трогает, а счётчики — нет
	r.handle(events.Event{Type: events.TypeBooking, Action: events.ActionUpdate})
	require.Len(t, al.calls, 1)

	counts.msg = 2
	r.handle(events.Event{Type: events.TypeMessage, Action: events.ActionNew})
	require.Equal(t, [2]int{3, 2}, al.calls[1])
}
