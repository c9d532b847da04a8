package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeStrategy struct {
	name      string
	available bool
	err       error
	plays     int
}

func (f *fakeStrategy) Name() string    { return f.name }
func (f *fakeStrategy) Available() bool { return f.available }
func (f *fakeStrategy) Play() error {
	f.plays++
	return f.err
}

type fakeStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string][]byte{}}
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.data[key]
	return b, ok, nil
}

func (f *fakeStore) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = val
	return nil
}

func (f *fakeStore) Invalidate(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func TestArbiter_FiresOnlyOnIncrease(t *testing.T) {
	tone := &fakeStrategy{name: "tone", available: true}
	a := New(nil, tone)
	a.Unmute()

	a.Observe(2, 1) // baseline only
	require.Equal(t, 0, tone.plays)

	a.Observe(3, 1) // 4 > 3
	require.Equal(t, 1, tone.plays)

	a.Observe(1, 1) // mark-read shrinks the total
	require.Equal(t, 1, tone.plays)

	a.Observe(1, 1) // unchanged
	require.Equal(t, 1, tone.plays)

	a.Observe(1, 2) // grows again
	require.Equal(t, 2, tone.plays)
}

func TestArbiter_ChannelsTrackedIndependently(t *testing.T) {
	tone := &fakeStrategy{name: "tone", available: true}
	a := New(nil, tone)
	a.Unmute()

	a.Observe(2, 3)

	// новое уведомление не маскируется прочтением сообщения
	a.Observe(3, 2)
	require.Equal(t, 1, tone.plays)

	// и наоборот: новое сообщение на фоне прочтённых уведомлений
	a.Observe(1, 3)
	require.Equal(t, 2, tone.plays)

	// оба канала уменьшились — тихо
	a.Observe(0, 1)
	require.Equal(t, 2, tone.plays)
}

func TestArbiter_MutedByDefault(t *testing.T) {
	tone := &fakeStrategy{name: "tone", available: true}
	a := New(nil, tone)

	a.Observe(0, 0)
	a.Observe(5, 5)
	require.Equal(t, 0, tone.plays)

	a.Unmute()
	a.Observe(6, 5)
	require.Equal(t, 1, tone.plays)

	a.Mute()
	a.Observe(9, 9)
	require.Equal(t, 1, tone.plays)
}

func TestArbiter_FallbackOrder(t *testing.T) {
	tone := &fakeStrategy{name: "tone"}
	clip := &fakeStrategy{name: "clip", available: true}
	haptic := &fakeStrategy{name: "haptic", available: true}
	a := New(nil, tone, clip, haptic)
	a.Unmute()

	a.Observe(0, 0)
	a.Observe(1, 0)

	require.Equal(t, 0, tone.plays)
	require.Equal(t, 1, clip.plays)
	require.Equal(t, 0, haptic.plays, "only the first available tier is attempted")
}

func TestArbiter_SingleTierEvenOnFailure(t *testing.T) {
	clip := &fakeStrategy{name: "clip", available: true, err: errors.New("device busy")}
	haptic := &fakeStrategy{name: "haptic", available: true}
	a := New(nil, clip, haptic)
	a.Unmute()

	a.Observe(0, 0)
	a.Observe(0, 1)

	require.Equal(t, 1, clip.plays)
	require.Equal(t, 0, haptic.plays, "failure of the chosen tier is swallowed, not retried")
}

func TestArbiter_NoAvailableStrategy(t *testing.T) {
	tone := &fakeStrategy{name: "tone"}
	a := New(nil, tone)
	a.Unmute()

	a.Observe(0, 0)
	a.Observe(2, 0) // должно молча пройти
	require.Equal(t, 0, tone.plays)
}

func TestArbiter_MutePersistedAndRestored(t *testing.T) {
	store := newFakeStore()

	a := New(store)
	a.Unmute()
	require.False(t, a.Muted())

	// новая сессия с тем же хранилищем наследует состояние
	b := New(store)
	require.False(t, b.Muted())

	b.Mute()
	c := New(store)
	require.True(t, c.Muted())
}
