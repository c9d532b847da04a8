package lifecycle

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/dispatch"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/events"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/models"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/storage/pgbooking"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	booking *models.Booking
	getErr  error

	applied  []pgbooking.StatusUpdate
	applyErr error

	created models.BookingCreateInput
}

func (f *fakeRepo) CreateBooking(ctx context.Context, in models.BookingCreateInput) (*models.Booking, error) {
	f.created = in
	return &models.Booking{ID: 1, UserID: in.UserID, TrackNumber: in.TrackNumber, Status: models.BookingStatusBooked}, nil
}

func (f *fakeRepo) GetBookingByID(ctx context.Context, id uint64) (*models.Booking, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	b := *f.booking
	return &b, nil
}

func (f *fakeRepo) ApplyStatusUpdate(ctx context.Context, upd pgbooking.StatusUpdate) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, upd)
	f.booking.Status = upd.Status
	return nil
}

func (f *fakeRepo) ListTrackingEvents(ctx context.Context, bookingID uint64, limit, offset int) ([]*models.TrackingEvent, error) {
	return nil, nil
}

type fakeEmitter struct {
	evs     []events.Event
	targets []dispatch.Target
}

func (f *fakeEmitter) Emit(ev events.Event, target dispatch.Target) {
	f.evs = append(f.evs, ev)
	f.targets = append(f.targets, target)
}

func booking(status models.BookingStatus) *models.Booking {
	return &models.Booking{ID: 1, UserID: 42, TrackNumber: "CRG-001", Status: status}
}

func TestTransition_ForwardMove(t *testing.T) {
	r := &fakeRepo{booking: booking(models.BookingStatusBooked)}
	em := &fakeEmitter{}
	s := New(r, nil, 0, em)

	ev, err := s.Transition(context.Background(), 1, models.BookingStatusPicked, "Berlin depot", "loaded")
	require.NoError(t, err)
	require.Equal(t, models.BookingStatusPicked, ev.Status)
	require.Equal(t, "Berlin depot", ev.Location)
	require.Equal(t, "loaded", ev.Note)
	require.WithinDuration(t, time.Now().UTC(), ev.EventTime, time.Second)

	require.Len(t, r.applied, 1)
	require.Equal(t, models.BookingStatusPicked, r.applied[0].Status)
	require.Same(t, ev, r.applied[0].Event)
}

func TestTransition_SkipAllowed(t *testing.T) {
	// порядок проверяется как "строго больше", не "следующий по порядку"
	r := &fakeRepo{booking: booking(models.BookingStatusBooked)}
	s := New(r, nil, 0, nil)

	ev, err := s.Transition(context.Background(), 1, models.BookingStatusDelivered, "", "")
	require.NoError(t, err)
	require.Equal(t, models.BookingStatusDelivered, ev.Status)
	require.Len(t, r.applied, 1)
}

func TestTransition_BackwardRejected(t *testing.T) {
	r := &fakeRepo{booking: booking(models.BookingStatusDelivered)}
	s := New(r, nil, 0, nil)

	_, err := s.Transition(context.Background(), 1, models.BookingStatusPicked, "", "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Empty(t, r.applied)
	require.Equal(t, models.BookingStatusDelivered, r.booking.Status)
}

func TestTransition_SameStatusRejected(t *testing.T) {
	r := &fakeRepo{booking: booking(models.BookingStatusPicked)}
	s := New(r, nil, 0, nil)

	_, err := s.Transition(context.Background(), 1, models.BookingStatusPicked, "", "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransition_CancelFromAnyNonTerminal(t *testing.T) {
	for _, from := range []models.BookingStatus{
		models.BookingStatusBooked,
		models.BookingStatusPicked,
		models.BookingStatusInTransit,
	} {
		r := &fakeRepo{booking: booking(from)}
		s := New(r, nil, 0, nil)
		_, err := s.Transition(context.Background(), 1, models.BookingStatusCancelled, "", "")
		require.NoError(t, err, "cancel from %s", from)
	}
}

func TestTransition_TerminalStatesFrozen(t *testing.T) {
	for _, from := range []models.BookingStatus{
		models.BookingStatusDelivered,
		models.BookingStatusCancelled,
	} {
		r := &fakeRepo{booking: booking(from)}
		s := New(r, nil, 0, nil)
		_, err := s.Transition(context.Background(), 1, models.BookingStatusCancelled, "", "")
		require.ErrorIs(t, err, ErrInvalidTransition, "from %s", from)
	}
}

func TestTransition_UnknownStatusRejected(t *testing.T) {
	r := &fakeRepo{booking: booking(models.BookingStatusBooked)}
	s := New(r, nil, 0, nil)

	_, err := s.Transition(context.Background(), 1, models.BookingStatus("teleported"), "", "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Empty(t, r.applied)
}

func TestTransition_NotFoundPassesThrough(t *testing.T) {
	r := &fakeRepo{getErr: pgbooking.ErrNotFound}
	s := New(r, nil, 0, nil)

	_, err := s.Transition(context.Background(), 1, models.BookingStatusPicked, "", "")
	require.ErrorIs(t, err, pgbooking.ErrNotFound)
}

func TestTransition_CannedDefaults(t *testing.T) {
	r := &fakeRepo{booking: booking(models.BookingStatusBooked)}
	s := New(r, nil, 0, nil)

	ev, err := s.Transition(context.Background(), 1, models.BookingStatusInTransit, "", "")
	require.NoError(t, err)
	require.Equal(t, "Transit hub", ev.Location)
	require.Equal(t, "Package in transit", ev.Note)
}

func TestTransition_EmitsBookingAndDashboardEvents(t *testing.T) {
	r := &fakeRepo{booking: booking(models.BookingStatusBooked)}
	em := &fakeEmitter{}
	s := New(r, nil, 0, em)

	_, err := s.Transition(context.Background(), 1, models.BookingStatusPicked, "", "")
	require.NoError(t, err)
	require.Len(t, em.evs, 2)

	require.Equal(t, events.TypeBooking, em.evs[0].Type)
	require.Equal(t, events.ActionUpdate, em.evs[0].Action)
	require.Equal(t, dispatch.User(42), em.targets[0])

	var payload struct {
		Status models.BookingStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(em.evs[0].Data, &payload))
	require.Equal(t, models.BookingStatusPicked, payload.Status)

	require.Equal(t, events.TypeDashboard, em.evs[1].Type)
	require.Equal(t, dispatch.Role("admin"), em.targets[1])
}

func TestTransition_PersistFailureSkipsEmission(t *testing.T) {
	r := &fakeRepo{booking: booking(models.BookingStatusBooked), applyErr: pgbooking.ErrNotFound}
	em := &fakeEmitter{}
	s := New(r, nil, 0, em)

	_, err := s.Transition(context.Background(), 1, models.BookingStatusPicked, "", "")
	require.Error(t, err)
	require.Empty(t, em.evs)
}

type fakeCache struct {
	m map[string][]byte
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}
func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}
func (c *fakeCache) Invalidate(ctx context.Context, key string) error {
	delete(c.m, key)
	return nil
}

func TestGet_CacheHit(t *testing.T) {
	c := &fakeCache{m: map[string][]byte{}}
	want := booking(models.BookingStatusInTransit)
	b, _ := json.Marshal(want)
	c.m["booking:1:current"] = b

	// repo с getErr: кэш-хит не должен трогать БД
	s := New(&fakeRepo{getErr: pgbooking.ErrNotFound}, c, 10*time.Minute, nil)
	got, err := s.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.Status, got.Status)
}

func TestTransition_InvalidatesCurrentCache(t *testing.T) {
	c := &fakeCache{m: map[string][]byte{"booking:1:current": []byte("{}")}}
	r := &fakeRepo{booking: booking(models.BookingStatusBooked)}
	s := New(r, c, 10*time.Minute, nil)

	_, err := s.Transition(context.Background(), 1, models.BookingStatusPicked, "", "")
	require.NoError(t, err)
	_, ok := c.m["booking:1:current"]
	require.False(t, ok)
}

func TestCreate_Validates(t *testing.T) {
	s := New(&fakeRepo{}, nil, 0, nil)
	_, err := s.Create(context.Background(), models.BookingCreateInput{UserID: 1})
	require.Error(t, err)
	_, err = s.Create(context.Background(), models.BookingCreateInput{TrackNumber: "X"})
	require.Error(t, err)
}

func TestCreate_EmitsNewEvent(t *testing.T) {
	em := &fakeEmitter{}
	s := New(&fakeRepo{}, nil, 0, em)

	b, err := s.Create(context.Background(), models.BookingCreateInput{UserID: 9, TrackNumber: "CRG-9"})
	require.NoError(t, err)
	require.Equal(t, models.BookingStatusBooked, b.Status)
	require.Len(t, em.evs, 2)
	require.Equal(t, events.ActionNew, em.evs[0].Action)
}
