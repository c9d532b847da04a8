package pgbooking

import (
	"context"
	"testing"
	"time"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "cargo_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/cargo_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func TestPGBooking_BookingFlow(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	b, err := st.CreateBooking(ctx, models.BookingCreateInput{UserID: 1, TrackNumber: "CRG-001"})
	require.NoError(t, err)
	require.NotZero(t, b.ID)
	require.Equal(t, models.BookingStatusBooked, b.Status)

	// повторное создание того же трек-номера не плодит записей
	again, err := st.CreateBooking(ctx, models.BookingCreateInput{UserID: 1, TrackNumber: "CRG-001"})
	require.NoError(t, err)
	require.Equal(t, b.ID, again.ID)

	_, err = st.GetBookingByID(ctx, 999999)
	require.ErrorIs(t, err, ErrNotFound)

	now := time.Now().UTC()
	err = st.ApplyStatusUpdate(ctx, StatusUpdate{
		BookingID: b.ID,
		Status:    models.BookingStatusInTransit,
		Event: &models.TrackingEvent{
			BookingID: b.ID,
			Status:    models.BookingStatusInTransit,
			Location:  "Transit hub",
			Note:      "departed",
			EventTime: now,
		},
	})
	require.NoError(t, err)

	got, err := st.GetBookingByID(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, models.BookingStatusInTransit, got.Status)

	evs, err := st.ListTrackingEvents(ctx, b.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, evs, 2) // initial + transition
	require.Equal(t, models.BookingStatusInTransit, evs[0].Status)

	err = st.ApplyStatusUpdate(ctx, StatusUpdate{BookingID: 999999, Status: models.BookingStatusPicked})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPGBooking_InboxFlow(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	n := &models.Notification{UserID: 7, Body: "booking confirmed"}
	require.NoError(t, st.InsertNotification(ctx, n))
	require.NotZero(t, n.ID)

	sender := uint64(3)
	m := &models.Message{UserID: 7, SenderID: &sender, Body: "hello", Priority: models.MessagePriorityHigh}
	require.NoError(t, st.InsertMessage(ctx, m))

	cnt, err := st.CountUnread(ctx, models.ChannelNotification, 7)
	require.NoError(t, err)
	require.Equal(t, 1, cnt)

	// идемпотентный mark read
	require.NoError(t, st.MarkRead(ctx, models.ChannelNotification, n.ID))
	require.NoError(t, st.MarkRead(ctx, models.ChannelNotification, n.ID))
	cnt, err = st.CountUnread(ctx, models.ChannelNotification, 7)
	require.NoError(t, err)
	require.Equal(t, 0, cnt)

	for i := 0; i < 3; i++ {
		require.NoError(t, st.InsertMessage(ctx, &models.Message{UserID: 7, Body: "m"}))
	}
	affected, err := st.MarkAllRead(ctx, models.ChannelMessage, 7)
	require.NoError(t, err)
	require.Equal(t, int64(4), affected)

	affected, err = st.MarkAllRead(ctx, models.ChannelMessage, 7)
	require.NoError(t, err)
	require.Zero(t, affected)

	msgs, err := st.ListMessages(ctx, 7, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	require.True(t, msgs[len(msgs)-1].Read)
}

func TestPGBooking_Vehicles(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	v, err := st.CreateVehicle(ctx, "truck-1")
	require.NoError(t, err)

	at := time.Now().UTC()
	require.NoError(t, st.ApplyVehiclePositions(ctx, []models.VehiclePosition{
		{VehicleID: v.ID, Lat: 55.75, Lng: 37.62, At: at},
	}))

	vs, err := st.ListVehicles(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	require.InDelta(t, 55.75, vs[0].Lat, 1e-9)
}
