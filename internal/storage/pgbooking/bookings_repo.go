package pgbooking

import (
	"context"
	"time"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// StatusUpdate применяет принятый переход: новый статус букинга плюс ровно
// одно трекинг-событие, в одной транзакции.
type StatusUpdate struct {
	BookingID uint64
	Status    models.BookingStatus
	Event     *models.TrackingEvent
}

func (s *Storage) CreateBooking(ctx context.Context, in models.BookingCreateInput) (*models.Booking, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id uint64
	err = tx.QueryRow(ctx, `
INSERT INTO bookings (user_id, track_number, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4)
ON CONFLICT (track_number)
DO UPDATE SET updated_at = bookings.updated_at
RETURNING id
`, in.UserID, in.TrackNumber, models.BookingStatusBooked, now).Scan(&id)
	if err != nil {
		return nil, errors.Wrap(err, "insert booking")
	}

	// Начальное событие; при повторном создании дедуп-индекс его не задвоит.
	_, err = tx.Exec(ctx, `
INSERT INTO tracking_events (booking_id, status, location, note, event_time, created_at)
VALUES ($1,$2,$3,$4,$5, now())
ON CONFLICT (booking_id, status, event_time, location, note) DO NOTHING
`, id, models.BookingStatusBooked, "", "booking created", now)
	if err != nil {
		return nil, errors.Wrap(err, "insert initial event")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetBookingByID(ctx, id)
}

func (s *Storage) GetBookingByID(ctx context.Context, id uint64) (*models.Booking, error) {
	var b models.Booking
	err := s.db.QueryRow(ctx, `
SELECT id, user_id, track_number, status, created_at, updated_at
FROM bookings
WHERE id = $1
`, id).Scan(&b.ID, &b.UserID, &b.TrackNumber, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "booking %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select booking")
	}
	return &b, nil
}

func (s *Storage) ApplyStatusUpdate(ctx context.Context, upd StatusUpdate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1
`, upd.BookingID, upd.Status)
	if err != nil {
		return errors.Wrap(err, "update booking status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrNotFound, "booking %d", upd.BookingID)
	}

	if e := upd.Event; e != nil {
		_, err := tx.Exec(ctx, `
INSERT INTO tracking_events (booking_id, status, location, note, event_time, created_at)
VALUES ($1,$2,$3,$4,$5, now())
ON CONFLICT (booking_id, status, event_time, location, note) DO NOTHING
`, upd.BookingID, e.Status, e.Location, e.Note, e.EventTime.UTC())
		if err != nil {
			return errors.Wrap(err, "insert tracking event")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func (s *Storage) ListTrackingEvents(ctx context.Context, bookingID uint64, limit, offset int) ([]*models.TrackingEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, booking_id, status, location, note, event_time, created_at
FROM tracking_events
WHERE booking_id = $1
ORDER BY event_time DESC
LIMIT $2 OFFSET $3
`, bookingID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.TrackingEvent
	for rows.Next() {
		var e models.TrackingEvent
		if err := rows.Scan(
			&e.ID, &e.BookingID, &e.Status, &e.Location, &e.Note, &e.EventTime, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
