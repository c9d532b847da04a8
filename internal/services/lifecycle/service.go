// Package lifecycle validates and records booking status transitions and
// emits the booking/dashboard events they produce.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/cache"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/dispatch"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/events"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/models"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/storage/pgbooking"
	"github.com/pkg/errors"
)

// ErrInvalidTransition: запрошенный статус не продвигает жизненный цикл
// вперёд и не является cancelled из нетерминального состояния.
var ErrInvalidTransition = errors.New("invalid status transition")

type Repository interface {
	CreateBooking(ctx context.Context, in models.BookingCreateInput) (*models.Booking, error)
	GetBookingByID(ctx context.Context, id uint64) (*models.Booking, error)
	ApplyStatusUpdate(ctx context.Context, upd pgbooking.StatusUpdate) error
	ListTrackingEvents(ctx context.Context, bookingID uint64, limit, offset int) ([]*models.TrackingEvent, error)
}

type Emitter interface {
	Emit(ev events.Event, target dispatch.Target)
}

// canned location/note, используются когда клиент их не прислал
var cannedLocation = map[models.BookingStatus]string{
	models.BookingStatusBooked:    "Origin branch",
	models.BookingStatusPicked:    "Pickup point",
	models.BookingStatusInTransit: "Transit hub",
	models.BookingStatusDelivered: "Destination",
	models.BookingStatusCancelled: "Service center",
}

var cannedNote = map[models.BookingStatus]string{
	models.BookingStatusBooked:    "Booking confirmed",
	models.BookingStatusPicked:    "Package picked up",
	models.BookingStatusInTransit: "Package in transit",
	models.BookingStatusDelivered: "Package delivered",
	models.BookingStatusCancelled: "Booking cancelled",
}

type Service struct {
	repo       Repository
	cache      cache.Store
	currentTTL time.Duration
	emitter    Emitter
}

func New(repo Repository, c cache.Store, currentTTL time.Duration, emitter Emitter) *Service {
	return &Service{repo: repo, cache: c, currentTTL: currentTTL, emitter: emitter}
}

func (s *Service) Create(ctx context.Context, in models.BookingCreateInput) (*models.Booking, error) {
	if in.TrackNumber == "" {
		return nil, errors.New("trackNumber is required")
	}
	if in.UserID == 0 {
		return nil, errors.New("userId is required")
	}
	b, err := s.repo.CreateBooking(ctx, in)
	if err != nil {
		return nil, err
	}
	s.emitBookingEvents(b, events.ActionNew)
	return b, nil
}

// Transition validates the requested status against the current one and, on
// success, persists the new status with exactly one tracking event, then
// emits a booking update. Emission is fire-and-forget: the caller never
// blocks on delivery.
//
// The order check is "strictly greater", not "next in sequence": skips like
// booked → delivered are accepted (manual correction workflows rely on it).
func (s *Service) Transition(ctx context.Context, bookingID uint64, status models.BookingStatus, location, note string) (*models.TrackingEvent, error) {
	if !status.Valid() {
		return nil, errors.Wrapf(ErrInvalidTransition, "unknown status %q", status)
	}

	b, err := s.repo.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if err := validate(b.Status, status); err != nil {
		return nil, err
	}

	if location == "" {
		location = cannedLocation[status]
	}
	if note == "" {
		note = cannedNote[status]
	}

	ev := &models.TrackingEvent{
		BookingID: bookingID,
		Status:    status,
		Location:  location,
		Note:      note,
		EventTime: time.Now().UTC(),
	}

	if err := s.repo.ApplyStatusUpdate(ctx, pgbooking.StatusUpdate{
		BookingID: bookingID,
		Status:    status,
		Event:     ev,
	}); err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, currentKey(bookingID))
	}

	b.Status = status
	s.emitBookingEvents(b, events.ActionUpdate)

	return ev, nil
}

func validate(from, to models.BookingStatus) error {
	if from.Terminal() {
		return errors.Wrapf(ErrInvalidTransition, "%s is terminal", from)
	}
	if to == models.BookingStatusCancelled {
		return nil
	}
	if to.Rank() > from.Rank() {
		return nil
	}
	return errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
}

func (s *Service) Get(ctx context.Context, id uint64) (*models.Booking, error) {
	if s.cache != nil && s.currentTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, currentKey(id)); err == nil && ok {
			var out models.Booking
			if json.Unmarshal(b, &out) == nil {
				return &out, nil
			}
		}
	}
	out, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && s.currentTTL > 0 {
		if b, err := json.Marshal(out); err == nil {
			_ = s.cache.Set(ctx, currentKey(id), b, s.currentTTL)
		}
	}
	return out, nil
}

func (s *Service) History(ctx context.Context, bookingID uint64, limit, offset int) ([]*models.TrackingEvent, error) {
	return s.repo.ListTrackingEvents(ctx, bookingID, limit, offset)
}

func (s *Service) emitBookingEvents(b *models.Booking, action events.Action) {
	if s.emitter == nil {
		return
	}
	ev, err := events.New(events.TypeBooking, action, map[string]any{
		"bookingId":   b.ID,
		"trackNumber": b.TrackNumber,
		"status":      b.Status,
	})
	if err != nil {
		slog.Error("build booking event", "err", err, "bookingId", b.ID)
		return
	}
	s.emitter.Emit(ev, dispatch.User(b.UserID))

	// Дашборды админов следят за всеми букингами.
	dash, err := events.New(events.TypeDashboard, events.ActionUpdate, nil)
	if err == nil {
		s.emitter.Emit(dash, dispatch.Role("admin"))
	}
}

func currentKey(id uint64) string {
	return fmt.Sprintf("booking:%d:current", id)
}
