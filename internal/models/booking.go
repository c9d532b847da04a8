package models

import "time"

// Статусы жизненного цикла букинга (полный порядок, cancelled — терминальный).
type BookingStatus string

const (
	BookingStatusBooked    BookingStatus = "booked"
	BookingStatusPicked    BookingStatus = "picked"
	BookingStatusInTransit BookingStatus = "in_transit"
	BookingStatusDelivered BookingStatus = "delivered"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// statusRank задаёт порядок booked < picked < in_transit < delivered.
// cancelled в порядке не участвует: он достижим из любого нетерминального статуса.
var statusRank = map[BookingStatus]int{
	BookingStatusBooked:    1,
	BookingStatusPicked:    2,
	BookingStatusInTransit: 3,
	BookingStatusDelivered: 4,
}

func (s BookingStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok || s == BookingStatusCancelled
}

// Rank returns the position of s in the forward order, 0 for cancelled/unknown.
func (s BookingStatus) Rank() int {
	return statusRank[s]
}

// Terminal reports whether no further transition may leave s.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusDelivered || s == BookingStatusCancelled
}

type Booking struct {
	ID          uint64        `json:"id"`
	UserID      uint64        `json:"userId"` // владелец букинга, адресат booking-событий
	TrackNumber string        `json:"trackNumber"`
	Status      BookingStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

type TrackingEvent struct {
	ID        uint64        `json:"id"`
	BookingID uint64        `json:"bookingId"`
	Status    BookingStatus `json:"status"`
	Location  string        `json:"location,omitempty"`
	Note      string        `json:"note,omitempty"`
	EventTime time.Time     `json:"eventTime"`
	CreatedAt time.Time     `json:"createdAt"`
}

type BookingCreateInput struct {
	UserID      uint64 `json:"userId"`
	TrackNumber string `json:"trackNumber"`
}
