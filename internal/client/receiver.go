package client

import (
	"context"
	"log/slog"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/cache"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/events"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/models"
)

// invalidateKey maps every event type to the local cache key it makes stale.
// Один тип — один ключ, чтобы промах был дешёвым и предсказуемым.
var invalidateKey = map[events.Type]string{
	events.TypeNotification: "notifications",
	events.TypeMessage:      "messages",
	events.TypeBooking:      "bookings",
	events.TypeVehicle:      "vehicles",
	events.TypeGPS:          "live-tracking",
	events.TypeDashboard:    "dashboard",
}

// CountSource answers the authoritative unread count; locally incremented
// counts are only provisional until this is consulted.
type CountSource interface {
	Count(ctx context.Context, ch models.Channel, userID uint64) (int, error)
}

// Alerter is fed fresh unread totals after each inbox event.
type Alerter interface {
	Observe(notifUnread, msgUnread int)
}

// Receiver wires a subscription into the local cache and the alert chain.
type Receiver struct {
	userID  uint64
	store   cache.Store
	counts  CountSource
	alerter Alerter
}

func NewReceiver(sub *Subscription, store cache.Store, counts CountSource, alerter Alerter) *Receiver {
	r := &Receiver{
		userID:  sub.cfg.UserID,
		store:   store,
		counts:  counts,
		alerter: alerter,
	}
	for t := range invalidateKey {
		sub.On(t, r.handle)
	}
	return r
}

func (r *Receiver) handle(ev events.Event) {
	ctx := context.Background()
	if key, ok := invalidateKey[ev.Type]; ok && r.store != nil {
		if err := r.store.Invalidate(ctx, key); err != nil {
			slog.Warn("cache invalidation failed", "key", key, "err", err)
		}
	}
	if ev.Type != events.TypeNotification && ev.Type != events.TypeMessage {
		return
	}
	if r.counts == nil || r.alerter == nil {
		return
	}
	notif, err := r.counts.Count(ctx, models.ChannelNotification, r.userID)
	if err != nil {
		slog.Warn("unread count fetch failed", "channel", models.ChannelNotification, "err", err)
		return
	}
	msg, err := r.counts.Count(ctx, models.ChannelMessage, r.userID)
	if err != nil {
		slog.Warn("unread count fetch failed", "channel", models.ChannelMessage, "err", err)
		return
	}
	r.alerter.Observe(notif, msg)
}
