// Package unread maintains per-user unread counts for notifications and
// messages. Counts are always derived from persisted read flags; the redis
// entry is a TTL cache on top, never the source of truth.
package unread

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/cache"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/dispatch"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/events"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	InsertMessage(ctx context.Context, m *models.Message) error
	MarkRead(ctx context.Context, ch models.Channel, itemID uint64) error
	MarkAllRead(ctx context.Context, ch models.Channel, userID uint64) (int64, error)
	CountUnread(ctx context.Context, ch models.Channel, userID uint64) (int, error)
	ListNotifications(ctx context.Context, userID uint64, limit, offset int) ([]*models.Notification, error)
	ListMessages(ctx context.Context, userID uint64, limit, offset int) ([]*models.Message, error)
}

type Emitter interface {
	Emit(ev events.Event, target dispatch.Target)
}

type Service struct {
	repo     Repository
	cache    cache.Store
	countTTL time.Duration
	emitter  Emitter
}

func New(repo Repository, c cache.Store, countTTL time.Duration, emitter Emitter) *Service {
	return &Service{repo: repo, cache: c, countTTL: countTTL, emitter: emitter}
}

// Notify persists a notification and emits notification/new to the recipient.
func (s *Service) Notify(ctx context.Context, n *models.Notification) error {
	if n.UserID == 0 {
		return errors.New("userId is required")
	}
	if n.Body == "" {
		return errors.New("body is required")
	}
	if err := s.repo.InsertNotification(ctx, n); err != nil {
		return err
	}
	s.invalidateCount(ctx, models.ChannelNotification, n.UserID)
	s.emit(models.ChannelNotification, events.ActionNew, n.UserID)
	return nil
}

// Send persists a message and emits message/new to the recipient.
func (s *Service) Send(ctx context.Context, m *models.Message) error {
	if m.UserID == 0 {
		return errors.New("userId is required")
	}
	if m.Body == "" {
		return errors.New("body is required")
	}
	if m.Priority == "" {
		m.Priority = models.MessagePriorityNormal
	}
	if err := s.repo.InsertMessage(ctx, m); err != nil {
		return err
	}
	s.invalidateCount(ctx, models.ChannelMessage, m.UserID)
	s.emit(models.ChannelMessage, events.ActionNew, m.UserID)
	return nil
}

// MarkRead is idempotent: re-marking a read item succeeds silently and
// leaves the counter untouched.
func (s *Service) MarkRead(ctx context.Context, ch models.Channel, itemID, userID uint64) error {
	if !ch.Valid() {
		return errors.Errorf("unknown channel %q", ch)
	}
	if err := s.repo.MarkRead(ctx, ch, itemID); err != nil {
		return err
	}
	s.invalidateCount(ctx, ch, userID)
	return nil
}

// MarkAllRead flips every unread row in one logical step. No per-item
// events: a single counter-refresh signal goes to the user.
func (s *Service) MarkAllRead(ctx context.Context, ch models.Channel, userID uint64) error {
	if !ch.Valid() {
		return errors.Errorf("unknown channel %q", ch)
	}
	if _, err := s.repo.MarkAllRead(ctx, ch, userID); err != nil {
		return err
	}
	s.invalidateCount(ctx, ch, userID)
	s.emit(ch, events.ActionUpdate, userID)
	return nil
}

// Count returns the authoritative unread count, through the TTL cache.
func (s *Service) Count(ctx context.Context, ch models.Channel, userID uint64) (int, error) {
	if !ch.Valid() {
		return 0, errors.Errorf("unknown channel %q", ch)
	}
	if s.cache != nil && s.countTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, countKey(ch, userID)); err == nil && ok {
			if n, err := strconv.Atoi(string(b)); err == nil {
				return n, nil
			}
		}
	}
	n, err := s.repo.CountUnread(ctx, ch, userID)
	if err != nil {
		return 0, err
	}
	if s.cache != nil && s.countTTL > 0 {
		_ = s.cache.Set(ctx, countKey(ch, userID), []byte(strconv.Itoa(n)), s.countTTL)
	}
	return n, nil
}

func (s *Service) ListNotifications(ctx context.Context, userID uint64, limit, offset int) ([]*models.Notification, error) {
	return s.repo.ListNotifications(ctx, userID, limit, offset)
}

func (s *Service) ListMessages(ctx context.Context, userID uint64, limit, offset int) ([]*models.Message, error) {
	return s.repo.ListMessages(ctx, userID, limit, offset)
}

func (s *Service) invalidateCount(ctx context.Context, ch models.Channel, userID uint64) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, countKey(ch, userID))
}

func (s *Service) emit(ch models.Channel, action events.Action, userID uint64) {
	if s.emitter == nil {
		return
	}
	t := events.TypeNotification
	if ch == models.ChannelMessage {
		t = events.TypeMessage
	}
	ev, err := events.New(t, action, nil)
	if err != nil {
		slog.Error("build inbox event", "err", err, "channel", ch)
		return
	}
	s.emitter.Emit(ev, dispatch.User(userID))
}

func countKey(ch models.Channel, userID uint64) string {
	return fmt.Sprintf("unread:%s:%d", ch, userID)
}
