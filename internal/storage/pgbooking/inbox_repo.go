package pgbooking

import (
	"context"
	"time"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/models"
	"github.com/pkg/errors"
)

// tableFor маппит канал на таблицу. Белый список: имена таблиц нельзя
// подставлять в SQL из внешнего ввода напрямую.
func tableFor(ch models.Channel) (string, error) {
	switch ch {
	case models.ChannelNotification:
		return "notifications", nil
	case models.ChannelMessage:
		return "messages", nil
	default:
		return "", errors.Errorf("unknown channel %q", ch)
	}
}

func (s *Storage) InsertNotification(ctx context.Context, n *models.Notification) error {
	now := time.Now().UTC()
	err := s.db.QueryRow(ctx, `
INSERT INTO notifications (user_id, sender_id, body, read, created_at)
VALUES ($1,$2,$3,FALSE,$4)
RETURNING id, created_at
`, n.UserID, n.SenderID, n.Body, now).Scan(&n.ID, &n.CreatedAt)
	return errors.Wrap(err, "insert notification")
}

func (s *Storage) InsertMessage(ctx context.Context, m *models.Message) error {
	if m.Priority == "" {
		m.Priority = models.MessagePriorityNormal
	}
	now := time.Now().UTC()
	err := s.db.QueryRow(ctx, `
INSERT INTO messages (user_id, sender_id, body, priority, ticket_id, read, created_at)
VALUES ($1,$2,$3,$4,$5,FALSE,$6)
RETURNING id, created_at
`, m.UserID, m.SenderID, m.Body, m.Priority, m.TicketID, now).Scan(&m.ID, &m.CreatedAt)
	return errors.Wrap(err, "insert message")
}

// MarkRead идемпотентен: повторная пометка уже прочитанной записи — no-op.
func (s *Storage) MarkRead(ctx context.Context, ch models.Channel, itemID uint64) error {
	table, err := tableFor(ch)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `UPDATE `+table+` SET read = TRUE WHERE id = $1 AND read = FALSE`, itemID)
	return errors.Wrap(err, "mark read")
}

// MarkAllRead помечает все непрочитанные записи пользователя одним шагом.
func (s *Storage) MarkAllRead(ctx context.Context, ch models.Channel, userID uint64) (int64, error) {
	table, err := tableFor(ch)
	if err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx, `UPDATE `+table+` SET read = TRUE WHERE user_id = $1 AND read = FALSE`, userID)
	if err != nil {
		return 0, errors.Wrap(err, "mark all read")
	}
	return tag.RowsAffected(), nil
}

func (s *Storage) CountUnread(ctx context.Context, ch models.Channel, userID uint64) (int, error) {
	table, err := tableFor(ch)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE user_id = $1 AND read = FALSE`, userID).Scan(&n)
	return n, errors.Wrap(err, "count unread")
}

func (s *Storage) ListNotifications(ctx context.Context, userID uint64, limit, offset int) ([]*models.Notification, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := s.db.Query(ctx, `
SELECT id, user_id, sender_id, body, read, created_at
FROM notifications
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select notifications")
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.SenderID, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		out = append(out, &n)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) ListMessages(ctx context.Context, userID uint64, limit, offset int) ([]*models.Message, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := s.db.Query(ctx, `
SELECT id, user_id, sender_id, body, priority, ticket_id, read, created_at
FROM messages
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select messages")
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.SenderID, &m.Body, &m.Priority, &m.TicketID, &m.Read, &m.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		out = append(out, &m)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
