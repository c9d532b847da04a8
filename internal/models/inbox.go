package models

import "time"

// Channel разделяет два вида входящих: уведомления и сообщения.
type Channel string

const (
	ChannelNotification Channel = "notification"
	ChannelMessage      Channel = "message"
)

func (c Channel) Valid() bool {
	return c == ChannelNotification || c == ChannelMessage
}

type MessagePriority string

const (
	MessagePriorityNormal MessagePriority = "normal"
	MessagePriorityHigh   MessagePriority = "high"
)

type Notification struct {
	ID        uint64    `json:"id"`
	UserID    uint64    `json:"userId"`
	SenderID  *uint64   `json:"senderId,omitempty"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

type Message struct {
	ID        uint64          `json:"id"`
	UserID    uint64          `json:"userId"`
	SenderID  *uint64         `json:"senderId,omitempty"`
	Body      string          `json:"body"`
	Priority  MessagePriority `json:"priority"`
	TicketID  *uint64         `json:"ticketId,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"createdAt"`
}
