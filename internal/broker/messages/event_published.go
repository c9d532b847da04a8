package messages

import (
	"strconv"
	"time"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/events"
)

// EventPublished is the envelope carried on the events topic so every API
// node can fan the event out to its local connection registry. Messages are
// keyed by target (PartitionKey), which pins one target to one partition
// and preserves emission order per target.
type EventPublished struct {
	Event events.Event `json:"event"`

	// Ровно одно из двух: конкретный пользователь или broadcast по роли.
	TargetUserID uint64 `json:"target_user_id,omitempty"`
	TargetRole   string `json:"target_role,omitempty"`

	EmittedAt time.Time `json:"emitted_at"`
}

func (m EventPublished) PartitionKey() []byte {
	if m.TargetRole != "" {
		return []byte("role:" + m.TargetRole)
	}
	return []byte("user:" + strconv.FormatUint(m.TargetUserID, 10))
}
