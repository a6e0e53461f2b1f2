package broker

import (
	"time"

	"github.com/google/uuid"
)

// Event is one published message as persisted for replay. Created once per
// publish per channel, never mutated afterwards.
type Event struct {
	ID        string         `json:"id"`
	AppID     string         `json:"app_id"`
	Channel   string         `json:"channel"`
	Name      string         `json:"name"`
	OwnerID   string         `json:"owner_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload"`
	Date      string         `json:"date,omitempty"`
}

// NewEvent builds an immutable event record with a fresh unique id and
// timestamp. Date is the human-readable form of the timestamp.
func NewEvent(appID, channel, name, ownerID string, payload map[string]any) *Event {
	now := time.Now().UTC()
	return &Event{
		ID:        uuid.NewString(),
		AppID:     appID,
		Channel:   channel,
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: now,
		Payload:   payload,
		Date:      now.Format(time.RFC1123),
	}
}
