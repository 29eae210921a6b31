package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event. System jobs leave UserID nil.
type ActorRef struct {
	UserID *uuid.UUID `json:"userId,omitempty"`
	Role   string     `json:"role,omitempty"`
}

// SystemActor marks events raised by background jobs.
func SystemActor(job string) *ActorRef {
	return &ActorRef{Role: "system:" + job}
}

// UserActor marks events raised on behalf of a buyer or operator.
func UserActor(userID uuid.UUID, role string) *ActorRef {
	return &ActorRef{UserID: &userID, Role: role}
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
