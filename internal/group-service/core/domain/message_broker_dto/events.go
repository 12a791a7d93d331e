package messagebrokerdto

import (
	"time"

	"group-ride/internal/membership"
)

const (
	MemberJoined   = "joined"
	MemberLeft     = "left"
	MemberApproved = "approved"
	MemberRejected = "rejected"
)

// MemberEvent is published on group.<id>.member.<event>.
type MemberEvent struct {
	GroupID   string            `json:"group_id"`
	UserID    string            `json:"user_id"`
	UserName  string            `json:"user_name"`
	Event     string            `json:"event"`
	Status    membership.Status `json:"status"`
	IsHost    bool              `json:"is_host"`
	ActorID   string            `json:"actor_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ChatEvent is published on group.<id>.chat for the push notification fan-out.
type ChatEvent struct {
	GroupID     string    `json:"group_id"`
	MessageID   int64     `json:"message_id"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	Message     string    `json:"message"`
	MessageType string    `json:"message_type"`
	CreatedAt   time.Time `json:"created_at"`
}

type GroupEnded struct {
	GroupID   string    `json:"group_id"`
	HostID    string    `json:"host_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
