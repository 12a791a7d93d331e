// Package websocketdto is the group ride wire vocabulary shared by the
// group-service and the rider client.
package websocketdto

import (
	"strings"
	"time"

	"group-ride/internal/membership"
	"group-ride/internal/proximity"
)

// WebSocket message types
const (
	TypeJoinGroup         = "join_group"
	TypeLocationUpdate    = "location_update"
	TypeChatMessage       = "chat_message"
	TypeLeaveGroup        = "leave_group"
	TypeJoined            = "joined"
	TypeGroupMemberUpdate = "group_member_update"
	TypeChatBroadcast     = "chat_broadcast"
	TypeError             = "error"
)

type ChatKind string

const (
	ChatText     ChatKind = "text"
	ChatLocation ChatKind = "location"
	ChatAlert    ChatKind = "alert"
)

// MaxChatLength caps a chat body in runes.
const MaxChatLength = 1000

// NormalizeChatBody trims surrounding whitespace and truncates to
// MaxChatLength runes. Both ends apply it so an echo matches its draft.
func NormalizeChatBody(body string) string {
	body = strings.TrimSpace(body)
	if runes := []rune(body); len(runes) > MaxChatLength {
		body = string(runes[:MaxChatLength])
	}
	return body
}

func (k ChatKind) Valid() bool {
	switch k {
	case ChatText, ChatLocation, ChatAlert:
		return true
	}
	return false
}

// Message is any frame of the protocol.
type Message interface {
	Type() string
}

// ClientMessage is a frame sent by a rider to the group-service.
type ClientMessage interface {
	Message
	clientMessage()
}

// ServerMessage is a frame sent by the group-service to a rider.
type ServerMessage interface {
	Message
	serverMessage()
}

// Client -> server

type JoinGroup struct {
	GroupID string `json:"groupId"`
	Token   string `json:"token"`
}

// LocationUpdate never carries a membership status: status belongs to the host.
type LocationUpdate struct {
	GroupID   string  `json:"groupId"`
	UserID    string  `json:"userId"`
	UserName  string  `json:"userName"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Distance  float64 `json:"distance"`
	Duration  int64   `json:"duration"`
	IsRiding  bool    `json:"isRiding"`
	Timestamp int64   `json:"timestamp"`
}

type ChatDraft struct {
	GroupID     string   `json:"groupId"`
	Message     string   `json:"message"`
	MessageType ChatKind `json:"messageType"`
}

type LeaveGroup struct {
	GroupID string `json:"groupId"`
}

// Server -> client

type Joined struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

// GroupMemberUpdate is the full roster as seen by its recipient. Timestamp
// grows monotonically per group and orders snapshots across channels.
type GroupMemberUpdate struct {
	GroupID   string         `json:"groupId"`
	Members   []MemberRecord `json:"members"`
	Timestamp int64          `json:"timestamp"`
}

type ChatBroadcast struct {
	GroupID     string      `json:"groupId"`
	ChatMessage ChatMessage `json:"chatMessage"`
}

type Error struct {
	Message string `json:"message"`
}

func (JoinGroup) Type() string         { return TypeJoinGroup }
func (LocationUpdate) Type() string    { return TypeLocationUpdate }
func (ChatDraft) Type() string         { return TypeChatMessage }
func (LeaveGroup) Type() string        { return TypeLeaveGroup }
func (Joined) Type() string            { return TypeJoined }
func (GroupMemberUpdate) Type() string { return TypeGroupMemberUpdate }
func (ChatBroadcast) Type() string     { return TypeChatBroadcast }
func (Error) Type() string             { return TypeError }

func (JoinGroup) clientMessage()      {}
func (LocationUpdate) clientMessage() {}
func (ChatDraft) clientMessage()      {}
func (LeaveGroup) clientMessage()     {}

func (Joined) serverMessage()            {}
func (GroupMemberUpdate) serverMessage() {}
func (ChatBroadcast) serverMessage()     {}
func (Error) serverMessage()             {}

// MemberRecord is one rider's live state within a group. Latitude and
// Longitude stay nil until the first fix.
type MemberRecord struct {
	UserID           string            `json:"userId"`
	UserName         string            `json:"userName"`
	UserProfileImage string            `json:"userProfileImage,omitempty"`
	Latitude         *float64          `json:"latitude"`
	Longitude        *float64          `json:"longitude"`
	Speed            float64           `json:"speed"`
	Distance         float64           `json:"distance"`
	Duration         int64             `json:"duration"`
	IsRiding         bool              `json:"isRiding"`
	LastUpdated      int64             `json:"lastUpdated"`
	Status           membership.Status `json:"status"`
	IsHost           bool              `json:"isHost"`
}

func (m MemberRecord) Membership() membership.Member {
	return membership.Member{UserID: m.UserID, Status: m.Status, IsHost: m.IsHost}
}

func (m MemberRecord) Proximity() proximity.Member {
	return proximity.Member{UserID: m.UserID, Latitude: m.Latitude, Longitude: m.Longitude}
}

type ChatMessage struct {
	ID               int64     `json:"id"`
	GroupID          string    `json:"groupId,omitempty"`
	UserID           string    `json:"userId"`
	UserName         string    `json:"userName"`
	UserProfileImage string    `json:"userProfileImage,omitempty"`
	Message          string    `json:"message"`
	MessageType      ChatKind  `json:"messageType"`
	CreatedAt        time.Time `json:"createdAt"`
}
