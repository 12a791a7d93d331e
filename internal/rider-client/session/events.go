package session

import (
	"group-ride/internal/websocketdto"
)

// Event is what the manager reports to its owner. The set is closed.
type Event interface {
	isEvent()
}

type Joined struct {
	GroupID string
	UserID  string
}

type MemberUpdate struct {
	Snapshot websocketdto.GroupMemberUpdate
}

type ChatBroadcast struct {
	Message websocketdto.ChatMessage
}

// ServerError carries an error frame from the server or a local terminal
// failure such as an exhausted reconnect budget.
type ServerError struct {
	Message string
}

// Disconnected is sent once per outage, before reconnecting starts.
type Disconnected struct {
	Err error
}

// Closed ends a session for good. No event of its generation follows.
type Closed struct{}

func (Joined) isEvent()        {}
func (MemberUpdate) isEvent()  {}
func (ChatBroadcast) isEvent() {}
func (ServerError) isEvent()   {}
func (Disconnected) isEvent()  {}
func (Closed) isEvent()        {}

// Envelope tags an event with the generation of the Connect that produced it.
type Envelope struct {
	Gen   uint64
	Event Event
}
