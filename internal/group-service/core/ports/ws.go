package ports

import "group-ride/internal/websocketdto"

// Subscriber is one joined websocket connection.
type Subscriber interface {
	ConnID() string
	// Send queues msg without blocking. False means the queue is full or the
	// connection is gone.
	Send(msg websocketdto.ServerMessage) bool
	// Close sends an error frame carrying reason, when not empty, and closes the
	// connection.
	Close(reason string)
}
