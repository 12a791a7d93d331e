// Package chatlog keeps the rider's view of the group chat: optimistic
// echoes of our own drafts reconciled with what the server broadcasts.
package chatlog

import (
	"time"

	"group-ride/internal/websocketdto"
)

// DefaultTTL is how long a draft may wait for its server echo.
const DefaultTTL = 15 * time.Second

type Entry struct {
	websocketdto.ChatMessage
	Pending bool
	Failed  bool
}

// Log is not safe for concurrent use; the rider controller owns it.
type Log struct {
	entries []Entry
	nextID  int64
	ttl     time.Duration
	now     func() time.Time
}

func New(ttl time.Duration) *Log {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Log{ttl: ttl, now: time.Now}
}

// AddPending appends a local shadow of a draft with a negative placeholder id.
func (l *Log) AddPending(authorID, name, body string, kind websocketdto.ChatKind) Entry {
	l.nextID--
	e := Entry{
		ChatMessage: websocketdto.ChatMessage{
			ID:          l.nextID,
			UserID:      authorID,
			UserName:    name,
			Message:     body,
			MessageType: kind,
			CreatedAt:   l.now(),
		},
		Pending: true,
	}
	l.entries = append(l.entries, e)
	return e
}

// Receive applies a server message. It reports whether the log changed.
func (l *Log) Receive(msg websocketdto.ChatMessage) bool {
	for _, e := range l.entries {
		if !e.local() && e.ID == msg.ID {
			return false
		}
	}

	for i := range l.entries {
		e := &l.entries[i]
		if !e.local() || e.UserID != msg.UserID || e.Message != msg.Message {
			continue
		}
		if !e.Pending && !e.Failed {
			continue
		}
		e.ChatMessage = msg
		e.Pending = false
		e.Failed = false
		return true
	}

	l.entries = append(l.entries, Entry{ChatMessage: msg})
	return true
}

// Expire fails drafts that never got their echo. It returns how many did.
func (l *Log) Expire(now time.Time) int {
	n := 0
	for i := range l.entries {
		e := &l.entries[i]
		if e.Pending && now.Sub(e.CreatedAt) >= l.ttl {
			e.Pending = false
			e.Failed = true
			n++
		}
	}
	return n
}

// LastID is the highest server id seen, used to page history after a gap.
func (l *Log) LastID() int64 {
	var last int64
	for _, e := range l.entries {
		if !e.local() && e.ID > last {
			last = e.ID
		}
	}
	return last
}

func (l *Log) Len() int { return len(l.entries) }

func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (e Entry) local() bool { return e.ID < 0 }
