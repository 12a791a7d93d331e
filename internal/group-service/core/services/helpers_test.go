package services

import (
	"sync"
	"testing"
	"time"

	"group-ride/internal/group-service/metric"
	"group-ride/internal/membership"
	"group-ride/internal/mylogger"
	"group-ride/internal/websocketdto"
)

type fakeSub struct {
	id string

	mu     sync.Mutex
	sent   []websocketdto.ServerMessage
	full   bool
	closed bool
	reason string
}

func newSub(id string) *fakeSub {
	return &fakeSub{id: id}
}

func (f *fakeSub) ConnID() string { return f.id }

func (f *fakeSub) Send(msg websocketdto.ServerMessage) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.full {
		return false
	}
	f.sent = append(f.sent, msg)
	return true
}

func (f *fakeSub) Close(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.reason = reason
}

func (f *fakeSub) setFull(full bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.full = full
}

func (f *fakeSub) isClosed() (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.reason
}

func (f *fakeSub) messages() []websocketdto.ServerMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]websocketdto.ServerMessage(nil), f.sent...)
}

func (f *fakeSub) updates() []websocketdto.GroupMemberUpdate {
	var out []websocketdto.GroupMemberUpdate
	for _, m := range f.messages() {
		if u, ok := m.(websocketdto.GroupMemberUpdate); ok {
			out = append(out, u)
		}
	}
	return out
}

func (f *fakeSub) chats() []websocketdto.ChatMessage {
	var out []websocketdto.ChatMessage
	for _, m := range f.messages() {
		if c, ok := m.(websocketdto.ChatBroadcast); ok {
			out = append(out, c.ChatMessage)
		}
	}
	return out
}

func (f *fakeSub) lastRoster(t *testing.T) websocketdto.GroupMemberUpdate {
	t.Helper()
	ups := f.updates()
	if len(ups) == 0 {
		t.Fatalf("%s received no roster", f.id)
	}
	return ups[len(ups)-1]
}

func userIDs(members []websocketdto.MemberRecord) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids
}

func newTestRouter(maxMembers int) *Router {
	return NewRouter(mylogger.Discard(), metric.New(nil), maxMembers)
}

func frozenClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func record(userID string, status membership.Status, host bool) websocketdto.MemberRecord {
	return websocketdto.MemberRecord{UserID: userID, UserName: userID, Status: status, IsHost: host}
}
