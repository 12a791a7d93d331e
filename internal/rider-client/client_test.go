package riderclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"group-ride/internal/membership"
	"group-ride/internal/mylogger"
	"group-ride/internal/rider-client/session"
	"group-ride/internal/websocketdto"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// fakeGroupService speaks just enough of the group-service protocol.
type fakeGroupService struct {
	t      *testing.T
	mux    *http.ServeMux
	srv    *httptest.Server
	frames chan websocketdto.ClientMessage
	dials  atomic.Int32
	polls  atomic.Int32
	status atomic.Int32

	mu     sync.Mutex
	roster websocketdto.GroupMemberUpdate
	// socket runs after joined was sent; returning closes the socket.
	socket func(conn *websocket.Conn, dial int32)
	// accept refuses the websocket upgrade when it returns false.
	accept func() bool
	// joinedAs is the user id the server reads from the token.
	joinedAs string
}

func newFakeGroupService(t *testing.T, members ...websocketdto.MemberRecord) *fakeGroupService {
	t.Helper()
	f := &fakeGroupService{
		t:        t,
		frames:   make(chan websocketdto.ClientMessage, 32),
		joinedAs: "me",
		roster:   websocketdto.GroupMemberUpdate{GroupID: "g1", Members: members, Timestamp: 10},
	}
	f.socket = func(conn *websocket.Conn, dial int32) { f.relay(conn) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/groups", f.serveSocket)
	mux.HandleFunc("GET /groups/{group_id}/members", func(w http.ResponseWriter, r *http.Request) {
		f.polls.Add(1)
		data, _ := websocketdto.Encode(f.snapshot())
		w.Write(data)
	})
	mux.HandleFunc("GET /groups/{group_id}/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"groupId": "g1", "messages": []any{}})
	})
	mux.HandleFunc("POST /groups/{group_id}/members/{user_id}/approve", func(w http.ResponseWriter, r *http.Request) {
		f.status.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"groupId": "g1", "userId": r.PathValue("user_id"), "status": "approved"})
	})
	f.mux = mux
	return f
}

func (f *fakeGroupService) start() {
	f.srv = httptest.NewServer(f.mux)
	f.t.Cleanup(f.srv.Close)
}

func (f *fakeGroupService) snapshot() websocketdto.GroupMemberUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roster
}

func (f *fakeGroupService) setRoster(ts int64, members ...websocketdto.MemberRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roster = websocketdto.GroupMemberUpdate{GroupID: "g1", Members: members, Timestamp: ts}
}

func (f *fakeGroupService) serveSocket(w http.ResponseWriter, r *http.Request) {
	if f.accept != nil && !f.accept() {
		http.Error(w, "down", http.StatusServiceUnavailable)
		return
	}
	n := f.dials.Add(1)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if _, _, err := conn.ReadMessage(); err != nil {
		return
	}
	if writeFrame(conn, websocketdto.Joined{GroupID: "g1", UserID: f.joinedAs}) != nil {
		return
	}
	if writeFrame(conn, f.snapshot()) != nil {
		return
	}
	f.socket(conn, n)
}

func (f *fakeGroupService) relay(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msg, err := websocketdto.DecodeClient(payload); err == nil {
			f.frames <- msg
		}
	}
}

func writeFrame(conn *websocket.Conn, msg websocketdto.Message) error {
	data, err := websocketdto.Encode(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func member(id string, status membership.Status, host bool) websocketdto.MemberRecord {
	return websocketdto.MemberRecord{UserID: id, UserName: id, Status: status, IsHost: host}
}

type runningClient struct {
	*Client
	errc chan error
}

func startClient(t *testing.T, f *fakeGroupService) *runningClient {
	t.Helper()
	f.start()

	opts := session.DefaultOptions()
	opts.InitialInterval = 10 * time.Millisecond
	opts.MaxInterval = 50 * time.Millisecond
	opts.RandomizationFactor = 0
	opts.MaxRetries = 100

	c, err := New(Config{
		ServerURL:    f.srv.URL,
		GroupID:      "g1",
		UserID:       "me",
		UserName:     "Me",
		Token:        "tkn",
		PollInterval: 20 * time.Millisecond,
		Session:      opts,
	}, mylogger.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rc := &runningClient{Client: c, errc: make(chan error, 1)}
	go func() { rc.errc <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-rc.errc
	})
	return rc
}

func waitState(t *testing.T, c *Client, cond func(State) bool) State {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case s := <-c.Updates():
			if cond(s) {
				return s
			}
		case <-deadline:
			t.Fatal("state never matched")
			return State{}
		}
	}
}

func TestSocketURL(t *testing.T) {
	u, err := socketURL("https://rides.example.com/api/")
	require.NoError(t, err)
	assert.Equal(t, "wss://rides.example.com/api/ws/groups", u)

	u, err = socketURL("http://localhost:3000")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:3000/ws/groups", u)
}

func TestPendingRiderIsGatedLocally(t *testing.T) {
	f := newFakeGroupService(t, member("host", membership.StatusApproved, true))
	c := startClient(t, f)

	s := waitState(t, c.Client, func(s State) bool { return s.Timestamp == 10 })
	assert.Equal(t, membership.StatusPending, s.Self.Status)
	assert.Len(t, s.Members, 1)

	ctx := context.Background()
	assert.ErrorIs(t, c.SendLocation(ctx, websocketdto.LocationUpdate{Latitude: 37.5, Longitude: 127}), membership.ErrNotApproved)
	assert.ErrorIs(t, c.SendChat(ctx, "hello", websocketdto.ChatText), membership.ErrNotApproved)
	assert.ErrorIs(t, c.Approve(ctx, "other"), membership.ErrNotHost)
	assert.ErrorIs(t, c.EndRide(ctx), membership.ErrNotHost)

	assert.Equal(t, int32(0), f.status.Load())
	select {
	case msg := <-f.frames:
		t.Fatalf("frame reached the server: %#v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHostSendsAndApproves(t *testing.T) {
	f := newFakeGroupService(t,
		member("me", membership.StatusApproved, true),
		member("rider", membership.StatusPending, false),
	)
	c := startClient(t, f)

	s := waitState(t, c.Client, func(s State) bool { return s.Timestamp == 10 })
	assert.True(t, s.Self.IsHost)
	require.Len(t, s.Pending, 1)
	assert.Equal(t, "rider", s.Pending[0].UserID)

	ctx := context.Background()
	require.NoError(t, c.SendLocation(ctx, websocketdto.LocationUpdate{Latitude: 37.5, Longitude: 127, IsRiding: true}))
	select {
	case msg := <-f.frames:
		loc, ok := msg.(websocketdto.LocationUpdate)
		require.True(t, ok)
		assert.Equal(t, "me", loc.UserID)
		assert.Equal(t, "Me", loc.UserName)
		assert.Equal(t, "g1", loc.GroupID)
	case <-time.After(2 * time.Second):
		t.Fatal("location never sent")
	}

	require.NoError(t, c.Approve(ctx, "rider"))
	assert.Equal(t, int32(1), f.status.Load())
}

// echoChat answers every draft with a broadcast stored the way the
// group-service stores it.
func echoChat(f *fakeGroupService, drafts chan<- websocketdto.ChatDraft) {
	f.socket = func(conn *websocket.Conn, dial int32) {
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := websocketdto.DecodeClient(payload)
			if err != nil {
				continue
			}
			if draft, ok := msg.(websocketdto.ChatDraft); ok {
				drafts <- draft
				writeFrame(conn, websocketdto.ChatBroadcast{GroupID: "g1", ChatMessage: websocketdto.ChatMessage{
					ID: 5, UserID: "me", UserName: "Me", Message: websocketdto.NormalizeChatBody(draft.Message),
					MessageType: draft.MessageType, CreatedAt: time.Now(),
				}})
			}
		}
	}
}

func TestChatEchoReplacesPendingEntry(t *testing.T) {
	long := strings.Repeat("é", websocketdto.MaxChatLength+20)

	for _, tc := range []struct {
		name string
		body string
		want string
	}{
		{name: "plain", body: "on my way", want: "on my way"},
		{name: "padded", body: "  on my way \n", want: "on my way"},
		{name: "too long", body: long, want: long[:websocketdto.MaxChatLength*len("é")]},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeGroupService(t, member("me", membership.StatusApproved, true))
			drafts := make(chan websocketdto.ChatDraft, 1)
			echoChat(f, drafts)
			c := startClient(t, f)
			waitState(t, c.Client, func(s State) bool { return s.Timestamp == 10 })

			require.NoError(t, c.SendChat(context.Background(), tc.body, websocketdto.ChatText))
			select {
			case draft := <-drafts:
				assert.Equal(t, tc.want, draft.Message)
			case <-time.After(2 * time.Second):
				t.Fatal("chat never sent")
			}

			s := waitState(t, c.Client, func(s State) bool { return len(s.Chat) == 1 && !s.Chat[0].Pending })
			assert.Equal(t, int64(5), s.Chat[0].ID)
			assert.Equal(t, tc.want, s.Chat[0].Message)
		})
	}
}

func TestBlankChatIsRefused(t *testing.T) {
	f := newFakeGroupService(t, member("me", membership.StatusApproved, true))
	c := startClient(t, f)
	waitState(t, c.Client, func(s State) bool { return s.Timestamp == 10 })

	assert.ErrorIs(t, c.SendChat(context.Background(), " \t ", websocketdto.ChatText), ErrEmptyMessage)
}

func TestServerIdentityWins(t *testing.T) {
	f := newFakeGroupService(t, member("from-token", membership.StatusApproved, true))
	f.joinedAs = "from-token"
	c := startClient(t, f)

	s := waitState(t, c.Client, func(s State) bool { return s.Timestamp == 10 })
	assert.Equal(t, "from-token", s.Self.UserID)
	assert.Equal(t, membership.StatusApproved, s.Self.Status)
	assert.True(t, s.Self.IsHost)

	require.NoError(t, c.SendLocation(context.Background(), websocketdto.LocationUpdate{Latitude: 37.5, Longitude: 127}))
	select {
	case msg := <-f.frames:
		loc, ok := msg.(websocketdto.LocationUpdate)
		require.True(t, ok)
		assert.Equal(t, "from-token", loc.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("location never sent")
	}
}

func TestPollsWhileDisconnected(t *testing.T) {
	f := newFakeGroupService(t, member("me", membership.StatusApproved, true))
	reconnect := make(chan struct{})
	f.socket = func(conn *websocket.Conn, dial int32) {
		if dial == 1 {
			return
		}
		f.relay(conn)
	}
	// Refuse redials until the test has seen a poll.
	f.accept = func() bool {
		if f.dials.Load() == 0 {
			return true
		}
		select {
		case <-reconnect:
			return true
		default:
			return false
		}
	}

	c := startClient(t, f)
	waitState(t, c.Client, func(s State) bool { return s.Timestamp == 10 })

	f.setRoster(20, member("me", membership.StatusApproved, true), member("late", membership.StatusApproved, false))
	s := waitState(t, c.Client, func(s State) bool { return s.Polling && s.Timestamp == 20 })
	assert.False(t, s.Connected)
	assert.Len(t, s.Members, 1)
	assert.Greater(t, f.polls.Load(), int32(0))

	close(reconnect)
	s = waitState(t, c.Client, func(s State) bool { return s.Connected && !s.Polling })
	assert.Equal(t, int64(20), s.Timestamp)
}

func TestServerErrorEndsRun(t *testing.T) {
	f := newFakeGroupService(t, member("me", membership.StatusApproved, false))
	f.socket = func(conn *websocket.Conn, dial int32) {
		writeFrame(conn, websocketdto.Error{Message: "group ride ended by host"})
	}
	c := startClient(t, f)

	s := waitState(t, c.Client, func(s State) bool { return s.Closed })
	assert.Equal(t, "group ride ended by host", s.LastError)

	select {
	case err := <-c.errc:
		assert.NoError(t, err)
		c.errc <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, int32(1), f.dials.Load())
}

func TestLeaveSendsGoodbye(t *testing.T) {
	f := newFakeGroupService(t, member("me", membership.StatusApproved, true))
	c := startClient(t, f)
	waitState(t, c.Client, func(s State) bool { return s.Timestamp == 10 })

	require.NoError(t, c.Leave(context.Background()))
	select {
	case msg := <-f.frames:
		assert.Equal(t, websocketdto.LeaveGroup{GroupID: "g1"}, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("leave_group never sent")
	}

	select {
	case err := <-c.errc:
		assert.NoError(t, err)
		c.errc <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.ErrorIs(t, c.Leave(context.Background()), ErrStopped)
}
