// Package session owns the rider's websocket to the group-service: joining,
// keeping the socket alive and reconnecting after an unexpected close.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"group-ride/internal/mylogger"
	"group-ride/internal/websocketdto"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected   = errors.New("not connected to the group")
	ErrSendQueueFull  = errors.New("send queue is full")
	ErrReconnectLimit = errors.New("reconnect failed")

	errUnexpectedFrame = errors.New("expected joined frame")
)

type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

type Options struct {
	ReadWait         time.Duration
	WriteWait        time.Duration
	HandshakeTimeout time.Duration
	SendQueue        int

	InitialInterval     time.Duration
	Multiplier          float64
	MaxInterval         time.Duration
	RandomizationFactor float64
	MaxRetries          uint64
	MaxElapsedTime      time.Duration
}

func DefaultOptions() Options {
	return Options{
		ReadWait:            60 * time.Second,
		WriteWait:           10 * time.Second,
		HandshakeTimeout:    10 * time.Second,
		SendQueue:           64,
		InitialInterval:     500 * time.Millisecond,
		Multiplier:          2,
		MaxInterval:         30 * time.Second,
		RandomizationFactor: 0.5,
		MaxRetries:          10,
		MaxElapsedTime:      5 * time.Minute,
	}
}

func (o Options) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.InitialInterval
	b.Multiplier = o.Multiplier
	b.MaxInterval = o.MaxInterval
	b.RandomizationFactor = o.RandomizationFactor
	b.MaxElapsedTime = o.MaxElapsedTime
	b.Reset()
	return backoff.WithMaxRetries(b, o.MaxRetries)
}

// terminalError ends the session without a reconnect attempt.
type terminalError struct {
	message string
}

func (e *terminalError) Error() string { return e.message }

type frame struct {
	data  []byte
	final bool
}

type Manager struct {
	url    string
	opts   Options
	dialer *websocket.Dialer
	mylog  mylogger.Logger
	events chan Envelope

	mu      sync.Mutex
	gen     uint64
	state   State
	groupID string
	cancel  context.CancelFunc
	out     chan frame
	// stop ends the current connection once its final frame is written.
	stop context.CancelFunc
}

// New prepares a manager for the websocket endpoint at url, e.g.
// ws://localhost:3000/ws/groups.
func New(url string, opts Options, mylog mylogger.Logger) *Manager {
	return &Manager{
		url:  url,
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		mylog:  mylog,
		events: make(chan Envelope, 64),
	}
}

func (m *Manager) Events() <-chan Envelope { return m.events }

// IsCurrent reports whether gen belongs to the latest Connect. Older events
// must not touch the caller's state.
func (m *Manager) IsCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Connected() bool {
	return m.State() == StateOpen
}

// Connect starts joining groupID in the background and returns the new
// generation. A previous session is abandoned.
func (m *Manager) Connect(ctx context.Context, groupID, token string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.state = StateConnecting
	m.groupID = groupID
	m.out = nil
	m.stop = nil

	go m.run(ctx, gen, groupID, token)
	return gen
}

// Leave says goodbye to the group and drops the connection. Events of the
// left session are discarded.
func (m *Manager) Leave() {
	m.mu.Lock()
	cancel, out, stop := m.cancel, m.out, m.stop
	groupID := m.groupID
	m.gen++
	m.state = StateClosed
	m.cancel, m.out, m.stop = nil, nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}

	if out != nil {
		data, err := websocketdto.Encode(websocketdto.LeaveGroup{GroupID: groupID})
		if err == nil {
			select {
			case out <- frame{data: data, final: true}:
				// The writer closes the connection after the goodbye.
				time.AfterFunc(m.opts.WriteWait, cancel)
				return
			default:
			}
		}
		stop()
	}
	cancel()
}

func (m *Manager) SendLocation(upd websocketdto.LocationUpdate) error {
	return m.send(func(groupID string) websocketdto.Message {
		upd.GroupID = groupID
		return upd
	})
}

func (m *Manager) SendChat(draft websocketdto.ChatDraft) error {
	return m.send(func(groupID string) websocketdto.Message {
		draft.GroupID = groupID
		return draft
	})
}

func (m *Manager) send(build func(groupID string) websocketdto.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateOpen || m.out == nil {
		return ErrNotConnected
	}
	data, err := websocketdto.Encode(build(m.groupID))
	if err != nil {
		return err
	}
	select {
	case m.out <- frame{data: data}:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (m *Manager) run(ctx context.Context, gen uint64, groupID, token string) {
	log := m.mylog.With("group_id", groupID, "generation", gen)
	bo := m.opts.backOff()
	outage := false

	for {
		joined, err := m.session(ctx, gen, groupID, token)
		if ctx.Err() != nil || !m.IsCurrent(gen) {
			return
		}

		var term *terminalError
		if errors.As(err, &term) {
			log.Action("session_terminated").Info("server ended the session", "reason", term.message)
			m.emit(ctx, gen, ServerError{Message: term.message})
			m.finish(ctx, gen)
			return
		}

		if joined {
			outage = false
			bo.Reset()
		}
		if !outage {
			outage = true
			log.Action("session_disconnected").Warn("connection lost", "error", err)
			m.emit(ctx, gen, Disconnected{Err: err})
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			log.Action("reconnect_failed").Error("giving up on reconnecting", err)
			m.emit(ctx, gen, ServerError{Message: ErrReconnectLimit.Error()})
			m.finish(ctx, gen)
			return
		}

		log.Action("reconnect_scheduled").Debug("reconnecting", "wait", wait.String())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session runs one connection from dial to close. joined reports whether the
// server accepted us before the connection ended.
func (m *Manager) session(ctx context.Context, gen uint64, groupID, token string) (joined bool, err error) {
	conn, _, err := m.dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	connCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(m.opts.ReadWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(m.opts.WriteWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		return err
	})

	data, err := websocketdto.Encode(websocketdto.JoinGroup{GroupID: groupID, Token: token})
	if err != nil {
		return false, err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(m.opts.WriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return false, fmt.Errorf("send join: %w", err)
	}

	msg, err := m.read(conn)
	if err != nil {
		return false, err
	}
	var out chan frame
	switch msg := msg.(type) {
	case websocketdto.Joined:
		var ok bool
		if out, ok = m.open(gen, stop); !ok {
			return false, nil
		}
		m.emit(ctx, gen, Joined{GroupID: msg.GroupID, UserID: msg.UserID})
	case websocketdto.Error:
		return false, &terminalError{message: msg.Message}
	default:
		return false, &terminalError{message: fmt.Sprintf("%s: got %s", errUnexpectedFrame, msg.Type())}
	}

	done := make(chan struct{})
	defer close(done)
	go m.write(conn, out, done, stop)

	defer m.lost(gen)
	for {
		msg, err := m.read(conn)
		if err != nil {
			return true, err
		}
		switch msg := msg.(type) {
		case websocketdto.GroupMemberUpdate:
			m.emit(ctx, gen, MemberUpdate{Snapshot: msg})
		case websocketdto.ChatBroadcast:
			m.emit(ctx, gen, ChatBroadcast{Message: msg.ChatMessage})
		case websocketdto.Error:
			return true, &terminalError{message: msg.Message}
		case websocketdto.Joined:
		}
	}
}

func (m *Manager) read(conn *websocket.Conn) (websocketdto.ServerMessage, error) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(m.opts.ReadWait))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		msg, err := websocketdto.DecodeServer(payload)
		if errors.Is(err, websocketdto.ErrUnknownType) {
			m.mylog.Action("unknown_frame").Debug("skipping unknown frame", "payload", string(payload))
			continue
		}
		if err != nil {
			return nil, &terminalError{message: err.Error()}
		}
		return msg, nil
	}
}

func (m *Manager) write(conn *websocket.Conn, out <-chan frame, done <-chan struct{}, stop context.CancelFunc) {
	for {
		select {
		case <-done:
			return
		case f := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(m.opts.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
				m.mylog.Action("write_failed").Debug("websocket write failed", "error", err)
				stop()
				return
			}
			if f.final {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(m.opts.WriteWait))
				stop()
				return
			}
		}
	}
}

func (m *Manager) open(gen uint64, stop context.CancelFunc) (chan frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return nil, false
	}
	m.state = StateOpen
	m.out = make(chan frame, m.opts.SendQueue)
	m.stop = stop
	return m.out, true
}

func (m *Manager) lost(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.state = StateConnecting
	m.out = nil
	m.stop = nil
}

func (m *Manager) finish(ctx context.Context, gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.state = StateClosed
	m.cancel, m.out, m.stop = nil, nil, nil
	m.mu.Unlock()

	m.emit(ctx, gen, Closed{})
	if cancel != nil {
		cancel()
	}
}

func (m *Manager) emit(ctx context.Context, gen uint64, ev Event) {
	if !m.IsCurrent(gen) {
		return
	}
	select {
	case m.events <- Envelope{Gen: gen, Event: ev}:
	case <-ctx.Done():
	}
}
