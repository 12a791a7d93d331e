// Package riderclient drives one rider's participation in a group ride. A
// single Run goroutine applies socket events, poll results and timers to the
// roster and chat state and publishes snapshots on Updates.
package riderclient

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"group-ride/internal/membership"
	"group-ride/internal/mylogger"
	"group-ride/internal/proximity"
	"group-ride/internal/rider-client/api"
	"group-ride/internal/rider-client/chatlog"
	"group-ride/internal/rider-client/poller"
	"group-ride/internal/rider-client/roster"
	"group-ride/internal/rider-client/session"
	"group-ride/internal/websocketdto"
)

var (
	ErrStopped      = errors.New("rider client is not running")
	ErrEmptyMessage = errors.New("message is empty")
)

const expiryEvery = time.Second

type Config struct {
	ServerURL      string
	GroupID        string
	UserID         string
	UserName       string
	Token          string
	PollInterval   time.Duration
	PendingChatTTL time.Duration
	Session        session.Options
}

// State is a snapshot for the UI. Members excludes the rider itself.
type State struct {
	GroupID   string
	Connected bool
	Polling   bool
	Self      membership.Member
	Members   []websocketdto.MemberRecord
	Pending   []websocketdto.MemberRecord
	Alerts    []proximity.Alert
	Chat      []chatlog.Entry
	Timestamp int64
	LastError string
	Closed    bool
}

type historyResult struct {
	messages []websocketdto.ChatMessage
	err      error
}

type Client struct {
	cfg     Config
	mylog   mylogger.Logger
	api     *api.Client
	session *session.Manager
	poller  *poller.Poller
	view    *roster.View
	chat    *chatlog.Log

	cmds    chan func()
	updates chan State
	history chan historyResult
	done    chan struct{}

	lastError string
	closed    bool
}

func New(cfg Config, mylog mylogger.Logger) (*Client, error) {
	wsURL, err := socketURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	if cfg.Session == (session.Options{}) {
		cfg.Session = session.DefaultOptions()
	}
	mylog = mylog.With("group_id", cfg.GroupID, "user_id", cfg.UserID)

	rest := api.New(strings.TrimRight(cfg.ServerURL, "/"), cfg.Token, mylog)
	return &Client{
		cfg:     cfg,
		mylog:   mylog,
		api:     rest,
		session: session.New(wsURL, cfg.Session, mylog),
		poller:  poller.New(rest, cfg.GroupID, cfg.PollInterval, mylog),
		view:    roster.New(cfg.GroupID, cfg.UserID),
		chat:    chatlog.New(cfg.PendingChatTTL),
		cmds:    make(chan func()),
		updates: make(chan State, 1),
		history: make(chan historyResult, 1),
		done:    make(chan struct{}),
	}, nil
}

func socketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/groups"
	return u.String(), nil
}

// Updates carries the latest state. Older snapshots are dropped when the
// reader falls behind.
func (c *Client) Updates() <-chan State { return c.updates }

// Run connects and serves until the session closes, the rider leaves or ctx
// is done.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.poller.Stop()

	c.session.Connect(ctx, c.cfg.GroupID, c.cfg.Token)
	c.mylog.Action("group_connect").Info("joining group ride")

	expiry := time.NewTicker(expiryEvery)
	defer expiry.Stop()

	for !c.closed {
		select {
		case <-ctx.Done():
			c.session.Leave()
			return ctx.Err()
		case fn := <-c.cmds:
			fn()
		case env := <-c.session.Events():
			if c.session.IsCurrent(env.Gen) {
				c.handle(ctx, env.Event)
			}
		case res := <-c.poller.Results():
			if res.Err != nil || !c.poller.Running() {
				continue
			}
			if c.view.Apply(res.Snapshot) {
				c.publish()
			}
		case res := <-c.history:
			c.applyHistory(res)
		case now := <-expiry.C:
			if n := c.chat.Expire(now); n > 0 {
				c.mylog.Action("chat_expired").Warn("chat messages were not confirmed", "count", n)
				c.publish()
			}
		}
	}
	return nil
}

func (c *Client) handle(ctx context.Context, ev session.Event) {
	switch ev := ev.(type) {
	case session.Joined:
		// The token decides who we are, not the configuration.
		if ev.UserID != "" && ev.UserID != c.view.UserID() {
			c.mylog.Action("group_joined").Warn("server identity differs from configured user", "configured", c.view.UserID(), "server_user_id", ev.UserID)
			c.view.SetUser(ev.UserID)
		}
		c.poller.Stop()
		c.lastError = ""
		c.mylog.Action("group_joined").Info("joined group ride")
		go c.loadHistory(ctx, c.chat.LastID())
	case session.MemberUpdate:
		if !c.view.Apply(ev.Snapshot) {
			return
		}
	case session.ChatBroadcast:
		if !c.chat.Receive(ev.Message) {
			return
		}
	case session.ServerError:
		c.lastError = ev.Message
	case session.Disconnected:
		c.poller.Start(ctx)
	case session.Closed:
		c.poller.Stop()
		c.closed = true
		c.mylog.Action("group_closed").Info("group session closed", "reason", c.lastError)
	}
	c.publish()
}

func (c *Client) loadHistory(ctx context.Context, afterID int64) {
	msgs, err := c.api.FetchHistory(ctx, c.cfg.GroupID, afterID)
	select {
	case c.history <- historyResult{messages: msgs, err: err}:
	case <-ctx.Done():
	case <-c.done:
	}
}

func (c *Client) applyHistory(res historyResult) {
	if res.err != nil {
		// Pending riders may not read history yet.
		c.mylog.Action("history_failed").Debug("chat history unavailable", "error", res.err)
		return
	}
	changed := false
	for _, msg := range res.messages {
		if c.chat.Receive(msg) {
			changed = true
		}
	}
	if changed {
		c.publish()
	}
}

func (c *Client) state() State {
	return State{
		GroupID:   c.cfg.GroupID,
		Connected: c.session.Connected(),
		Polling:   c.poller.Running(),
		Self:      c.view.SelfMembership(),
		Members:   c.view.Others(),
		Pending:   c.view.Pending(),
		Alerts:    c.view.Alerts(),
		Chat:      c.chat.Entries(),
		Timestamp: c.view.Timestamp(),
		LastError: c.lastError,
		Closed:    c.closed,
	}
}

func (c *Client) publish() {
	s := c.state()
	select {
	case <-c.updates:
	default:
	}
	c.updates <- s
}

// do runs fn on the Run goroutine and waits for it.
func (c *Client) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case c.cmds <- func() { fn(); close(finished) }:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// SendLocation shares our position. Riders the host has not approved are
// stopped here, before anything goes on the wire.
func (c *Client) SendLocation(ctx context.Context, upd websocketdto.LocationUpdate) error {
	var err error
	if derr := c.do(ctx, func() {
		if err = membership.CanStartRide(c.view.SelfMembership()); err != nil {
			return
		}
		upd.UserID = c.view.UserID()
		if upd.UserName == "" {
			upd.UserName = c.cfg.UserName
		}
		c.view.SetPosition(upd.Latitude, upd.Longitude)
		err = c.session.SendLocation(upd)
	}); derr != nil {
		return derr
	}
	return err
}

// SendChat shows the message at once and reconciles it with the server echo.
func (c *Client) SendChat(ctx context.Context, body string, kind websocketdto.ChatKind) error {
	body = websocketdto.NormalizeChatBody(body)
	if body == "" {
		return ErrEmptyMessage
	}
	var err error
	if derr := c.do(ctx, func() {
		if err = membership.CanStartRide(c.view.SelfMembership()); err != nil {
			return
		}
		err = c.session.SendChat(websocketdto.ChatDraft{Message: body, MessageType: kind})
		if err != nil {
			return
		}
		c.chat.AddPending(c.view.UserID(), c.cfg.UserName, body, kind)
		c.publish()
	}); derr != nil {
		return derr
	}
	return err
}

func (c *Client) Approve(ctx context.Context, userID string) error {
	return c.setStatus(ctx, userID, membership.StatusApproved)
}

func (c *Client) Reject(ctx context.Context, userID string) error {
	return c.setStatus(ctx, userID, membership.StatusRejected)
}

func (c *Client) setStatus(ctx context.Context, userID string, status membership.Status) error {
	if err := c.requireHost(ctx); err != nil {
		return err
	}
	if err := c.api.SetStatus(ctx, c.cfg.GroupID, userID, status); err != nil {
		return err
	}
	c.mylog.Action("member_" + string(status)).Info("membership decided", "member_id", userID)
	return nil
}

// EndRide closes the group for everyone. Host only.
func (c *Client) EndRide(ctx context.Context) error {
	if err := c.requireHost(ctx); err != nil {
		return err
	}
	return c.api.EndRide(ctx, c.cfg.GroupID)
}

func (c *Client) requireHost(ctx context.Context) error {
	var err error
	if derr := c.do(ctx, func() {
		err = membership.CanManage(c.view.SelfMembership())
	}); derr != nil {
		return derr
	}
	return err
}

// Alerts are recomputed from the current roster and our last fix.
func (c *Client) Alerts(ctx context.Context) ([]proximity.Alert, error) {
	var alerts []proximity.Alert
	err := c.do(ctx, func() {
		alerts = c.view.Alerts()
	})
	return alerts, err
}

// Leave says goodbye, stops polling and ends Run.
func (c *Client) Leave(ctx context.Context) error {
	return c.do(ctx, func() {
		c.session.Leave()
		c.poller.Stop()
		c.closed = true
		c.mylog.Action("group_left").Info("left group ride")
		c.publish()
	})
}
