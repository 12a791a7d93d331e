package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"group-ride/internal/config"
	"group-ride/internal/group-service/core/myerrors"
	"group-ride/internal/group-service/core/ports"
	"group-ride/internal/group-service/metric"
	"group-ride/internal/membership"
	"group-ride/internal/mylogger"
	"group-ride/internal/websocketdto"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Client is one rider connection. The read pump runs in the handler goroutine
// and the write pump in its own; only Send and Close are called from
// elsewhere.
type Client struct {
	id      string
	conn    *websocket.Conn
	cfg     *config.WebSocketconfig
	svc     ports.IGroupService
	mylog   mylogger.Logger
	metrics *metric.Metrics
	limiter *rate.Limiter

	mu     sync.Mutex
	egress chan websocketdto.ServerMessage
	closed bool

	groupID string
	userID  string
}

var _ ports.Subscriber = (*Client)(nil)

func NewClient(conn *websocket.Conn, cfg *config.WebSocketconfig, svc ports.IGroupService, mylog mylogger.Logger, metrics *metric.Metrics) *Client {
	id := uuid.NewString()
	return &Client{
		id:      id,
		conn:    conn,
		cfg:     cfg,
		svc:     svc,
		mylog:   mylog.With("conn_id", id),
		metrics: metrics,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		egress:  make(chan websocketdto.ServerMessage, cfg.SendQueue),
	}
}

func (c *Client) ConnID() string {
	return c.id
}

func (c *Client) Send(msg websocketdto.ServerMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.egress <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if reason != "" {
		select {
		case c.egress <- websocketdto.Error{Message: reason}:
		default:
		}
	}
	close(c.egress)
}

// ReadMessages authenticates the first frame and then dispatches frames until
// the connection ends. It leaves the group on the way out.
func (c *Client) ReadMessages(ctx context.Context) {
	defer func() {
		if c.userID != "" {
			c.svc.Leave(context.WithoutCancel(ctx), c, c.groupID, c.userID)
		}
		c.Close("")
	}()

	c.conn.SetReadLimit(c.cfg.ReadLimit)
	if !c.join(ctx) {
		return
	}

	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.sessionLog().Action("ws_read").Debug("connection lost", "error", err.Error())
			}
			return
		}
		if !c.limiter.Allow() {
			c.metrics.DroppedFrames.Inc()
			continue
		}

		msg, err := websocketdto.DecodeClient(payload)
		if err != nil {
			c.sessionLog().Action("ws_read").Warn("bad frame", "error", err.Error())
			c.Close(err.Error())
			return
		}
		if !c.dispatch(ctx, msg) {
			return
		}
	}
}

func (c *Client) join(ctx context.Context) bool {
	mylog := c.mylog.Action("ws_auth")

	c.conn.SetReadDeadline(time.Now().Add(c.cfg.AuthTimeout))
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		mylog.Debug("no join frame", "error", err.Error())
		return false
	}

	msg, err := websocketdto.DecodeClient(payload)
	if err != nil {
		c.Close(err.Error())
		return false
	}
	req, ok := msg.(websocketdto.JoinGroup)
	if !ok {
		c.Close(myerrors.ErrNotJoined.Error())
		return false
	}

	userID, err := c.svc.Join(ctx, c, req)
	if err != nil {
		mylog.Warn("join refused", "group_id", req.GroupID, "reason", err.Error())
		c.Close(joinErrorMessage(err))
		return false
	}

	c.groupID = req.GroupID
	c.userID = userID
	return true
}

// dispatch handles one frame. False ends the connection.
func (c *Client) dispatch(ctx context.Context, msg websocketdto.ClientMessage) bool {
	switch m := msg.(type) {
	case websocketdto.LocationUpdate:
		err := c.svc.UpdateLocation(ctx, c, c.groupID, c.userID, m)
		switch {
		case err == nil:
		case errors.Is(err, myerrors.ErrIdentityMismatch), errors.Is(err, myerrors.ErrWrongGroup):
			c.Close(err.Error())
			return false
		case errors.Is(err, myerrors.ErrNotInGroup), errors.Is(err, myerrors.ErrGroupNotFound):
			// replaced by a newer connection or the ride is over
			return false
		}
	case websocketdto.ChatDraft:
		if _, err := c.svc.SendChat(ctx, c, c.groupID, c.userID, m); err != nil {
			c.sessionLog().Action("chat_message").Debug("chat refused", "reason", err.Error())
			if errors.Is(err, myerrors.ErrNotInGroup) || errors.Is(err, myerrors.ErrGroupNotFound) {
				return false
			}
		}
	case websocketdto.LeaveGroup:
		return false
	case websocketdto.JoinGroup:
		c.sessionLog().Action("join_group").Debug("already joined, ignoring")
	}
	return true
}

// WriteMessages drains the send queue and keeps the connection alive with
// pings. It closes the socket when the queue is closed.
func (c *Client) WriteMessages() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.egress:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			data, err := websocketdto.Encode(msg)
			if err != nil {
				c.mylog.Action("ws_write").Error("failed to encode frame", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sessionLog is only safe on the read pump, which owns groupID and userID.
func (c *Client) sessionLog() mylogger.Logger {
	return c.mylog.With("group_id", c.groupID, "user_id", c.userID)
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, myerrors.ErrInvalidToken):
		return myerrors.ErrInvalidToken.Error()
	case errors.Is(err, membership.ErrRejected),
		errors.Is(err, myerrors.ErrGroupFull),
		errors.Is(err, myerrors.ErrGroupNotFound):
		return err.Error()
	default:
		return myerrors.ErrDBConnClosedMsg.Error()
	}
}
