// Package api is the rider's HTTP client for the group-service: roster polls,
// chat history and host decisions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"group-ride/internal/membership"
	"group-ride/internal/mylogger"
	"group-ride/internal/websocketdto"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/sony/gobreaker"
)

const (
	breakerMaxFailures = 3
	breakerTimeout     = 10 * time.Second
	requestTimeout     = 5 * time.Second
)

var ErrUnexpectedFrame = errors.New("unexpected response frame")

// StatusError is a non-2xx answer from the group-service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("group-service: %d %s", e.Code, e.Message)
}

// ClientError reports whether the server refused the request itself. Those
// answers do not count against the circuit breaker.
func (e *StatusError) ClientError() bool {
	return e.Code >= 400 && e.Code < 500
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
}

func New(baseURL, token string, mylog mylogger.Logger) *Client {
	st := gobreaker.Settings{
		Name:        "group-service",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			return err == nil || (errors.As(err, &se) && se.ClientError())
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			mylog.Action("circuit_breaker").Info("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = requestTimeout

	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    httpClient,
		cb:      gobreaker.NewCircuitBreaker(st),
	}
}

// FetchRoster polls GET /groups/{group_id}/members.
func (c *Client) FetchRoster(ctx context.Context, groupID string) (websocketdto.GroupMemberUpdate, error) {
	body, err := c.do(ctx, http.MethodGet, "/groups/"+url.PathEscape(groupID)+"/members", nil)
	if err != nil {
		return websocketdto.GroupMemberUpdate{}, err
	}

	msg, err := websocketdto.DecodeServer(body)
	if err != nil {
		return websocketdto.GroupMemberUpdate{}, err
	}
	snap, ok := msg.(websocketdto.GroupMemberUpdate)
	if !ok {
		return websocketdto.GroupMemberUpdate{}, fmt.Errorf("%w: %s", ErrUnexpectedFrame, msg.Type())
	}
	return snap, nil
}

// FetchHistory lists chat messages with an id above afterID.
func (c *Client) FetchHistory(ctx context.Context, groupID string, afterID int64) ([]websocketdto.ChatMessage, error) {
	q := url.Values{"after_id": {strconv.FormatInt(afterID, 10)}}
	body, err := c.do(ctx, http.MethodGet, "/groups/"+url.PathEscape(groupID)+"/messages", q)
	if err != nil {
		return nil, err
	}

	var res struct {
		Messages []websocketdto.ChatMessage `json:"messages"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return res.Messages, nil
}

// SetStatus asks the server to approve or reject a pending member.
func (c *Client) SetStatus(ctx context.Context, groupID, userID string, status membership.Status) error {
	var action string
	switch status {
	case membership.StatusApproved:
		action = "approve"
	case membership.StatusRejected:
		action = "reject"
	default:
		return membership.ErrInvalidStatus
	}

	path := fmt.Sprintf("/groups/%s/members/%s/%s", url.PathEscape(groupID), url.PathEscape(userID), action)
	_, err := c.do(ctx, http.MethodPost, path, nil)
	return err
}

// EndRide is the host closing the group ride for everyone.
func (c *Client) EndRide(ctx context.Context, groupID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/groups/"+url.PathEscape(groupID), nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	out, err := c.cb.Execute(func() (interface{}, error) {
		target := c.baseURL + path
		if len(query) > 0 {
			target += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, method, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		res, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if res.StatusCode < 200 || res.StatusCode > 299 {
			return nil, &StatusError{Code: res.StatusCode, Message: errorMessage(body)}
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func errorMessage(body []byte) string {
	var res struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &res); err == nil && res.Error != "" {
		return res.Error
	}
	return string(body)
}
