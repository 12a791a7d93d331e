package websocketdto

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed message")
)

type envelope struct {
	Type string `json:"type"`
}

// Encode renders m as a flat JSON object with its "type" discriminator.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", m.Type(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("%w: %s is not an object", ErrMalformed, m.Type())
	}
	typ, err := json.Marshal(m.Type())
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(body)+len(typ)+9)
	out = append(out, `{"type":`...)
	out = append(out, typ...)
	if len(body) > 2 {
		out = append(out, ',')
	}
	out = append(out, body[1:]...)
	return out, nil
}

func peekType(payload []byte) (string, error) {
	var e envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if e.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return e.Type, nil
}

func decodeAs[T Message](payload []byte) (T, error) {
	var m T
	err := json.Unmarshal(payload, &m)
	return m, err
}

// DecodeClient parses a frame sent by a rider.
func DecodeClient(payload []byte) (ClientMessage, error) {
	typ, err := peekType(payload)
	if err != nil {
		return nil, err
	}

	var msg ClientMessage
	switch typ {
	case TypeJoinGroup:
		msg, err = decodeAs[JoinGroup](payload)
	case TypeLocationUpdate:
		msg, err = decodeAs[LocationUpdate](payload)
	case TypeChatMessage:
		msg, err = decodeAs[ChatDraft](payload)
	case TypeLeaveGroup:
		msg, err = decodeAs[LeaveGroup](payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, typ, err)
	}
	return msg, nil
}

// DecodeServer parses a frame sent by the group-service.
func DecodeServer(payload []byte) (ServerMessage, error) {
	typ, err := peekType(payload)
	if err != nil {
		return nil, err
	}

	var msg ServerMessage
	switch typ {
	case TypeJoined:
		msg, err = decodeAs[Joined](payload)
	case TypeGroupMemberUpdate:
		msg, err = decodeAs[GroupMemberUpdate](payload)
	case TypeChatBroadcast:
		msg, err = decodeAs[ChatBroadcast](payload)
	case TypeError:
		msg, err = decodeAs[Error](payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, typ, err)
	}
	return msg, nil
}
