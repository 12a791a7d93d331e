package myerrors

import "errors"

var (
	ErrDBConnClosed    = errors.New("failed to connect to db")
	ErrDBConnClosedMsg = errors.New("internal error, please try again later")

	ErrNotFound         = errors.New("not found")
	ErrHostTaken        = errors.New("group already has a host")
	ErrInvalidToken     = errors.New("invalid token")
	ErrNotAdmin         = errors.New("only admins allowed to use this service")
	ErrGroupNotFound    = errors.New("group ride not found")
	ErrGroupFull        = errors.New("group ride is full")
	ErrNotInGroup       = errors.New("not a member of this group ride")
	ErrMemberNotFound   = errors.New("member not found")
	ErrIdentityMismatch = errors.New("payload does not belong to this connection")
	ErrWrongGroup       = errors.New("payload is for another group")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrInvalidChatKind  = errors.New("invalid message type")
	ErrNotJoined        = errors.New("first message must be join_group")
	ErrGroupEnded       = errors.New("group ride ended by host")
)
