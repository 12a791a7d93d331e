package ports

import (
	"context"

	"group-ride/internal/group-service/core/domain/model"
	"group-ride/internal/membership"
	"group-ride/internal/websocketdto"
)

type IMembershipRepo interface {
	// Get returns myerrors.ErrNotFound for riders who never asked to join.
	Get(ctx context.Context, groupID, userID string) (model.Membership, error)
	// Create returns myerrors.ErrHostTaken when a second host is inserted.
	Create(ctx context.Context, m model.Membership) error
	SetStatus(ctx context.Context, groupID, userID string, status membership.Status) error
	Host(ctx context.Context, groupID string) (model.Membership, error)
	DeleteGroup(ctx context.Context, groupID string) error
}

type IChatRepo interface {
	// Save assigns the id and creation time.
	Save(ctx context.Context, msg websocketdto.ChatMessage) (websocketdto.ChatMessage, error)
	ListAfter(ctx context.Context, groupID string, afterID int64, limit int) ([]websocketdto.ChatMessage, error)
}

type IProfileRepo interface {
	Get(ctx context.Context, userID string) (model.Profile, error)
}
