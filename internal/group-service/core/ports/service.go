package ports

import (
	"context"

	"group-ride/internal/group-service/core/domain/dto"
	"group-ride/internal/membership"
	"group-ride/internal/websocketdto"
)

type IAuthService interface {
	ValidateToken(token string) (string, error)
	ValidateAdmin(token string) (string, error)
}

type IOverviewService interface {
	GetSystemOverview(ctx context.Context) (dto.SystemOverview, error)
}

type IGroupService interface {
	Join(ctx context.Context, sub Subscriber, req websocketdto.JoinGroup) (userID string, err error)
	UpdateLocation(ctx context.Context, sub Subscriber, groupID, userID string, upd websocketdto.LocationUpdate) error
	SendChat(ctx context.Context, sub Subscriber, groupID, userID string, draft websocketdto.ChatDraft) (websocketdto.ChatMessage, error)
	Leave(ctx context.Context, sub Subscriber, groupID, userID string)

	SetStatus(ctx context.Context, actorID, groupID, targetID string, status membership.Status) error
	EndGroup(ctx context.Context, actorID, groupID string) error
	Roster(ctx context.Context, groupID, requesterID string) (websocketdto.GroupMemberUpdate, error)
	ChatHistory(ctx context.Context, groupID, requesterID string, afterID int64, limit int) ([]websocketdto.ChatMessage, error)
}
