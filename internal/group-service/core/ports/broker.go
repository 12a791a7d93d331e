package ports

import (
	"context"

	messagebrokerdto "group-ride/internal/group-service/core/domain/message_broker_dto"
)

const GroupExchange = "group_topic"

type IEventPublisher interface {
	PublishMember(ctx context.Context, ev messagebrokerdto.MemberEvent) error
	PublishChat(ctx context.Context, ev messagebrokerdto.ChatEvent) error
	PublishGroupEnded(ctx context.Context, ev messagebrokerdto.GroupEnded) error
	IsAlive() bool
	Close() error
}
