package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	messagebrokerdto "group-ride/internal/group-service/core/domain/message_broker_dto"
	"group-ride/internal/group-service/core/domain/model"
	"group-ride/internal/group-service/core/myerrors"
	"group-ride/internal/group-service/core/ports"
	"group-ride/internal/group-service/metric"
	"group-ride/internal/membership"
	"group-ride/internal/mylogger"
	"group-ride/internal/websocketdto"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
	MaxChatLength       = websocketdto.MaxChatLength
)

type GroupService struct {
	ctx       context.Context
	mylog     mylogger.Logger
	auth      ports.IAuthService
	members   ports.IMembershipRepo
	chats     ports.IChatRepo
	profiles  ports.IProfileRepo
	publisher ports.IEventPublisher
	router    *Router
	metrics   *metric.Metrics
	now       func() time.Time
}

var _ ports.IGroupService = (*GroupService)(nil)

func NewGroupService(
	ctx context.Context,
	mylog mylogger.Logger,
	auth ports.IAuthService,
	members ports.IMembershipRepo,
	chats ports.IChatRepo,
	profiles ports.IProfileRepo,
	publisher ports.IEventPublisher,
	router *Router,
	metrics *metric.Metrics,
) *GroupService {
	return &GroupService{
		ctx:       ctx,
		mylog:     mylog,
		auth:      auth,
		members:   members,
		chats:     chats,
		profiles:  profiles,
		publisher: publisher,
		router:    router,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Join authenticates the first frame of a connection, resolves the rider's
// membership and puts them on the live roster.
func (gs *GroupService) Join(ctx context.Context, sub ports.Subscriber, req websocketdto.JoinGroup) (string, error) {
	mylog := gs.mylog.Action("join_group").With("group_id", req.GroupID)

	if strings.TrimSpace(req.GroupID) == "" {
		return "", myerrors.ErrGroupNotFound
	}
	userID, err := gs.auth.ValidateToken(req.Token)
	if err != nil {
		mylog.Warn("join refused", "reason", err.Error())
		return "", myerrors.ErrInvalidToken
	}

	m, err := gs.resolve(ctx, req.GroupID, userID)
	if err != nil {
		return "", err
	}
	self := m.Member()
	if self.Status == membership.StatusRejected {
		return "", membership.ErrRejected
	}

	profile := gs.profile(ctx, userID)
	rec := websocketdto.MemberRecord{
		UserID:           userID,
		UserName:         profile.DisplayName(),
		UserProfileImage: profile.ImageURL,
		LastUpdated:      gs.now().UnixMilli(),
		Status:           self.Status,
		IsHost:           self.IsHost,
	}
	if err := gs.router.Join(sub, req.GroupID, rec); err != nil {
		return "", err
	}

	mylog.Info("rider joined", "user_id", userID, "status", string(self.Status), "is_host", self.IsHost)
	gs.publishMember(ctx, req.GroupID, rec, messagebrokerdto.MemberJoined, "")
	return userID, nil
}

// resolve loads the stored membership. Riders unknown to the group become its
// host when nobody hosts it yet, otherwise a pending join request.
func (gs *GroupService) resolve(ctx context.Context, groupID, userID string) (model.Membership, error) {
	m, err := gs.members.Get(ctx, groupID, userID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, myerrors.ErrNotFound) {
		return model.Membership{}, fmt.Errorf("load membership: %w", err)
	}

	now := gs.now()
	m = model.Membership{
		GroupID:   groupID,
		UserID:    userID,
		Status:    membership.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = gs.members.Host(ctx, groupID)
	switch {
	case errors.Is(err, myerrors.ErrNotFound):
		host := m
		host.Status = membership.StatusApproved
		host.IsHost = true
		err = gs.members.Create(ctx, host)
		if err == nil {
			return host, nil
		}
		if !errors.Is(err, myerrors.ErrHostTaken) {
			return model.Membership{}, fmt.Errorf("create host: %w", err)
		}
		// somebody else opened the ride first
	case err != nil:
		return model.Membership{}, fmt.Errorf("load host: %w", err)
	}

	if err := gs.members.Create(ctx, m); err != nil {
		return model.Membership{}, fmt.Errorf("create join request: %w", err)
	}
	return m, nil
}

func (gs *GroupService) profile(ctx context.Context, userID string) model.Profile {
	p, err := gs.profiles.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, myerrors.ErrNotFound) {
			gs.mylog.Action("load_profile").Error("failed to load profile", err, "user_id", userID)
		}
		return model.Profile{UserID: userID}
	}
	return p
}

// UpdateLocation merges the update into the sender's record. The update must
// carry the sender's own identity and group.
func (gs *GroupService) UpdateLocation(ctx context.Context, sub ports.Subscriber, groupID, userID string, upd websocketdto.LocationUpdate) error {
	if upd.UserID != "" && upd.UserID != userID {
		gs.metrics.RefusedUpdates.WithLabelValues("identity").Inc()
		return myerrors.ErrIdentityMismatch
	}
	if upd.GroupID != "" && upd.GroupID != groupID {
		gs.metrics.RefusedUpdates.WithLabelValues("group").Inc()
		return myerrors.ErrWrongGroup
	}

	err := gs.router.Update(sub, groupID, userID, upd)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, membership.ErrNotApproved), errors.Is(err, membership.ErrRejected):
		gs.metrics.RefusedUpdates.WithLabelValues("not_approved").Inc()
		gs.mylog.Action("location_update").Debug("update from non approved member refused", "group_id", groupID, "user_id", userID)
	default:
		gs.metrics.RefusedUpdates.WithLabelValues("not_in_group").Inc()
	}
	return err
}

// SendChat stores the message and broadcasts it with its store id. The store
// call happens outside the group lock.
func (gs *GroupService) SendChat(ctx context.Context, sub ports.Subscriber, groupID, userID string, draft websocketdto.ChatDraft) (websocketdto.ChatMessage, error) {
	mylog := gs.mylog.Action("chat_message").With("group_id", groupID, "user_id", userID)

	if draft.GroupID != "" && draft.GroupID != groupID {
		return websocketdto.ChatMessage{}, myerrors.ErrWrongGroup
	}
	body := websocketdto.NormalizeChatBody(draft.Message)
	if body == "" {
		return websocketdto.ChatMessage{}, myerrors.ErrEmptyMessage
	}
	kind := draft.MessageType
	if kind == "" {
		kind = websocketdto.ChatText
	}
	if !kind.Valid() {
		return websocketdto.ChatMessage{}, myerrors.ErrInvalidChatKind
	}

	rec, err := gs.router.Authorize(sub, groupID, userID)
	if err != nil {
		return websocketdto.ChatMessage{}, err
	}
	if err := membership.CanStartRide(rec.Membership()); err != nil {
		return websocketdto.ChatMessage{}, err
	}

	msg, err := gs.chats.Save(ctx, websocketdto.ChatMessage{
		GroupID:          groupID,
		UserID:           userID,
		UserName:         rec.UserName,
		UserProfileImage: rec.UserProfileImage,
		Message:          body,
		MessageType:      kind,
		CreatedAt:        gs.now().UTC(),
	})
	if err != nil {
		mylog.Error("failed to store chat message", err)
		return websocketdto.ChatMessage{}, fmt.Errorf("store chat message: %w", err)
	}

	gs.router.BroadcastChat(groupID, msg)
	gs.metrics.ChatMessages.Inc()

	if err := gs.publisher.PublishChat(ctx, messagebrokerdto.ChatEvent{
		GroupID:     groupID,
		MessageID:   msg.ID,
		UserID:      msg.UserID,
		UserName:    msg.UserName,
		Message:     msg.Message,
		MessageType: string(msg.MessageType),
		CreatedAt:   msg.CreatedAt,
	}); err != nil {
		mylog.Error("failed to publish chat event", err)
	}
	return msg, nil
}

// Leave removes the connection's rider from the roster. Stale connections
// that were replaced by a newer one change nothing.
func (gs *GroupService) Leave(ctx context.Context, sub ports.Subscriber, groupID, userID string) {
	rec, ok := gs.router.Member(groupID, userID)
	if !gs.router.Leave(sub, groupID, userID) {
		return
	}
	gs.mylog.Action("leave_group").Info("rider left", "group_id", groupID, "user_id", userID)
	if ok {
		gs.publishMember(ctx, groupID, rec, messagebrokerdto.MemberLeft, "")
	}
}

// SetStatus applies the host's decision about a pending rider.
func (gs *GroupService) SetStatus(ctx context.Context, actorID, groupID, targetID string, status membership.Status) error {
	mylog := gs.mylog.Action("set_member_status").With("group_id", groupID, "actor_id", actorID, "user_id", targetID)

	actor, err := gs.members.Get(ctx, groupID, actorID)
	if err != nil {
		if errors.Is(err, myerrors.ErrNotFound) {
			return membership.ErrNotHost
		}
		return fmt.Errorf("load actor: %w", err)
	}
	target, err := gs.members.Get(ctx, groupID, targetID)
	if err != nil {
		if errors.Is(err, myerrors.ErrNotFound) {
			return myerrors.ErrMemberNotFound
		}
		return fmt.Errorf("load member: %w", err)
	}

	next, err := membership.Transition(actor.Member(), target.Member(), status)
	if err != nil {
		mylog.Warn("transition refused", "reason", err.Error())
		return err
	}
	if err := gs.members.SetStatus(ctx, groupID, targetID, next); err != nil {
		return fmt.Errorf("store status: %w", err)
	}

	gs.router.SetStatus(groupID, targetID, next)
	gs.metrics.MembershipMoves.WithLabelValues(string(next)).Inc()
	mylog.Info("membership updated", "status", string(next))

	event := messagebrokerdto.MemberApproved
	if next == membership.StatusRejected {
		event = messagebrokerdto.MemberRejected
	}
	profile := gs.profile(ctx, targetID)
	gs.publishMember(ctx, groupID, websocketdto.MemberRecord{
		UserID:   targetID,
		UserName: profile.DisplayName(),
		Status:   next,
	}, event, actorID)
	return nil
}

// EndGroup closes every connection of the ride and forgets its memberships.
// Only the host may end a ride.
func (gs *GroupService) EndGroup(ctx context.Context, actorID, groupID string) error {
	mylog := gs.mylog.Action("end_group").With("group_id", groupID, "actor_id", actorID)

	actor, err := gs.members.Get(ctx, groupID, actorID)
	if err != nil {
		if errors.Is(err, myerrors.ErrNotFound) {
			return membership.ErrNotHost
		}
		return fmt.Errorf("load actor: %w", err)
	}
	if err := membership.CanManage(actor.Member()); err != nil {
		return err
	}

	closed := gs.router.End(groupID, myerrors.ErrGroupEnded.Error())
	if err := gs.members.DeleteGroup(ctx, groupID); err != nil {
		mylog.Error("failed to delete memberships", err)
		return fmt.Errorf("delete memberships: %w", err)
	}
	mylog.Info("group ride ended", "connections_closed", closed)

	if err := gs.publisher.PublishGroupEnded(ctx, messagebrokerdto.GroupEnded{
		GroupID:   groupID,
		HostID:    actorID,
		Reason:    myerrors.ErrGroupEnded.Error(),
		Timestamp: gs.now().UTC(),
	}); err != nil {
		mylog.Error("failed to publish group ended event", err)
	}
	return nil
}

// Roster renders the roster for the fallback poller, filtered for the
// requester exactly like the socket broadcast.
func (gs *GroupService) Roster(ctx context.Context, groupID, requesterID string) (websocketdto.GroupMemberUpdate, error) {
	viewer, err := gs.viewer(ctx, groupID, requesterID)
	if err != nil {
		return websocketdto.GroupMemberUpdate{}, err
	}

	snap, ok := gs.router.Snapshot(groupID, viewer)
	if !ok {
		return websocketdto.GroupMemberUpdate{GroupID: groupID, Members: []websocketdto.MemberRecord{}}, nil
	}
	return snap, nil
}

// ChatHistory lists stored messages with an id above afterID, oldest first.
func (gs *GroupService) ChatHistory(ctx context.Context, groupID, requesterID string, afterID int64, limit int) ([]websocketdto.ChatMessage, error) {
	viewer, err := gs.viewer(ctx, groupID, requesterID)
	if err != nil {
		return nil, err
	}
	if err := membership.CanStartRide(viewer); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if afterID < 0 {
		afterID = 0
	}

	msgs, err := gs.chats.ListAfter(ctx, groupID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return msgs, nil
}

// viewer resolves the requester from the live roster first and the stored
// memberships second. Rejected riders are not members.
func (gs *GroupService) viewer(ctx context.Context, groupID, requesterID string) (membership.Member, error) {
	if rec, ok := gs.router.Member(groupID, requesterID); ok {
		return membership.Normalize(rec.Membership()), nil
	}

	m, err := gs.members.Get(ctx, groupID, requesterID)
	if err != nil {
		if errors.Is(err, myerrors.ErrNotFound) {
			return membership.Member{}, myerrors.ErrNotInGroup
		}
		return membership.Member{}, fmt.Errorf("load membership: %w", err)
	}
	viewer := m.Member()
	if viewer.Status == membership.StatusRejected {
		return membership.Member{}, myerrors.ErrNotInGroup
	}
	return viewer, nil
}

func (gs *GroupService) publishMember(ctx context.Context, groupID string, rec websocketdto.MemberRecord, event, actorID string) {
	err := gs.publisher.PublishMember(ctx, messagebrokerdto.MemberEvent{
		GroupID:   groupID,
		UserID:    rec.UserID,
		UserName:  rec.UserName,
		Event:     event,
		Status:    rec.Status,
		IsHost:    rec.IsHost,
		ActorID:   actorID,
		Timestamp: gs.now().UTC(),
	})
	if err != nil {
		gs.mylog.Action("publish_member_event").Error("failed to publish member event", err, "group_id", groupID, "event", event)
	}
}
