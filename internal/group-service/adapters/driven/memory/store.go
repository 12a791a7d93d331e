// Package memory holds process-local stores used when the group-service runs
// without PostgreSQL and RabbitMQ (the -memory flag) and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	messagebrokerdto "group-ride/internal/group-service/core/domain/message_broker_dto"
	"group-ride/internal/group-service/core/domain/model"
	"group-ride/internal/group-service/core/myerrors"
	"group-ride/internal/group-service/core/ports"
	"group-ride/internal/membership"
	"group-ride/internal/websocketdto"
)

type MembershipRepo struct {
	mu   sync.Mutex
	rows map[string]map[string]model.Membership
}

var _ ports.IMembershipRepo = (*MembershipRepo)(nil)

func NewMembershipRepo() *MembershipRepo {
	return &MembershipRepo{rows: make(map[string]map[string]model.Membership)}
}

func (r *MembershipRepo) Get(ctx context.Context, groupID, userID string) (model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.rows[groupID][userID]
	if !ok {
		return model.Membership{}, myerrors.ErrNotFound
	}
	return m, nil
}

func (r *MembershipRepo) Create(ctx context.Context, m model.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.rows[m.GroupID]
	if !ok {
		group = make(map[string]model.Membership)
		r.rows[m.GroupID] = group
	}
	if m.IsHost {
		for _, other := range group {
			if other.IsHost && other.UserID != m.UserID {
				return myerrors.ErrHostTaken
			}
		}
	}
	group[m.UserID] = m
	return nil
}

func (r *MembershipRepo) SetStatus(ctx context.Context, groupID, userID string, status membership.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.rows[groupID][userID]
	if !ok {
		return myerrors.ErrNotFound
	}
	m.Status = status
	m.UpdatedAt = time.Now()
	r.rows[groupID][userID] = m
	return nil
}

func (r *MembershipRepo) Host(ctx context.Context, groupID string) (model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.rows[groupID] {
		if m.IsHost {
			return m, nil
		}
	}
	return model.Membership{}, myerrors.ErrNotFound
}

func (r *MembershipRepo) DeleteGroup(ctx context.Context, groupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rows, groupID)
	return nil
}

type ChatRepo struct {
	mu     sync.Mutex
	lastID int64
	msgs   map[string][]websocketdto.ChatMessage
}

var _ ports.IChatRepo = (*ChatRepo)(nil)

func NewChatRepo() *ChatRepo {
	return &ChatRepo{msgs: make(map[string][]websocketdto.ChatMessage)}
}

func (r *ChatRepo) Save(ctx context.Context, msg websocketdto.ChatMessage) (websocketdto.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	msg.ID = r.lastID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	r.msgs[msg.GroupID] = append(r.msgs[msg.GroupID], msg)
	return msg, nil
}

func (r *ChatRepo) ListAfter(ctx context.Context, groupID string, afterID int64, limit int) ([]websocketdto.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.msgs[groupID]
	i := sort.Search(len(all), func(i int) bool { return all[i].ID > afterID })
	out := make([]websocketdto.ChatMessage, 0, limit)
	for ; i < len(all) && len(out) < limit; i++ {
		out = append(out, all[i])
	}
	return out, nil
}

type ProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]model.Profile
}

var _ ports.IProfileRepo = (*ProfileRepo)(nil)

func NewProfileRepo(profiles ...model.Profile) *ProfileRepo {
	r := &ProfileRepo{profiles: make(map[string]model.Profile)}
	for _, p := range profiles {
		r.profiles[p.UserID] = p
	}
	return r
}

func (r *ProfileRepo) Get(ctx context.Context, userID string) (model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[userID]
	if !ok {
		return model.Profile{}, myerrors.ErrNotFound
	}
	return p, nil
}

// Publisher records events instead of sending them to a broker.
type Publisher struct {
	mu      sync.Mutex
	members []messagebrokerdto.MemberEvent
	chats   []messagebrokerdto.ChatEvent
	ended   []messagebrokerdto.GroupEnded
}

var _ ports.IEventPublisher = (*Publisher)(nil)

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) PublishMember(ctx context.Context, ev messagebrokerdto.MemberEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members = append(p.members, ev)
	return nil
}

func (p *Publisher) PublishChat(ctx context.Context, ev messagebrokerdto.ChatEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chats = append(p.chats, ev)
	return nil
}

func (p *Publisher) PublishGroupEnded(ctx context.Context, ev messagebrokerdto.GroupEnded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = append(p.ended, ev)
	return nil
}

func (p *Publisher) MemberEvents() []messagebrokerdto.MemberEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]messagebrokerdto.MemberEvent(nil), p.members...)
}

func (p *Publisher) ChatEvents() []messagebrokerdto.ChatEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]messagebrokerdto.ChatEvent(nil), p.chats...)
}

func (p *Publisher) EndedEvents() []messagebrokerdto.GroupEnded {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]messagebrokerdto.GroupEnded(nil), p.ended...)
}

func (p *Publisher) IsAlive() bool { return true }

func (p *Publisher) Close() error { return nil }
