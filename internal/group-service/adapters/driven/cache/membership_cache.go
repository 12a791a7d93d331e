package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"group-ride/internal/config"
	"group-ride/internal/group-service/core/domain/model"
	"group-ride/internal/group-service/core/ports"
	"group-ride/internal/membership"
	"group-ride/internal/mylogger"

	"github.com/redis/go-redis/v9"
)

// MembershipCache keeps stored memberships in Redis in front of the
// membership repository. Redis failures fall through to the repository.
type MembershipCache struct {
	client *redis.Client
	next   ports.IMembershipRepo
	prefix string
	ttl    time.Duration
	mylog  mylogger.Logger
}

var _ ports.IMembershipRepo = (*MembershipCache)(nil)

type cachedMembership struct {
	GroupID   string    `json:"group_id"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	IsHost    bool      `json:"is_host"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewRedis(ctx context.Context, cfg *config.Redisconfig) (*redis.Client, error) {
	r := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return r, nil
}

func NewMembershipCache(client *redis.Client, next ports.IMembershipRepo, prefix string, ttl time.Duration, mylog mylogger.Logger) *MembershipCache {
	return &MembershipCache{
		client: client,
		next:   next,
		prefix: prefix,
		ttl:    ttl,
		mylog:  mylog,
	}
}

func (c *MembershipCache) key(groupID, userID string) string {
	return fmt.Sprintf("%s:membership:%s:%s", c.prefix, groupID, userID)
}

func (c *MembershipCache) Get(ctx context.Context, groupID, userID string) (model.Membership, error) {
	raw, err := c.client.Get(ctx, c.key(groupID, userID)).Bytes()
	switch {
	case err == nil:
		var cm cachedMembership
		if err := json.Unmarshal(raw, &cm); err == nil {
			return model.Membership{
				GroupID:   cm.GroupID,
				UserID:    cm.UserID,
				Status:    membership.Status(cm.Status),
				IsHost:    cm.IsHost,
				CreatedAt: cm.CreatedAt,
				UpdatedAt: cm.UpdatedAt,
			}, nil
		}
	case !errors.Is(err, redis.Nil):
		c.mylog.Action("membership_cache").Warn("redis get failed", "error", err.Error())
	}

	m, err := c.next.Get(ctx, groupID, userID)
	if err != nil {
		return m, err
	}
	c.store(ctx, m)
	return m, nil
}

func (c *MembershipCache) Create(ctx context.Context, m model.Membership) error {
	if err := c.next.Create(ctx, m); err != nil {
		return err
	}
	c.invalidate(ctx, m.GroupID, m.UserID)
	return nil
}

func (c *MembershipCache) SetStatus(ctx context.Context, groupID, userID string, status membership.Status) error {
	if err := c.next.SetStatus(ctx, groupID, userID, status); err != nil {
		return err
	}
	c.invalidate(ctx, groupID, userID)
	return nil
}

func (c *MembershipCache) Host(ctx context.Context, groupID string) (model.Membership, error) {
	return c.next.Host(ctx, groupID)
}

func (c *MembershipCache) DeleteGroup(ctx context.Context, groupID string) error {
	if err := c.next.DeleteGroup(ctx, groupID); err != nil {
		return err
	}

	iter := c.client.Scan(ctx, 0, c.key(groupID, "*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.mylog.Action("membership_cache").Warn("redis scan failed", "group_id", groupID, "error", err.Error())
		return nil
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			c.mylog.Action("membership_cache").Warn("redis del failed", "group_id", groupID, "error", err.Error())
		}
	}
	return nil
}

func (c *MembershipCache) store(ctx context.Context, m model.Membership) {
	raw, err := json.Marshal(cachedMembership{
		GroupID:   m.GroupID,
		UserID:    m.UserID,
		Status:    string(m.Status),
		IsHost:    m.IsHost,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(m.GroupID, m.UserID), raw, c.ttl).Err(); err != nil {
		c.mylog.Action("membership_cache").Warn("redis set failed", "error", err.Error())
	}
}

func (c *MembershipCache) invalidate(ctx context.Context, groupID, userID string) {
	if err := c.client.Del(ctx, c.key(groupID, userID)).Err(); err != nil {
		c.mylog.Action("membership_cache").Warn("redis del failed", "error", err.Error())
	}
}
