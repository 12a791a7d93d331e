package model

import (
	"time"

	"group-ride/internal/membership"
)

// Membership is the stored relation between a rider and a group ride.
type Membership struct {
	GroupID   string
	UserID    string
	Status    membership.Status
	IsHost    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m Membership) Member() membership.Member {
	return membership.Normalize(membership.Member{
		UserID: m.UserID,
		Status: m.Status,
		IsHost: m.IsHost,
	})
}

type Profile struct {
	UserID   string
	Name     string
	ImageURL string
}

// DisplayName falls back to the user id for riders without a profile.
func (p Profile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.UserID
}
