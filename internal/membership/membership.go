// Package membership holds the rules of who may join, see and act in a group
// ride. Everything here is pure; callers persist and broadcast the results.
package membership

import (
	"errors"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var (
	ErrNotApproved   = errors.New("not yet approved by the host")
	ErrRejected      = errors.New("membership was rejected by the host")
	ErrNotHost       = errors.New("only the host can approve or reject members")
	ErrSelfApproval  = errors.New("members cannot change their own status")
	ErrNotPending    = errors.New("member is not waiting for approval")
	ErrHostImmutable = errors.New("the host is always approved")
	ErrInvalidStatus = errors.New("invalid membership status")
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Member is the membership view of a rider.
type Member struct {
	UserID string
	Status Status
	IsHost bool
}

// Subject is anything carrying a membership, e.g. a roster record.
type Subject interface {
	Membership() Member
}

// Normalize enforces the host invariant.
func Normalize(m Member) Member {
	if m.IsHost {
		m.Status = StatusApproved
	}
	return m
}

// Transition validates actor moving target to the status to and returns the
// resulting status.
func Transition(actor, target Member, to Status) (Status, error) {
	actor = Normalize(actor)
	target = Normalize(target)

	if to != StatusApproved && to != StatusRejected {
		return target.Status, ErrInvalidStatus
	}
	if !actor.IsHost {
		if actor.UserID == target.UserID {
			return target.Status, ErrSelfApproval
		}
		return target.Status, ErrNotHost
	}
	if target.IsHost {
		return target.Status, ErrHostImmutable
	}
	if target.Status != StatusPending {
		return target.Status, ErrNotPending
	}
	return to, nil
}

// CanStartRide reports whether self may start riding or send location updates.
// A non-nil error must block the action.
func CanStartRide(self Member) error {
	switch Normalize(self).Status {
	case StatusApproved:
		return nil
	case StatusPending:
		return ErrNotApproved
	case StatusRejected:
		return ErrRejected
	default:
		return ErrInvalidStatus
	}
}

// CanManage reports whether self may approve or reject other members.
func CanManage(self Member) error {
	if !self.IsHost {
		return ErrNotHost
	}
	return nil
}

// CanSee reports whether viewer may see subject in a membership list.
func CanSee(viewer, subject Member) bool {
	subject = Normalize(subject)
	if subject.Status == StatusRejected {
		return false
	}
	if viewer.IsHost {
		return true
	}
	return subject.Status == StatusApproved
}

// Visible filters members down to the ones viewer may see. The host sees
// pending members, everyone else sees approved members only.
func Visible[T Subject](viewer Member, members []T) []T {
	out := make([]T, 0, len(members))
	for _, m := range members {
		if CanSee(viewer, m.Membership()) {
			out = append(out, m)
		}
	}
	return out
}

// Others is Visible without the viewer itself.
func Others[T Subject](viewer Member, members []T) []T {
	out := make([]T, 0, len(members))
	for _, m := range members {
		sub := m.Membership()
		if sub.UserID == viewer.UserID {
			continue
		}
		if CanSee(viewer, sub) {
			out = append(out, m)
		}
	}
	return out
}

// PendingFor returns the members waiting for approval, which only the host
// may see.
func PendingFor[T Subject](viewer Member, members []T) []T {
	if !viewer.IsHost {
		return nil
	}
	var out []T
	for _, m := range members {
		if Normalize(m.Membership()).Status == StatusPending {
			out = append(out, m)
		}
	}
	return out
}
