// Package roster is the rider-side view of a group ride, fed by socket
// broadcasts and poll results alike.
package roster

import (
	"group-ride/internal/membership"
	"group-ride/internal/proximity"
	"group-ride/internal/websocketdto"
)

// View is not safe for concurrent use; the rider controller owns it.
type View struct {
	groupID    string
	userID     string
	thresholds proximity.Thresholds

	members []websocketdto.MemberRecord
	stamp   int64
	applied bool

	// Own fix as last sent. The server hides pending riders from themselves.
	fix *proximity.Position
}

func New(groupID, userID string) *View {
	return &View{groupID: groupID, userID: userID, thresholds: proximity.DefaultThresholds}
}

func (v *View) WithThresholds(t proximity.Thresholds) *View {
	v.thresholds = t
	return v
}

// Apply replaces the roster with snap unless it is older than the last
// applied snapshot or belongs to another group.
func (v *View) Apply(snap websocketdto.GroupMemberUpdate) bool {
	if snap.GroupID != v.groupID {
		return false
	}
	if v.applied && snap.Timestamp < v.stamp {
		return false
	}
	v.members = append(v.members[:0:0], snap.Members...)
	v.stamp = snap.Timestamp
	v.applied = true
	return true
}

func (v *View) UserID() string {
	return v.userID
}

// SetUser switches the rider the roster is viewed as.
func (v *View) SetUser(userID string) {
	v.userID = userID
}

// Reset forgets the roster, e.g. after the ride ended.
func (v *View) Reset() {
	v.members = nil
	v.stamp = 0
	v.applied = false
}

func (v *View) SetPosition(lat, lng float64) {
	p := proximity.Position{Latitude: lat, Longitude: lng}
	if !proximity.Valid(p) {
		v.fix = nil
		return
	}
	v.fix = &p
}

func (v *View) Timestamp() int64 { return v.stamp }

func (v *View) Members() []websocketdto.MemberRecord {
	out := make([]websocketdto.MemberRecord, len(v.members))
	copy(out, v.members)
	return out
}

func (v *View) Self() (websocketdto.MemberRecord, bool) {
	for _, m := range v.members {
		if m.UserID == v.userID {
			return m, true
		}
	}
	return websocketdto.MemberRecord{}, false
}

// SelfMembership treats a rider missing from the roster as pending.
func (v *View) SelfMembership() membership.Member {
	if m, ok := v.Self(); ok {
		return membership.Normalize(m.Membership())
	}
	return membership.Member{UserID: v.userID, Status: membership.StatusPending}
}

func (v *View) Others() []websocketdto.MemberRecord {
	return membership.Others(v.SelfMembership(), v.members)
}

// Pending lists riders awaiting approval. Empty unless we host.
func (v *View) Pending() []websocketdto.MemberRecord {
	return membership.PendingFor(v.SelfMembership(), v.members)
}

// Alerts compares our position with every visible rider's.
func (v *View) Alerts() []proximity.Alert {
	self := proximity.Member{UserID: v.userID}
	if m, ok := v.Self(); ok {
		self = m.Proximity()
	}
	if v.fix != nil {
		lat, lng := v.fix.Latitude, v.fix.Longitude
		self.Latitude, self.Longitude = &lat, &lng
	}

	others := v.Others()
	members := make([]proximity.Member, 0, len(others))
	for _, m := range others {
		members = append(members, m.Proximity())
	}
	return v.thresholds.Check(self, members)
}
