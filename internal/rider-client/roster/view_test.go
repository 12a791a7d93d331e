package roster

import (
	"testing"

	"group-ride/internal/membership"
	"group-ride/internal/proximity"
	"group-ride/internal/websocketdto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(f float64) *float64 { return &f }

func rec(id string, status membership.Status, host bool) websocketdto.MemberRecord {
	return websocketdto.MemberRecord{UserID: id, UserName: id, Status: status, IsHost: host}
}

func at(m websocketdto.MemberRecord, lat, lng float64) websocketdto.MemberRecord {
	m.Latitude, m.Longitude = fptr(lat), fptr(lng)
	return m
}

func snap(ts int64, members ...websocketdto.MemberRecord) websocketdto.GroupMemberUpdate {
	return websocketdto.GroupMemberUpdate{GroupID: "g1", Timestamp: ts, Members: members}
}

func ids(ms []websocketdto.MemberRecord) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.UserID)
	}
	return out
}

func TestApplyDropsOlderSnapshots(t *testing.T) {
	v := New("g1", "u1")
	require.True(t, v.Apply(snap(10, rec("u1", membership.StatusApproved, true))))
	assert.False(t, v.Apply(snap(9)))
	assert.Len(t, v.Members(), 1)

	assert.True(t, v.Apply(snap(10, rec("u1", membership.StatusApproved, true), rec("u2", membership.StatusApproved, false))))
	assert.Len(t, v.Members(), 2)
	assert.Equal(t, int64(10), v.Timestamp())
}

func TestApplyIgnoresOtherGroups(t *testing.T) {
	v := New("g1", "u1")
	other := snap(1)
	other.GroupID = "g2"
	assert.False(t, v.Apply(other))
}

func TestMissingSelfIsPending(t *testing.T) {
	v := New("g1", "u2")
	v.Apply(snap(1, rec("u1", membership.StatusApproved, true)))

	self := v.SelfMembership()
	assert.Equal(t, membership.StatusPending, self.Status)
	assert.ErrorIs(t, membership.CanStartRide(self), membership.ErrNotApproved)
	assert.Equal(t, []string{"u1"}, ids(v.Others()))
}

func TestHostSeesPending(t *testing.T) {
	v := New("g1", "u1")
	v.Apply(snap(1,
		rec("u1", membership.StatusApproved, true),
		rec("u2", membership.StatusPending, false),
		rec("u3", membership.StatusApproved, false),
	))

	assert.Equal(t, []string{"u2", "u3"}, ids(v.Others()))
	assert.Equal(t, []string{"u2"}, ids(v.Pending()))
}

func TestMemberDoesNotSeePending(t *testing.T) {
	v := New("g1", "u3")
	v.Apply(snap(1,
		rec("u1", membership.StatusApproved, true),
		rec("u2", membership.StatusPending, false),
		rec("u3", membership.StatusApproved, false),
	))

	assert.Equal(t, []string{"u1"}, ids(v.Others()))
	assert.Empty(t, v.Pending())
}

func TestAlertsUseOwnFixAndVisibleOthers(t *testing.T) {
	v := New("g1", "u1")
	v.Apply(snap(1,
		rec("u1", membership.StatusApproved, true),
		at(rec("u2", membership.StatusApproved, false), 37.5, 127.0),
		rec("u3", membership.StatusApproved, false),
	))
	assert.Empty(t, v.Alerts(), "no own fix yet")

	// About 4.4 km north.
	v.SetPosition(37.46, 127.0)
	alerts := v.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "u2", alerts[0].OtherUserID)
	assert.Equal(t, proximity.BandFar, alerts[0].Band)
	assert.True(t, alerts[0].Alertable())
}

func TestAlertsFromRosterFix(t *testing.T) {
	v := New("g1", "u1")
	v.Apply(snap(1,
		at(rec("u1", membership.StatusApproved, true), 37.5, 127.0),
		at(rec("u2", membership.StatusApproved, false), 37.5001, 127.0),
	))

	alerts := v.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, proximity.BandNear, alerts[0].Band)
}

func TestResetClearsStamp(t *testing.T) {
	v := New("g1", "u1")
	v.Apply(snap(50, rec("u1", membership.StatusApproved, true)))
	v.Reset()
	assert.True(t, v.Apply(snap(1)))
	assert.Empty(t, v.Members())
}

func TestSetUserChangesSelf(t *testing.T) {
	v := New("g1", "configured")
	require.True(t, v.Apply(snap(1, rec("real", membership.StatusApproved, true), rec("u2", membership.StatusPending, false))))
	assert.Equal(t, membership.StatusPending, v.SelfMembership().Status)

	v.SetUser("real")
	assert.Equal(t, "real", v.UserID())
	assert.Equal(t, membership.Member{UserID: "real", Status: membership.StatusApproved, IsHost: true}, v.SelfMembership())
	assert.Equal(t, []string{"u2"}, ids(v.Pending()))
}
