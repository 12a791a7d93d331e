package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"group-ride/internal/group-service/core/myerrors"
	"group-ride/internal/membership"
	"group-ride/internal/websocketdto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinSendsJoinedThenRoster(t *testing.T) {
	r := newTestRouter(0)
	host := newSub("c-host")

	require.NoError(t, r.Join(host, "g1", record("host", membership.StatusApproved, true)))

	msgs := host.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, websocketdto.Joined{GroupID: "g1", UserID: "host"}, msgs[0])
	roster := msgs[1].(websocketdto.GroupMemberUpdate)
	assert.Equal(t, []string{"host"}, userIDs(roster.Members))
	assert.Positive(t, roster.Timestamp)
}

func TestHostAlwaysApproved(t *testing.T) {
	r := newTestRouter(0)
	host := newSub("c-host")

	require.NoError(t, r.Join(host, "g1", record("host", membership.StatusPending, true)))

	rec, ok := r.Member("g1", "host")
	require.True(t, ok)
	assert.Equal(t, membership.StatusApproved, rec.Status)
}

func TestRosterIsFilteredPerRecipient(t *testing.T) {
	r := newTestRouter(0)
	host, pending, rider := newSub("c1"), newSub("c2"), newSub("c3")

	require.NoError(t, r.Join(host, "g1", record("u1", membership.StatusApproved, true)))
	require.NoError(t, r.Join(pending, "g1", record("u2", membership.StatusPending, false)))
	require.NoError(t, r.Join(rider, "g1", record("u3", membership.StatusApproved, false)))

	assert.Equal(t, []string{"u1", "u2", "u3"}, userIDs(host.lastRoster(t).Members))
	assert.Equal(t, []string{"u1", "u3"}, userIDs(rider.lastRoster(t).Members))
	assert.Equal(t, []string{"u1", "u3"}, userIDs(pending.lastRoster(t).Members))
}

func TestUpdateMergesAndBroadcastsToEveryone(t *testing.T) {
	r := newTestRouter(0)
	host, rider := newSub("c1"), newSub("c2")
	require.NoError(t, r.Join(host, "g1", record("u1", membership.StatusApproved, true)))
	require.NoError(t, r.Join(rider, "g1", record("u2", membership.StatusApproved, false)))

	err := r.Update(rider, "g1", "u2", websocketdto.LocationUpdate{
		GroupID: "g1", UserID: "u2", Latitude: 37.25, Longitude: 127.07, Speed: 18, IsRiding: true, Timestamp: 1000,
	})
	require.NoError(t, err)

	for _, sub := range []*fakeSub{host, rider} {
		roster := sub.lastRoster(t)
		require.Len(t, roster.Members, 2)
		got := roster.Members[1]
		require.NotNil(t, got.Latitude)
		assert.Equal(t, 37.25, *got.Latitude)
		assert.True(t, got.IsRiding)
		assert.Equal(t, membership.StatusApproved, got.Status)
		assert.False(t, got.IsHost)
	}
}

func TestUpdateFromPendingMemberIsRefused(t *testing.T) {
	r := newTestRouter(0)
	host, pending := newSub("c1"), newSub("c2")
	require.NoError(t, r.Join(host, "g1", record("u1", membership.StatusApproved, true)))
	require.NoError(t, r.Join(pending, "g1", record("u2", membership.StatusPending, false)))
	before := len(host.updates())

	err := r.Update(pending, "g1", "u2", websocketdto.LocationUpdate{Latitude: 1, Longitude: 1})
	assert.ErrorIs(t, err, membership.ErrNotApproved)
	assert.Len(t, host.updates(), before)

	rec, _ := r.Member("g1", "u2")
	assert.Nil(t, rec.Latitude)
}

func TestUpdateFromUnknownConnection(t *testing.T) {
	r := newTestRouter(0)
	host := newSub("c1")
	require.NoError(t, r.Join(host, "g1", record("u1", membership.StatusApproved, true)))

	err := r.Update(newSub("other"), "g1", "u1", websocketdto.LocationUpdate{})
	assert.ErrorIs(t, err, myerrors.ErrNotInGroup)

	err = r.Update(host, "missing", "u1", websocketdto.LocationUpdate{})
	assert.ErrorIs(t, err, myerrors.ErrGroupNotFound)
}

func TestLeaveRemovesMemberAndBroadcastsOnce(t *testing.T) {
	r := newTestRouter(0)
	host, rider := newSub("c1"), newSub("c2")
	require.NoError(t, r.Join(host, "g1", record("u1", membership.StatusApproved, true)))
	require.NoError(t, r.Join(rider, "g1", record("u2", membership.StatusApproved, false)))
	before := len(host.updates())

	assert.True(t, r.Leave(rider, "g1", "u2"))
	assert.False(t, r.Leave(rider, "g1", "u2"))

	assert.Len(t, host.updates(), before+1)
	assert.Equal(t, []string{"u1"}, userIDs(host.lastRoster(t).Members))
}

func TestLastLeaveDropsGroup(t *testing.T) {
	r := newTestRouter(0)
	host := newSub("c1")
	require.NoError(t, r.Join(host, "g1", record("u1", membership.StatusApproved, true)))

	require.True(t, r.Leave(host, "g1", "u1"))

	_, ok := r.Snapshot("g1", membership.Member{UserID: "u1", IsHost: true})
	assert.False(t, ok)
	assert.Empty(t, r.groupIDs())
}

func TestNewerConnectionReplacesOlder(t *testing.T) {
	r := newTestRouter(0)
	first, second := newSub("c1"), newSub("c2")
	require.NoError(t, r.Join(first, "g1", record("u1", membership.StatusApproved, true)))
	require.NoError(t, r.Update(first, "g1", "u1", websocketdto.LocationUpdate{Latitude: 10, Longitude: 20}))

	require.NoError(t, r.Join(second, "g1", record("u1", membership.StatusApproved, true)))

	closed, reason := first.isClosed()
	assert.True(t, closed)
	assert.Empty(t, reason)

	// the replaced connection going away must not remove the rider
	assert.False(t, r.Leave(first, "g1", "u1"))
	roster := second.lastRoster(t)
	require.Len(t, roster.Members, 1)
	require.NotNil(t, roster.Members[0].Latitude)
	assert.Equal(t, 10.0, *roster.Members[0].Latitude)
}

func TestSlowConsumerIsEvicted(t *testing.T) {
	r := newTestRouter(0)
	host, slow := newSub("c1"), newSub("c2")
	require.NoError(t, r.Join(host, "g1", record("u1", membership.StatusApproved, true)))
	require.NoError(t, r.Join(slow, "g1", record("u2", membership.StatusApproved, false)))

	slow.setFull(true)
	require.NoError(t, r.Update(host, "g1", "u1", websocketdto.LocationUpdate{Latitude: 1, Longitude: 1}))

	closed, _ := slow.isClosed()
	assert.True(t, closed)
	assert.Equal(t, []string{"u1"}, userIDs(host.lastRoster(t).Members))
	_, ok := r.Member("g1", "u2")
	assert.False(t, ok)
}

func TestTimestampsStrictlyIncreaseWithFrozenClock(t *testing.T) {
	r := newTestRouter(0)
	r.now = frozenClock(time.UnixMilli(5000))
	host := newSub("c1")
	require.NoError(t, r.Join(host, "g1", record("u1", membership.StatusApproved, true)))

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Update(host, "g1", "u1", websocketdto.LocationUpdate{Latitude: 1, Longitude: 1}))
	}
	r.Rebroadcast()

	var last int64
	for _, u := range host.updates() {
		assert.Greater(t, u.Timestamp, last)
		last = u.Timestamp
	}
	assert.Equal(t, int64(5006), last)
}

func TestSnapshotUsesLastBroadcastStamp(t *testing.T) {
	r := newTestRouter(0)
	host, pending := newSub("c1"), newSub("c2")
	require.NoError(t, r.Join(host, "g1", record("u1", membership.StatusApproved, true)))
	require.NoError(t, r.Join(pending, "g1", record("u2", membership.StatusPending, false)))

	snap, ok := r.Snapshot("g1", membership.Member{UserID: "u2", Status: membership.StatusPending})
	require.True(t, ok)
	assert.Equal(t, host.lastRoster(t).Timestamp, snap.Timestamp)
	assert.Equal(t, []string{"u1"}, userIDs(snap.Members))

	snap, _ = r.Snapshot("g1", membership.Member{UserID: "u1", IsHost: true})
	assert.Equal(t, []string{"u1", "u2"}, userIDs(snap.Members))
}

func TestSetStatus(t *testing.T) {
	r := newTestRouter(0)
	host, a, b := newSub("c1"), newSub("c2"), newSub("c3")
	require.NoError(t, r.Join(host, "g1", record("u1", membership.StatusApproved, true)))
	require.NoError(t, r.Join(a, "g1", record("u2", membership.StatusPending, false)))
	require.NoError(t, r.Join(b, "g1", record("u3", membership.StatusPending, false)))

	assert.True(t, r.SetStatus("g1", "u2", membership.StatusApproved))
	assert.True(t, r.SetStatus("g1", "u3", membership.StatusRejected))
	assert.False(t, r.SetStatus("g1", "nobody", membership.StatusApproved))

	closed, reason := b.isClosed()
	assert.True(t, closed)
	assert.Equal(t, membership.ErrRejected.Error(), reason)

	assert.Equal(t, []string{"u1", "u2"}, userIDs(host.lastRoster(t).Members))
	assert.Equal(t, []string{"u1", "u2"}, userIDs(a.lastRoster(t).Members))
}

func TestEndClosesEveryConnection(t *testing.T) {
	r := newTestRouter(0)
	host, rider := newSub("c1"), newSub("c2")
	require.NoError(t, r.Join(host, "g1", record("u1", membership.StatusApproved, true)))
	require.NoError(t, r.Join(rider, "g1", record("u2", membership.StatusApproved, false)))

	assert.Equal(t, 2, r.End("g1", "group ride ended by host"))
	assert.Equal(t, 0, r.End("g1", "again"))

	for _, sub := range []*fakeSub{host, rider} {
		closed, reason := sub.isClosed()
		assert.True(t, closed)
		assert.Equal(t, "group ride ended by host", reason)
	}

	// a later join opens a fresh roster
	fresh := newSub("c3")
	require.NoError(t, r.Join(fresh, "g1", record("u3", membership.StatusApproved, true)))
	assert.Equal(t, []string{"u3"}, userIDs(fresh.lastRoster(t).Members))
}

func TestGroupFull(t *testing.T) {
	r := newTestRouter(2)
	require.NoError(t, r.Join(newSub("c1"), "g1", record("u1", membership.StatusApproved, true)))
	require.NoError(t, r.Join(newSub("c2"), "g1", record("u2", membership.StatusPending, false)))

	err := r.Join(newSub("c3"), "g1", record("u3", membership.StatusPending, false))
	assert.ErrorIs(t, err, myerrors.ErrGroupFull)

	// reconnecting members still fit
	require.NoError(t, r.Join(newSub("c4"), "g1", record("u2", membership.StatusPending, false)))
}

func TestChatGoesToApprovedMembersOnly(t *testing.T) {
	r := newTestRouter(0)
	host, pending := newSub("c1"), newSub("c2")
	require.NoError(t, r.Join(host, "g1", record("u1", membership.StatusApproved, true)))
	require.NoError(t, r.Join(pending, "g1", record("u2", membership.StatusPending, false)))

	r.BroadcastChat("g1", websocketdto.ChatMessage{ID: 1, UserID: "u1", Message: "rolling out"})

	assert.Len(t, host.chats(), 1)
	assert.Empty(t, pending.chats())
}

func TestEveryMemberObservesTheSameOrder(t *testing.T) {
	r := newTestRouter(0)
	const riders = 6
	subs := make([]*fakeSub, riders)
	for i := range subs {
		subs[i] = newSub(fmt.Sprintf("c%d", i))
		require.NoError(t, r.Join(subs[i], "g1", record(fmt.Sprintf("u%d", i), membership.StatusApproved, i == 0)))
	}

	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub *fakeSub) {
			defer wg.Done()
			for n := 0; n < 20; n++ {
				_ = r.Update(sub, "g1", fmt.Sprintf("u%d", i), websocketdto.LocationUpdate{
					Latitude: float64(i), Longitude: float64(n), Timestamp: int64(n + 1),
				})
			}
		}(i, sub)
	}
	wg.Wait()

	stamps := func(s *fakeSub) []int64 {
		var out []int64
		for _, u := range s.updates() {
			out = append(out, u.Timestamp)
		}
		return out
	}
	// the last member joined last, so it saw the shortest history
	want := stamps(subs[riders-1])
	for _, s := range subs[:riders-1] {
		got := stamps(s)
		assert.Equal(t, want, got[len(got)-len(want):])
	}
	assert.Len(t, want, 1+riders*20)
}

func TestRebroadcastReachesEveryGroup(t *testing.T) {
	r := newTestRouter(0)
	a, b := newSub("c1"), newSub("c2")
	require.NoError(t, r.Join(a, "g1", record("u1", membership.StatusApproved, true)))
	require.NoError(t, r.Join(b, "g2", record("u2", membership.StatusApproved, true)))

	r.Rebroadcast()

	assert.Len(t, a.updates(), 2)
	assert.Len(t, b.updates(), 2)
}

func TestCloseAll(t *testing.T) {
	r := newTestRouter(0)
	a, b := newSub("c1"), newSub("c2")
	require.NoError(t, r.Join(a, "g1", record("u1", membership.StatusApproved, true)))
	require.NoError(t, r.Join(b, "g2", record("u2", membership.StatusApproved, true)))

	r.CloseAll()

	for _, s := range []*fakeSub{a, b} {
		closed, reason := s.isClosed()
		assert.True(t, closed)
		assert.Empty(t, reason)
	}
	assert.Empty(t, r.groupIDs())
}
