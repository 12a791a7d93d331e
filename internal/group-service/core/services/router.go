package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"group-ride/internal/group-service/core/domain/dto"
	"group-ride/internal/group-service/core/myerrors"
	"group-ride/internal/group-service/core/ports"
	"group-ride/internal/group-service/metric"
	"group-ride/internal/membership"
	"group-ride/internal/mylogger"
	"group-ride/internal/websocketdto"
)

type member struct {
	record websocketdto.MemberRecord
	sub    ports.Subscriber
}

// group is the live roster of one ride. Every mutation and the fan-out that
// follows it happen under mu, so all members observe broadcasts in the order
// the mutations were applied.
type group struct {
	mu      sync.Mutex
	id      string
	order   []string
	members map[string]*member
	stamp   int64
	closed  bool
}

// Router keeps the live group rosters and fans roster and chat broadcasts out
// to the joined connections. Groups never block each other.
type Router struct {
	mu         sync.RWMutex
	groups     map[string]*group
	maxMembers int
	log        mylogger.Logger
	metrics    *metric.Metrics
	now        func() time.Time
}

func NewRouter(log mylogger.Logger, metrics *metric.Metrics, maxMembers int) *Router {
	return &Router{
		groups:     make(map[string]*group),
		maxMembers: maxMembers,
		log:        log,
		metrics:    metrics,
		now:        time.Now,
	}
}

func (r *Router) lookup(groupID string) *group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groups[groupID]
}

func (r *Router) getOrCreate(groupID string) *group {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.groups[groupID]; ok {
		return g
	}
	g := &group{
		id:      groupID,
		members: make(map[string]*member),
	}
	r.groups[groupID] = g
	r.metrics.ActiveGroups.Inc()
	return g
}

// Join adds the rider to the live roster, sends joined and broadcasts the new
// roster. A second connection of the same rider replaces the first one and
// keeps the record.
func (r *Router) Join(sub ports.Subscriber, groupID string, rec websocketdto.MemberRecord) error {
	rec.Status = membership.Normalize(rec.Membership()).Status

	for {
		g := r.getOrCreate(groupID)
		g.mu.Lock()
		if g.closed {
			// ended or emptied while we were waiting, start over on a fresh roster
			g.mu.Unlock()
			continue
		}
		err := r.joinLocked(g, sub, rec)
		g.mu.Unlock()
		return err
	}
}

func (r *Router) joinLocked(g *group, sub ports.Subscriber, rec websocketdto.MemberRecord) error {
	if m, ok := g.members[rec.UserID]; ok {
		old := m.sub
		m.sub = sub
		m.record.UserName = rec.UserName
		m.record.UserProfileImage = rec.UserProfileImage
		m.record.Status = rec.Status
		m.record.IsHost = rec.IsHost
		if old.ConnID() != sub.ConnID() {
			old.Close("")
			r.log.Action("connection_replaced").Info("newer connection took over", "group_id", g.id, "user_id", rec.UserID)
		}
	} else {
		if r.maxMembers > 0 && len(g.order) >= r.maxMembers {
			return myerrors.ErrGroupFull
		}
		g.order = append(g.order, rec.UserID)
		g.members[rec.UserID] = &member{record: rec, sub: sub}
	}

	sub.Send(websocketdto.Joined{GroupID: g.id, UserID: rec.UserID})
	r.broadcastLocked(g)
	return nil
}

// Update merges a location update from the rider's current connection and
// broadcasts the roster. Only approved riders may report.
func (r *Router) Update(sub ports.Subscriber, groupID, userID string, upd websocketdto.LocationUpdate) error {
	g := r.lookup(groupID)
	if g == nil {
		return myerrors.ErrGroupNotFound
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	m, err := g.current(sub, userID)
	if err != nil {
		return err
	}
	if err := membership.CanStartRide(m.record.Membership()); err != nil {
		return err
	}

	m.record = Merge(m.record, upd, r.now())
	r.broadcastLocked(g)
	return nil
}

// Authorize returns the live record of the rider behind sub.
func (r *Router) Authorize(sub ports.Subscriber, groupID, userID string) (websocketdto.MemberRecord, error) {
	g := r.lookup(groupID)
	if g == nil {
		return websocketdto.MemberRecord{}, myerrors.ErrGroupNotFound
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	m, err := g.current(sub, userID)
	if err != nil {
		return websocketdto.MemberRecord{}, err
	}
	return m.record, nil
}

// Member returns the live record of userID in groupID.
func (r *Router) Member(groupID, userID string) (websocketdto.MemberRecord, bool) {
	g := r.lookup(groupID)
	if g == nil {
		return websocketdto.MemberRecord{}, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return websocketdto.MemberRecord{}, false
	}
	m, ok := g.members[userID]
	if !ok {
		return websocketdto.MemberRecord{}, false
	}
	return m.record, true
}

// BroadcastChat delivers a stored chat message to the approved members.
func (r *Router) BroadcastChat(groupID string, msg websocketdto.ChatMessage) {
	g := r.lookup(groupID)
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}

	frame := websocketdto.ChatBroadcast{GroupID: groupID, ChatMessage: msg}
	var slow []string
	for _, id := range g.order {
		m := g.members[id]
		if m.record.Membership().Status != membership.StatusApproved {
			continue
		}
		if !m.sub.Send(frame) {
			slow = append(slow, id)
		}
	}
	if len(slow) > 0 {
		r.evictLocked(g, slow)
		r.broadcastLocked(g)
	}
}

// Leave removes the rider if sub is still its current connection. It reports
// whether the rider was removed.
func (r *Router) Leave(sub ports.Subscriber, groupID, userID string) bool {
	g := r.lookup(groupID)
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, err := g.current(sub, userID); err != nil {
		return false
	}
	g.remove(userID)
	r.broadcastLocked(g)
	return true
}

// SetStatus applies a host decision to the live roster. Rejected riders are
// removed and their connection is closed. It reports whether the rider was
// connected.
func (r *Router) SetStatus(groupID, userID string, status membership.Status) bool {
	g := r.lookup(groupID)
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.members[userID]
	if g.closed || !ok {
		return false
	}

	switch status {
	case membership.StatusRejected:
		g.remove(userID)
		m.sub.Close(membership.ErrRejected.Error())
	default:
		m.record.Status = status
	}
	r.broadcastLocked(g)
	return true
}

// End closes every connection of the group with reason and forgets the
// roster. It returns the number of connections closed.
func (r *Router) End(groupID, reason string) int {
	g := r.lookup(groupID)
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return 0
	}
	n := len(g.order)
	for _, id := range g.order {
		g.members[id].sub.Close(reason)
	}
	g.order = nil
	g.members = make(map[string]*member)
	r.dropLocked(g)
	return n
}

// CloseAll ends every group without a reason, used on shutdown.
func (r *Router) CloseAll() {
	for _, id := range r.groupIDs() {
		r.End(id, "")
	}
}

// Snapshot renders the roster as viewer would receive it, stamped with the
// last broadcast's timestamp.
func (r *Router) Snapshot(groupID string, viewer membership.Member) (websocketdto.GroupMemberUpdate, bool) {
	g := r.lookup(groupID)
	if g == nil {
		return websocketdto.GroupMemberUpdate{}, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return websocketdto.GroupMemberUpdate{}, false
	}
	return websocketdto.GroupMemberUpdate{
		GroupID:   g.id,
		Members:   membership.Visible(viewer, g.records()),
		Timestamp: g.stamp,
	}, true
}

// Summaries describes every live group, ordered by group id.
func (r *Router) Summaries() []dto.GroupSummary {
	ids := r.groupIDs()
	sort.Strings(ids)

	out := make([]dto.GroupSummary, 0, len(ids))
	for _, id := range ids {
		g := r.lookup(id)
		if g == nil {
			continue
		}
		g.mu.Lock()
		if !g.closed {
			out = append(out, g.summary())
		}
		g.mu.Unlock()
	}
	return out
}

// Rebroadcast sends every active group's roster again so that members that
// missed a frame converge.
func (r *Router) Rebroadcast() {
	for _, id := range r.groupIDs() {
		g := r.lookup(id)
		if g == nil {
			continue
		}
		g.mu.Lock()
		if !g.closed {
			r.broadcastLocked(g)
		}
		g.mu.Unlock()
	}
}

// Run re-broadcasts all rosters every interval until ctx is done.
func (r *Router) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Rebroadcast()
		}
	}
}

func (r *Router) groupIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.groups))
	for id := range r.groups {
		ids = append(ids, id)
	}
	return ids
}

// broadcastLocked sends the current roster to every member, the host with
// pending members included. Members whose queue is full are evicted and the
// remaining ones get a fresh roster. An empty group is dropped.
func (r *Router) broadcastLocked(g *group) {
	for len(g.order) > 0 {
		g.stamp = nextStamp(g.stamp, r.now())

		records := g.records()
		hostView := membership.Visible(membership.Member{IsHost: true}, records)
		memberView := membership.Visible(membership.Member{}, records)

		var slow []string
		for _, id := range g.order {
			m := g.members[id]
			members := memberView
			if m.record.IsHost {
				members = hostView
			}
			update := websocketdto.GroupMemberUpdate{GroupID: g.id, Members: members, Timestamp: g.stamp}
			if !m.sub.Send(update) {
				slow = append(slow, id)
			}
		}
		r.metrics.Broadcasts.Inc()

		if len(slow) == 0 {
			return
		}
		r.evictLocked(g, slow)
	}
	r.dropLocked(g)
}

func (r *Router) evictLocked(g *group, ids []string) {
	for _, id := range ids {
		m, ok := g.members[id]
		if !ok {
			continue
		}
		g.remove(id)
		m.sub.Close("")
		r.metrics.Evicted.Inc()
		r.log.Action("slow_consumer_evicted").Warn("send queue full, closing connection", "group_id", g.id, "user_id", id)
	}
}

func (r *Router) dropLocked(g *group) {
	if g.closed {
		return
	}
	g.closed = true

	r.mu.Lock()
	if r.groups[g.id] == g {
		delete(r.groups, g.id)
	}
	r.mu.Unlock()
	r.metrics.ActiveGroups.Dec()
}

func (g *group) current(sub ports.Subscriber, userID string) (*member, error) {
	if g.closed {
		return nil, myerrors.ErrGroupNotFound
	}
	m, ok := g.members[userID]
	if !ok || m.sub.ConnID() != sub.ConnID() {
		return nil, myerrors.ErrNotInGroup
	}
	return m, nil
}

func (g *group) remove(userID string) {
	delete(g.members, userID)
	for i, id := range g.order {
		if id == userID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			return
		}
	}
}

func (g *group) summary() dto.GroupSummary {
	sum := dto.GroupSummary{GroupID: g.id, LastUpdate: g.stamp}
	for _, id := range g.order {
		rec := g.members[id].record
		if rec.IsHost {
			sum.HostID = rec.UserID
		}
		switch membership.Normalize(rec.Membership()).Status {
		case membership.StatusApproved:
			sum.Approved++
			if rec.IsRiding {
				sum.Riding++
			}
		case membership.StatusPending:
			sum.Pending++
		}
	}
	return sum
}

func (g *group) records() []websocketdto.MemberRecord {
	out := make([]websocketdto.MemberRecord, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.members[id].record)
	}
	return out
}

// nextStamp keeps roster timestamps strictly increasing within a group even
// when the clock stalls or steps back.
func nextStamp(prev int64, now time.Time) int64 {
	ms := now.UnixMilli()
	if ms <= prev {
		return prev + 1
	}
	return ms
}
