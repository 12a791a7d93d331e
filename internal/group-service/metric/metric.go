package metric

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Connections     prometheus.Gauge
	ActiveGroups    prometheus.Gauge
	Broadcasts      prometheus.Counter
	Evicted         prometheus.Counter
	RefusedUpdates  *prometheus.CounterVec
	DroppedFrames   prometheus.Counter
	ChatMessages    prometheus.Counter
	MembershipMoves *prometheus.CounterVec
}

// New creates the group-service collectors and registers them on reg. A nil
// reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "group_ws_active_connections",
			Help: "Active websocket connections",
		}),
		ActiveGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "group_active_rides",
			Help: "Group rides with at least one joined member",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "group_roster_broadcasts_total",
			Help: "Roster snapshots fanned out to a group",
		}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "group_ws_evicted_total",
			Help: "Connections closed because their send queue was full",
		}),
		RefusedUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "group_location_updates_refused_total",
			Help: "Location updates that were not merged",
		}, []string{"reason"}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "group_ws_rate_limited_frames_total",
			Help: "Inbound frames dropped by the rate limiter",
		}),
		ChatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "group_chat_messages_total",
			Help: "Chat messages stored and broadcast",
		}),
		MembershipMoves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "group_membership_transitions_total",
			Help: "Host approvals and rejections",
		}, []string{"status"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Connections,
			m.ActiveGroups,
			m.Broadcasts,
			m.Evicted,
			m.RefusedUpdates,
			m.DroppedFrames,
			m.ChatMessages,
			m.MembershipMoves,
		)
	}
	return m
}
