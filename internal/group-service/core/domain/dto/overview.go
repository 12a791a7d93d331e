package dto

type SystemOverview struct {
	Timestamp string          `json:"timestamp"`
	Metrics   OverviewMetrics `json:"metrics"`
	Groups    []GroupSummary  `json:"groups"`
}

type OverviewMetrics struct {
	ActiveRides   int `json:"active_rides"`
	Riders        int `json:"riders"`
	RidingNow     int `json:"riding_now"`
	PendingRiders int `json:"pending_riders"`
}

type GroupSummary struct {
	GroupID    string `json:"group_id"`
	HostID     string `json:"host_id,omitempty"`
	Approved   int    `json:"approved"`
	Pending    int    `json:"pending"`
	Riding     int    `json:"riding"`
	LastUpdate int64  `json:"last_update"`
}
