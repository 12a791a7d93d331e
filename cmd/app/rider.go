package main

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"group-ride/internal/config"
	"group-ride/internal/group-service/core/services"
	"group-ride/internal/membership"
	"group-ride/internal/mylogger"
	"group-ride/internal/proximity"
	riderclient "group-ride/internal/rider-client"
	"group-ride/internal/rider-client/session"
	"group-ride/internal/websocketdto"
)

const locationUpdateInterval = 3 * time.Second

// simulation moves one rider along a heading and shares its position with the
// group, the way a phone on a handlebar would.
type simulation struct {
	groupID   string
	userID    string
	userName  string
	token     string
	latitude  float64
	longitude float64
	speed     float64
	heading   float64

	distance float64
	started  time.Time
}

func (s *simulation) run(ctx context.Context, mylog mylogger.Logger, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s.token == "" {
		t, err := services.NewAuthService(cfg.App.PublicJwtSecret).IssueToken(s.userID, 24*time.Hour)
		if err != nil {
			return err
		}
		s.token = t
	}

	opts := session.DefaultOptions()
	opts.MaxElapsedTime = cfg.Rider.ReconnectMaxTime

	client, err := riderclient.New(riderclient.Config{
		ServerURL:      cfg.Rider.ServerURL,
		GroupID:        s.groupID,
		UserID:         s.userID,
		UserName:       s.userName,
		Token:          s.token,
		PollInterval:   cfg.Rider.PollInterval,
		PendingChatTTL: cfg.Rider.PendingChatTTL,
		Session:        opts,
	}, mylog)
	if err != nil {
		return err
	}

	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	ticker := time.NewTicker(locationUpdateInterval)
	defer ticker.Stop()

	var last riderclient.State
	for {
		select {
		case err := <-runErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err

		case st := <-client.Updates():
			s.report(mylog, last, st)
			last = st

		case <-ticker.C:
			s.step(locationUpdateInterval)
			err := client.SendLocation(ctx, s.update())
			switch {
			case errors.Is(err, membership.ErrNotApproved):
				mylog.Action("waiting_for_host").Info("Waiting for the host to approve")
			case errors.Is(err, session.ErrNotConnected):
				mylog.Action("location_skipped").Debug("Socket is down, location not sent")
			case err != nil:
				mylog.Action("location_failed").Warn("Failed to send location", "error", err)
			}
		}
	}
}

// step advances the rider along its heading with a little wobble.
func (s *simulation) step(dt time.Duration) {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	meters := s.speed * dt.Seconds()
	heading := (s.heading + (rand.Float64()-0.5)*10) * math.Pi / 180

	dLat := meters * math.Cos(heading) / proximity.EarthRadiusMeters
	dLng := meters * math.Sin(heading) / (proximity.EarthRadiusMeters * math.Cos(s.latitude*math.Pi/180))

	s.latitude += dLat * 180 / math.Pi
	s.longitude += dLng * 180 / math.Pi
	s.distance += meters
}

func (s *simulation) update() websocketdto.LocationUpdate {
	return websocketdto.LocationUpdate{
		UserName:  s.userName,
		Latitude:  s.latitude,
		Longitude: s.longitude,
		Speed:     s.speed,
		Distance:  s.distance,
		Duration:  int64(time.Since(s.started).Seconds()),
		IsRiding:  true,
		Timestamp: time.Now().UnixMilli(),
	}
}

func (s *simulation) report(mylog mylogger.Logger, prev, st riderclient.State) {
	if prev.Connected != st.Connected || prev.Polling != st.Polling {
		mylog.Action("connection_changed").Info("Connection state", "connected", st.Connected, "polling", st.Polling)
	}
	if prev.Self.Status != st.Self.Status {
		mylog.Action("membership_changed").Info("Membership", "status", string(st.Self.Status), "host", st.Self.IsHost)
	}
	if st.Timestamp != prev.Timestamp {
		mylog.Action("roster_updated").Debug("Roster", "riders", len(st.Members), "pending", len(st.Pending))
	}
	for _, a := range proximity.Alertable(st.Alerts) {
		mylog.Action("proximity_alert").Warn("Rider drifted away", "other_user_id", a.OtherUserID, "meters", math.Round(a.Meters))
	}
	if st.Closed && st.LastError != "" {
		mylog.Action("group_closed").Info("Group session ended", "reason", st.LastError)
	}
}
