package proximity

// Member is the slice of a roster record the engine needs. Latitude and
// Longitude are nil until the rider's first fix.
type Member struct {
	UserID    string
	Latitude  *float64
	Longitude *float64
}

type Alert struct {
	UserID      string  `json:"userId"`
	OtherUserID string  `json:"otherUserId"`
	Meters      float64 `json:"meters"`
	Band        Band    `json:"band"`
}

// Alertable reports whether the alert should reach the rider. Invalid readings
// never do.
func (a Alert) Alertable() bool {
	return a.Band == BandFar
}

func (m Member) position() (Position, bool) {
	if m.Latitude == nil || m.Longitude == nil {
		return Position{}, false
	}
	p := Position{Latitude: *m.Latitude, Longitude: *m.Longitude}
	return p, Valid(p)
}

// Check compares self against every other member with a usable fix and
// returns one alert per comparison. Self is never compared with itself.
func Check(self Member, others []Member) []Alert {
	return DefaultThresholds.Check(self, others)
}

func (t Thresholds) Check(self Member, others []Member) []Alert {
	from, ok := self.position()
	if !ok {
		return nil
	}

	alerts := make([]Alert, 0, len(others))
	for _, other := range others {
		if other.UserID == self.UserID {
			continue
		}
		to, ok := other.position()
		if !ok {
			continue
		}
		d := Distance(from, to)
		alerts = append(alerts, Alert{
			UserID:      self.UserID,
			OtherUserID: other.UserID,
			Meters:      d,
			Band:        t.Classify(d),
		})
	}
	return alerts
}

// Alertable filters alerts down to the ones worth a notice.
func Alertable(alerts []Alert) []Alert {
	var out []Alert
	for _, a := range alerts {
		if a.Alertable() {
			out = append(out, a)
		}
	}
	return out
}
