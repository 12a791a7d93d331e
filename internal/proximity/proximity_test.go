package proximity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestDistanceIdenticalIsZero(t *testing.T) {
	for _, p := range []Position{
		{0, 0},
		{37.2531, 127.0789},
		{-89.9, 179.9},
		{51.5074, -0.1278},
	} {
		assert.Equal(t, 0.0, Distance(p, p), "%v", p)
	}
}

func TestDistanceHundredMeters(t *testing.T) {
	d := Distance(Position{37.2531, 127.0789}, Position{37.2540, 127.0789})
	assert.Greater(t, d, 90.0)
	assert.Less(t, d, 110.0)
	assert.Equal(t, BandNear, Classify(d))
	assert.False(t, Alert{Band: Classify(d)}.Alertable())
}

func TestDistanceOneDegreeIsInvalid(t *testing.T) {
	d := Distance(Position{37.2531, 127.0789}, Position{38.2531, 127.0789})
	assert.InDelta(t, 111000, d, 500)
	assert.Equal(t, BandInvalid, Classify(d))
}

func TestDistanceIsSymmetric(t *testing.T) {
	a := Position{37.5665, 126.9780}
	b := Position{35.1796, 129.0756}
	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-6)
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		meters float64
		band   Band
	}{
		{0, BandNear},
		{1000, BandNear},
		{1000.1, BandModerate},
		{3000, BandModerate},
		{3000.1, BandFar},
		{49999.9, BandFar},
		{50000, BandInvalid},
		{111000, BandInvalid},
		{-1, BandInvalid},
		{math.NaN(), BandInvalid},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.band, Classify(tt.meters), "meters=%v", tt.meters)
	}
}

func TestClassifyAlertableRange(t *testing.T) {
	for m := 3001.0; m < 50000; m += 997 {
		assert.True(t, Alert{Band: Classify(m)}.Alertable(), "meters=%v", m)
	}
	for m := 50000.0; m < 500000; m += 9973 {
		assert.False(t, Alert{Band: Classify(m)}.Alertable(), "meters=%v", m)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(Position{37.2, 127.1}))
	assert.False(t, Valid(Position{91, 0}))
	assert.False(t, Valid(Position{0, -181}))
	assert.False(t, Valid(Position{math.NaN(), 0}))
	assert.False(t, Valid(Position{0, math.Inf(1)}))
}

func TestCheckSkipsSelfAndMissingFixes(t *testing.T) {
	self := Member{UserID: "1", Latitude: ptr(37.2531), Longitude: ptr(127.0789)}
	others := []Member{
		self,
		{UserID: "2", Latitude: ptr(37.2540), Longitude: ptr(127.0789)},
		{UserID: "3"},
		{UserID: "4", Latitude: ptr(37.2531)},
		{UserID: "5", Latitude: ptr(37.2531), Longitude: ptr(127.1289)},
		{UserID: "6", Latitude: ptr(38.2531), Longitude: ptr(127.0789)},
	}

	alerts := Check(self, others)
	require.Len(t, alerts, 3)
	assert.Equal(t, "2", alerts[0].OtherUserID)
	assert.Equal(t, BandNear, alerts[0].Band)
	assert.Equal(t, "5", alerts[1].OtherUserID)
	assert.Equal(t, BandFar, alerts[1].Band)
	assert.Equal(t, "6", alerts[2].OtherUserID)
	assert.Equal(t, BandInvalid, alerts[2].Band)

	notices := Alertable(alerts)
	require.Len(t, notices, 1)
	assert.Equal(t, "5", notices[0].OtherUserID)
}

func TestCheckWithoutOwnFix(t *testing.T) {
	self := Member{UserID: "1"}
	others := []Member{{UserID: "2", Latitude: ptr(1), Longitude: ptr(1)}}
	assert.Empty(t, Check(self, others))
}

func TestCustomThresholds(t *testing.T) {
	th := Thresholds{Near: 10, Alert: 50, Ceiling: 500}
	assert.Equal(t, BandNear, th.Classify(10))
	assert.Equal(t, BandModerate, th.Classify(30))
	assert.Equal(t, BandFar, th.Classify(100))
	assert.Equal(t, BandInvalid, th.Classify(500))
}
