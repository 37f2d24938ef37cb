package segment

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/domain"
)

func seg(number int, startM, eff, hr, speed float64) domain.Segment {
	return domain.Segment{
		SegmentNumber:   number,
		StartDistanceM:  startM,
		EndDistanceM:    startM + 250,
		EfficiencyScore: eff,
		AvgHR:           hr,
		AvgSpeedMS:      speed,
	}
}

func TestAlertsRequireThreeSegments(t *testing.T) {
	segments := []domain.Segment{
		seg(1, 0, 80, 140, 3.0),
		seg(2, 250, 20, 160, 2.0),
	}
	assert.Empty(t, Alerts(segments))
}

func TestAlertsEfficiencyDrop(t *testing.T) {
	segments := []domain.Segment{
		seg(1, 0, 80, 140, 3.0),
		seg(2, 250, 80, 140, 3.0),
		seg(3, 500, 80, 140, 3.0),
		seg(4, 750, 60, 140, 3.0), // 25% below the trailing average of 80
	}

	alerts := Alerts(segments)

	require.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityWarning, alerts[0].Severity)
	assert.Equal(t, "0.8", alerts[0].DistanceKM)
	assert.Contains(t, alerts[0].Description, "Efficiency dropped 25%")
}

func TestAlertsEfficiencyDropDangerSeverity(t *testing.T) {
	segments := []domain.Segment{
		seg(1, 0, 80, 140, 3.0),
		seg(2, 250, 80, 140, 3.0),
		seg(3, 500, 80, 140, 3.0),
		seg(4, 750, 50, 140, 3.0), // 37.5% drop
	}

	alerts := Alerts(segments)

	require.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityDanger, alerts[0].Severity)
}

func TestAlertsHeartRateDriftWithoutSpeedGain(t *testing.T) {
	segments := []domain.Segment{
		seg(1, 0, 80, 140, 3.0),
		seg(2, 250, 80, 154, 3.0), // +10% HR, +0% speed
		seg(3, 500, 80, 154, 3.0),
	}

	alerts := Alerts(segments)

	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Description, "Heart rate rose 10%")
	assert.Equal(t, domain.SeverityWarning, alerts[0].Severity)
}

func TestAlertsHeartRateDriftIgnoredWhenSpeedRises(t *testing.T) {
	segments := []domain.Segment{
		seg(1, 0, 80, 140, 3.0),
		seg(2, 250, 80, 154, 3.3), // +10% HR but +10% speed: a surge, not drift
		seg(3, 500, 80, 154, 3.3),
	}

	assert.Empty(t, Alerts(segments))
}

func TestAlertsPowerDrop(t *testing.T) {
	p1, p2 := 250.0, 200.0
	segments := []domain.Segment{
		seg(1, 0, 80, 140, 3.0),
		seg(2, 250, 80, 140, 3.0),
		seg(3, 500, 80, 140, 3.0),
	}
	segments[1].AvgPower = &p1
	segments[2].AvgPower = &p2 // 20% drop

	alerts := Alerts(segments)

	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Description, "Power dropped 20%")
}

func TestAlertsDedupeByKilometerFirstWins(t *testing.T) {
	// Segment 4 triggers both an efficiency drop and an HR drift at the
	// same kilometer mark; the efficiency alert is detected first.
	segments := []domain.Segment{
		seg(1, 0, 80, 140, 3.0),
		seg(2, 250, 80, 140, 3.0),
		seg(3, 500, 80, 140, 3.0),
		seg(4, 750, 50, 160, 3.0),
	}

	alerts := Alerts(segments)

	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Description, "Efficiency dropped")
}

func TestAlertsCapped(t *testing.T) {
	// Alternating efficiency collapse and recovery produces a drop alert
	// at many distinct kilometer marks.
	var segments []domain.Segment
	for i := 0; i < 30; i++ {
		eff := 90.0
		if i%2 == 1 {
			eff = 30.0
		}
		segments = append(segments, seg(i+1, float64(i)*1000, eff, 140, 3.0))
	}

	alerts := Alerts(segments)
	assert.LessOrEqual(t, len(alerts), 8)
	assert.Len(t, alerts, 8)
}

func TestRecommendationsEnduranceGap(t *testing.T) {
	segments := []domain.Segment{
		seg(1, 0, 90, 140, 3.0),
		seg(2, 250, 90, 140, 3.0),
		seg(3, 500, 60, 150, 2.8),
		seg(4, 750, 40, 160, 2.5),
		seg(5, 1000, 30, 165, 2.3),
		seg(6, 1250, 20, 170, 2.2),
	}

	recs := Recommendations(segments, nil)

	require.NotEmpty(t, recs)
	assert.Equal(t, "Muscular endurance work", recs[0].Title)
}

func TestRecommendationsCardiacDrift(t *testing.T) {
	segments := []domain.Segment{
		seg(1, 0, 60, 140, 3.0),
		seg(2, 250, 60, 140, 3.0),
		seg(3, 500, 60, 140, 3.0),
	}
	alerts := []domain.Alert{
		{DistanceKM: "0.5", Description: "Heart rate rose 9% without speed gain at km 0.5", Severity: domain.SeverityWarning},
		{DistanceKM: "1.2", Description: "Heart rate rose 10% without speed gain at km 1.2", Severity: domain.SeverityWarning},
	}

	recs := Recommendations(segments, alerts)

	found := false
	for _, r := range recs {
		if r.Title == "Cardiac drift control" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRecommendationsPowerInstability(t *testing.T) {
	segments := []domain.Segment{
		seg(1, 0, 60, 140, 3.0),
		seg(2, 250, 60, 140, 3.0),
		seg(3, 500, 60, 140, 3.0),
	}
	powers := []float64{150, 250, 350} // high variation
	for i := range segments {
		segments[i].AvgPower = &powers[i]
	}

	recs := Recommendations(segments, nil)

	found := false
	for _, r := range recs {
		if r.Title == "Power stability" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRecommendationsLowScoreFallback(t *testing.T) {
	segments := []domain.Segment{
		seg(1, 0, 40, 140, 3.0),
		seg(2, 250, 40, 140, 3.0),
		seg(3, 500, 40, 140, 3.0),
	}

	recs := Recommendations(segments, nil)

	require.Len(t, recs, 1)
	assert.Equal(t, "Running economy focus", recs[0].Title)
}

func TestRecommendationsCappedAtThree(t *testing.T) {
	// Trigger all four rules at once.
	segments := []domain.Segment{
		seg(1, 0, 60, 140, 3.0),
		seg(2, 250, 60, 140, 3.0),
		seg(3, 500, 30, 150, 2.8),
		seg(4, 750, 20, 160, 2.5),
		seg(5, 1000, 15, 165, 2.3),
		seg(6, 1250, 10, 170, 2.2),
	}
	powers := []float64{150, 250, 350, 150, 250, 350}
	for i := range segments {
		segments[i].AvgPower = &powers[i]
	}
	alerts := []domain.Alert{
		{Description: "Heart rate rose 9% without speed gain at km 0.5"},
		{Description: "Heart rate rose 10% without speed gain at km 1.2"},
	}

	recs := Recommendations(segments, alerts)
	assert.Len(t, recs, 3)
}

func TestRecommendationsEmptyForHealthyActivity(t *testing.T) {
	segments := []domain.Segment{
		seg(1, 0, 80, 140, 3.0),
		seg(2, 250, 80, 140, 3.0),
		seg(3, 500, 80, 140, 3.0),
	}

	recs := Recommendations(segments, nil)
	assert.Empty(t, recs)
}

func TestKmMarkFormatting(t *testing.T) {
	s := seg(1, 1250, 80, 140, 3.0)
	assert.Equal(t, fmt.Sprintf("%.1f", 1.25), "1.2")
	assert.Equal(t, "1.2", kmMark(s))
}
