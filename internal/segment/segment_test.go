package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/domain"
)

// runSeries builds points every 10 m with the given speed and heart rate
// per 250 m block.
func runSeries(blocks []struct {
	speed float64
	hr    int
}) []domain.SeriesPoint {
	var points []domain.SeriesPoint
	dist := 0.0
	for _, b := range blocks {
		for i := 0; i < 25; i++ {
			speed := b.speed
			hr := b.hr
			points = append(points, domain.SeriesPoint{
				DistanceM: dist,
				SpeedMS:   &speed,
				HeartRate: &hr,
			})
			dist += 10
		}
	}
	return points
}

func TestAnalyzeSegmentBoundaries(t *testing.T) {
	series := runSeries([]struct {
		speed float64
		hr    int
	}{
		{3.0, 140},
		{3.0, 142},
		{2.8, 150},
		{2.5, 158},
	})

	segments := Analyze(series, FingerprintDistanceM)

	require.Len(t, segments, 4)
	for i, seg := range segments {
		assert.Equal(t, i+1, seg.SegmentNumber)
		assert.GreaterOrEqual(t, seg.PointCount, MinPointsPerSegment)
		if i < len(segments)-1 {
			assert.GreaterOrEqual(t, seg.EndDistanceM-seg.StartDistanceM, FingerprintDistanceM)
		} else {
			assert.Greater(t, seg.EndDistanceM-seg.StartDistanceM, MinTrailingSpanM)
		}
	}
	assert.Equal(t, 0.0, segments[0].StartDistanceM)
	for i := 1; i < len(segments); i++ {
		assert.Equal(t, segments[i-1].EndDistanceM, segments[i].StartDistanceM,
			"segments must be contiguous")
	}
}

func TestAnalyzeScoresWithinBounds(t *testing.T) {
	series := runSeries([]struct {
		speed float64
		hr    int
	}{
		{3.2, 135},
		{3.0, 145},
		{2.7, 155},
		{2.4, 165},
	})

	segments := Analyze(series, FingerprintDistanceM)
	require.NotEmpty(t, segments)

	sawMin, sawMax := false, false
	for _, seg := range segments {
		assert.GreaterOrEqual(t, seg.EfficiencyScore, 0.0)
		assert.LessOrEqual(t, seg.EfficiencyScore, 100.0)
		if seg.EfficiencyScore == 0 {
			sawMin = true
		}
		if seg.EfficiencyScore == 100 {
			sawMax = true
		}
	}
	assert.True(t, sawMin, "normalization should pin the worst segment to 0")
	assert.True(t, sawMax, "normalization should pin the best segment to 100")
}

func TestAnalyzeLabels(t *testing.T) {
	series := runSeries([]struct {
		speed float64
		hr    int
	}{
		{3.5, 130}, // best efficiency, green
		{3.0, 150}, // middle
		{2.0, 170}, // worst, red
	})

	segments := Analyze(series, FingerprintDistanceM)
	require.Len(t, segments, 3)

	assert.Equal(t, domain.LabelGreen, segments[0].Label)
	assert.Equal(t, domain.LabelRed, segments[2].Label)
}

func TestAnalyzeFlatActivityScoresZero(t *testing.T) {
	series := runSeries([]struct {
		speed float64
		hr    int
	}{
		{3.0, 140},
		{3.0, 140},
		{3.0, 140},
	})

	segments := Analyze(series, FingerprintDistanceM)
	require.Len(t, segments, 3)
	for _, seg := range segments {
		assert.Equal(t, 0.0, seg.EfficiencyScore)
		assert.Equal(t, domain.LabelRed, seg.Label)
	}
}

func TestAnalyzeTrailingPartialSegment(t *testing.T) {
	speed, hr := 3.0, 140
	var series []domain.SeriesPoint
	// One full 250 m segment plus a 100 m tail of 10 points.
	for d := 0.0; d <= 350; d += 10 {
		s, h := speed, hr
		series = append(series, domain.SeriesPoint{DistanceM: d, SpeedMS: &s, HeartRate: &h})
	}

	segments := Analyze(series, FingerprintDistanceM)

	require.Len(t, segments, 2)
	tail := segments[1]
	assert.Greater(t, tail.EndDistanceM-tail.StartDistanceM, MinTrailingSpanM)
}

func TestAnalyzeShortTailDiscarded(t *testing.T) {
	speed, hr := 3.0, 140
	var series []domain.SeriesPoint
	// One full segment plus a 30 m tail below the trailing span minimum.
	for d := 0.0; d <= 280; d += 10 {
		s, h := speed, hr
		series = append(series, domain.SeriesPoint{DistanceM: d, SpeedMS: &s, HeartRate: &h})
	}

	segments := Analyze(series, FingerprintDistanceM)
	assert.Len(t, segments, 1)
}

func TestAnalyzePrefersPowerOverHeartRate(t *testing.T) {
	var series []domain.SeriesPoint
	for d := 0.0; d <= 550; d += 10 {
		speed := 3.0
		hr := 150
		power := 250.0
		if d > 250 {
			power = 200.0 // power drops, speed constant: efficiency rises
		}
		s, h, p := speed, hr, power
		series = append(series, domain.SeriesPoint{DistanceM: d, SpeedMS: &s, HeartRate: &h, PowerWatts: &p})
	}

	segments := Analyze(series, FingerprintDistanceM)
	require.GreaterOrEqual(t, len(segments), 2)
	require.NotNil(t, segments[0].AvgPower)
	assert.Greater(t, segments[1].EfficiencyScore, segments[0].EfficiencyScore,
		"same speed at lower power is more efficient")
}

func TestOverallScoreWeighting(t *testing.T) {
	strongFinish := []domain.Segment{
		{EfficiencyScore: 0},
		{EfficiencyScore: 100},
	}
	weakFinish := []domain.Segment{
		{EfficiencyScore: 100},
		{EfficiencyScore: 0},
	}

	assert.Greater(t, OverallScore(strongFinish), OverallScore(weakFinish),
		"later segments carry more weight")
	assert.Equal(t, 0, OverallScore(nil))
}

func TestSpeedToPace(t *testing.T) {
	assert.Equal(t, 99.0, speedToPace(0))
	assert.Equal(t, 99.0, speedToPace(-1))
	assert.InDelta(t, 5.0, speedToPace(1000.0/300.0), 1e-9)
}
