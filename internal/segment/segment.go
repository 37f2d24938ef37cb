// Package segment partitions a canonical series into fixed-distance
// segments and computes per-segment aggregates and efficiency scores.
package segment

import (
	"math"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/domain"
)

const (
	// FingerprintDistanceM is the segment length for efficiency fingerprints.
	FingerprintDistanceM = 250.0
	// ChartDistanceM is the segment length for per-kilometer chart segmentation.
	ChartDistanceM = 1000.0

	// MinPointsPerSegment is the minimum sample count before a segment closes.
	MinPointsPerSegment = 3
	// MinTrailingSpanM is the minimum span for a trailing partial segment.
	MinTrailingSpanM = 50.0

	greenThreshold  = 70.0
	yellowThreshold = 40.0
)

// rawAggregate carries the pre-normalization aggregates of one closed segment.
type rawAggregate struct {
	avgSpeed float64
	avgHR    float64
	avgPower *float64
	rawEff   float64
}

// Analyze folds the series into segments of targetDistance meters. A segment
// closes once the distance since the previous boundary reaches the target and
// it holds at least MinPointsPerSegment points; a trailing partial segment is
// emitted only when its span exceeds MinTrailingSpanM. Efficiency scores are
// normalized to [0,100] against the activity's own min/max raw efficiency.
func Analyze(series []domain.SeriesPoint, targetDistance float64) []domain.Segment {
	var segments []domain.Segment
	var raws []rawAggregate
	var pending []domain.SeriesPoint
	segNumber := 1

	boundary := func() float64 {
		if len(segments) == 0 {
			return 0
		}
		return segments[len(segments)-1].EndDistanceM
	}

	for _, p := range series {
		pending = append(pending, p)
		if p.DistanceM-boundary() >= targetDistance && len(pending) >= MinPointsPerSegment {
			seg, raw := closeSegment(pending, boundary(), p.DistanceM, segNumber, raws)
			segments = append(segments, seg)
			raws = append(raws, raw)
			segNumber++
			pending = nil
		}
	}

	// Trailing partial segment.
	if len(pending) >= MinPointsPerSegment && len(segments) > 0 {
		start := boundary()
		end := pending[len(pending)-1].DistanceM
		if end-start > MinTrailingSpanM {
			seg, raw := closeSegment(pending, start, end, segNumber, raws)
			segments = append(segments, seg)
			raws = append(raws, raw)
		}
	}

	normalizeScores(segments, raws)
	return segments
}

func closeSegment(points []domain.SeriesPoint, startDist, endDist float64, number int, prior []rawAggregate) (domain.Segment, rawAggregate) {
	avgSpeed := meanSpeed(points)
	avgHR := meanHR(points)
	avgPower := meanPower(points)

	// With power use speed/power, otherwise speed/HR.
	var rawEff float64
	if avgPower != nil && *avgPower > 0 {
		rawEff = (avgSpeed / *avgPower) * 1000
	} else if avgHR > 0 {
		rawEff = (avgSpeed / avgHR) * 1000
	}

	// Delta vs the previous segment's raw efficiency, recomputed with the
	// same power/HR choice as this segment so the comparison is consistent.
	delta := 0.0
	if len(prior) > 0 {
		prev := prior[len(prior)-1]
		prevEff := prev.rawEff
		if avgPower != nil && prev.avgPower != nil && *prev.avgPower > 0 {
			prevEff = (prev.avgSpeed / *prev.avgPower) * 1000
		} else if prev.avgHR > 0 {
			prevEff = (prev.avgSpeed / prev.avgHR) * 1000
		}
		if prevEff > 0 {
			delta = (rawEff - prevEff) / prevEff * 100
		}
	}

	seg := domain.Segment{
		SegmentNumber:     number,
		StartDistanceM:    math.Round(startDist),
		EndDistanceM:      math.Round(endDist),
		AvgPaceMinKM:      round2(speedToPace(avgSpeed)),
		AvgHR:             math.Round(avgHR),
		AvgSpeedMS:        round2(avgSpeed),
		EfficiencyScore:   round2(rawEff),
		HREfficiencyDelta: round1(delta),
		Label:             domain.LabelGreen, // assigned after normalization
		PointCount:        len(points),
	}
	if avgPower != nil {
		rounded := math.Round(*avgPower)
		seg.AvgPower = &rounded
	}

	return seg, rawAggregate{avgSpeed: avgSpeed, avgHR: avgHR, avgPower: avgPower, rawEff: rawEff}
}

// normalizeScores maps raw efficiencies linearly onto [0,100] using the
// activity's own range and assigns labels at the 70/40 cut points. A flat
// activity (zero range) normalizes every segment to 0.
func normalizeScores(segments []domain.Segment, raws []rawAggregate) {
	if len(segments) == 0 {
		return
	}
	minEff, maxEff := raws[0].rawEff, raws[0].rawEff
	for _, r := range raws[1:] {
		minEff = math.Min(minEff, r.rawEff)
		maxEff = math.Max(maxEff, r.rawEff)
	}
	span := maxEff - minEff
	if span == 0 {
		span = 1
	}
	for i := range segments {
		score := math.Round((raws[i].rawEff - minEff) / span * 100)
		segments[i].EfficiencyScore = score
		switch {
		case score >= greenThreshold:
			segments[i].Label = domain.LabelGreen
		case score >= yellowThreshold:
			segments[i].Label = domain.LabelYellow
		default:
			segments[i].Label = domain.LabelRed
		}
	}
}

// OverallScore is the position-weighted mean of normalized efficiency;
// weights rise linearly from 1.0 on the first segment to ~2.0 on the last so
// late-activity degradation costs more.
func OverallScore(segments []domain.Segment) int {
	if len(segments) == 0 {
		return 0
	}
	totalWeight, weightedSum := 0.0, 0.0
	for i, seg := range segments {
		weight := 1 + float64(i)/float64(len(segments))
		weightedSum += seg.EfficiencyScore * weight
		totalWeight += weight
	}
	return int(math.Round(weightedSum / totalWeight))
}

func meanSpeed(points []domain.SeriesPoint) float64 {
	sum, n := 0.0, 0
	for _, p := range points {
		if p.SpeedMS != nil {
			sum += *p.SpeedMS
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func meanHR(points []domain.SeriesPoint) float64 {
	sum, n := 0.0, 0
	for _, p := range points {
		if p.HeartRate != nil {
			sum += float64(*p.HeartRate)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// meanPower averages only over points with positive power.
func meanPower(points []domain.SeriesPoint) *float64 {
	sum, n := 0.0, 0
	for _, p := range points {
		if p.PowerWatts != nil && *p.PowerWatts > 0 {
			sum += *p.PowerWatts
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}

func speedToPace(speedMS float64) float64 {
	if speedMS <= 0 {
		return 99
	}
	return 1000 / speedMS / 60
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
