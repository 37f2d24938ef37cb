// Package resample reduces a canonical series to a bounded number of
// representative points. Both strategies are pure, deterministic, order
// preserving, and never lengthen the input.
package resample

import (
	"math"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/domain"
)

// DefaultCap bounds the chart series size.
const DefaultCap = 2000

// LTTBThreshold is the safety-net size above which visual-fidelity
// downsampling is applied.
const LTTBThreshold = 10000

// ByDistanceStep keeps the first point of every stepM-wide distance bucket,
// always retaining the last point. This is the fine-grained chart sampling
// (50 m steps in production).
func ByDistanceStep(series []domain.SeriesPoint, stepM float64) []domain.SeriesPoint {
	if len(series) == 0 {
		return nil
	}
	sampled := make([]domain.SeriesPoint, 0, len(series))
	nextThreshold := 0.0
	for _, p := range series {
		if p.DistanceM >= nextThreshold || len(sampled) == 0 {
			sampled = append(sampled, p)
			nextThreshold = p.DistanceM + stepM
		}
	}
	last := series[len(series)-1]
	if math.Abs(last.DistanceM-sampled[len(sampled)-1].DistanceM) > 1 {
		sampled = append(sampled, last)
	}
	return sampled
}

// DistanceAnchored guarantees one anchor at each whole-kilometer mark plus
// the first and last points, then thins uniformly if the anchor set still
// exceeds cap. The last point survives thinning.
func DistanceAnchored(series []domain.SeriesPoint, cap int) []domain.SeriesPoint {
	if len(series) == 0 {
		return nil
	}

	totalDist := series[len(series)-1].DistanceM
	totalKm := int(totalDist / 1000)
	if totalKm < 1 {
		totalKm = 1
	}

	anchors := make([]domain.SeriesPoint, 0, totalKm+2)
	anchors = append(anchors, series[0])
	cursor := 0
	for kmIdx := 1; kmIdx <= totalKm && cursor < len(series); kmIdx++ {
		target := float64(kmIdx) * 1000
		for cursor < len(series) && series[cursor].DistanceM < target {
			cursor++
		}
		if cursor < len(series) {
			anchors = append(anchors, series[cursor])
		}
	}
	anchors = append(anchors, series[len(series)-1])

	unique := dedupeConsecutive(anchors)
	if len(unique) <= cap {
		return unique
	}

	step := (len(unique) + cap - 1) / cap
	thinned := make([]domain.SeriesPoint, 0, cap+1)
	for i := 0; i < len(unique); i += step {
		thinned = append(thinned, unique[i])
	}
	if thinned[len(thinned)-1] != unique[len(unique)-1] {
		thinned = append(thinned, unique[len(unique)-1])
	}
	return thinned
}

func dedupeConsecutive(points []domain.SeriesPoint) []domain.SeriesPoint {
	out := make([]domain.SeriesPoint, 0, len(points))
	for i, p := range points {
		if i > 0 && sameAnchor(p, points[i-1]) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func sameAnchor(a, b domain.SeriesPoint) bool {
	if a.DistanceM != b.DistanceM {
		return false
	}
	switch {
	case a.TimestampMS == nil && b.TimestampMS == nil:
		return true
	case a.TimestampMS != nil && b.TimestampMS != nil:
		return *a.TimestampMS == *b.TimestampMS
	}
	return false
}

// LTTB applies largest-triangle-three-buckets downsampling over the pace
// curve (heart rate when pace is absent), preserving peaks and valleys
// better than naive decimation. First and last points are always kept;
// the input is returned unchanged when already within threshold.
func LTTB(series []domain.SeriesPoint, threshold int) []domain.SeriesPoint {
	if len(series) <= threshold || threshold <= 2 {
		return series
	}

	sampled := make([]domain.SeriesPoint, 0, threshold)
	bucketSize := float64(len(series)-2) / float64(threshold-2)

	sampled = append(sampled, series[0])
	prevIdx := 0

	for i := 0; i < threshold-2; i++ {
		avgRangeStart := int(float64(i+1)*bucketSize) + 1
		avgRangeEnd := int(float64(i+2)*bucketSize) + 1
		if avgRangeEnd > len(series) {
			avgRangeEnd = len(series)
		}

		avgX, avgY := 0.0, 0.0
		count := 0
		for j := avgRangeStart; j < avgRangeEnd; j++ {
			avgX += float64(j)
			avgY += yValue(series[j])
			count++
		}
		if count > 0 {
			avgX /= float64(count)
			avgY /= float64(count)
		}

		rangeOffs := int(float64(i)*bucketSize) + 1
		rangeTo := int(float64(i+1)*bucketSize) + 1

		pointAX := float64(prevIdx)
		pointAY := yValue(series[prevIdx])

		maxArea := -1.0
		maxIdx := rangeOffs
		for j := rangeOffs; j < rangeTo && j < len(series); j++ {
			area := math.Abs((pointAX-avgX)*(yValue(series[j])-pointAY) - (pointAX-float64(j))*(avgY-pointAY))
			if area > maxArea {
				maxArea = area
				maxIdx = j
			}
		}

		sampled = append(sampled, series[maxIdx])
		prevIdx = maxIdx
	}

	sampled = append(sampled, series[len(series)-1])
	return sampled
}

func yValue(p domain.SeriesPoint) float64 {
	if p.PaceMinKM != nil && *p.PaceMinKM > 0 {
		return *p.PaceMinKM
	}
	if p.HeartRate != nil {
		return float64(*p.HeartRate)
	}
	return 0
}
