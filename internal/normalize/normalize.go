// Package normalize converts provider-specific raw samples into the
// canonical series. Each provider is a closed adapter dispatched by the
// explicit source enum; unresolvable fields become nil, never errors.
package normalize

import (
	"math"
	"sort"
	"strconv"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/domain"
)

// RawSample is one provider row or payload entry before normalization.
type RawSample map[string]any

// Field alias tables. Providers disagree on key names for the same logical
// field; the first resolvable candidate wins.
var (
	speedKeys     = []string{"speed_meters_per_second", "speedMetersPerSecond", "speed_ms", "velocity_smooth", "speed"}
	distanceKeys  = []string{"total_distance_in_meters", "totalDistanceInMeters", "distance_m", "distance"}
	heartRateKeys = []string{"heart_rate", "heartRate", "heartrate", "hr"}
	powerKeys     = []string{"power_in_watts", "power", "powerInWatts", "watts"}
	elevationKeys = []string{"elevation_in_meters", "elevation", "elevationInMeters", "altitude"}
	timestampKeys = []string{"sample_timestamp", "ts", "t", "timestamp", "offsetInSeconds", "time_seconds"}
)

// PaceFromSpeed derives pace in min/km. Nil when speed is nil or <= 0.
func PaceFromSpeed(speedMS *float64) *float64 {
	if speedMS == nil || *speedMS <= 0 {
		return nil
	}
	pace := 1000 / (*speedMS * 60)
	return &pace
}

// Series normalizes a raw payload for the given source into a canonical
// series sorted by distance. Malformed samples are dropped and counted;
// the function never fails on missing fields.
func Series(source domain.Source, payload any) ([]domain.SeriesPoint, int, error) {
	if !source.Valid() {
		return nil, 0, domain.ErrUnknownSource
	}

	raw := ExtractSamples(payload)
	points := make([]domain.SeriesPoint, 0, len(raw))
	dropped := 0
	for _, sample := range raw {
		point, ok := normalizeSample(sample)
		if !ok {
			dropped++
			continue
		}
		points = append(points, point)
	}

	if source == domain.SourceStrava {
		inferStravaDistances(points)
	}

	sortByDistance(points)
	monotonicFill(points)
	backfillSpeeds(points)
	return points, dropped, nil
}

// ExtractSamples accepts the three payload shapes the providers emit: an
// array of sample objects, an object of parallel arrays, or a nested
// activity-details object of arrays.
func ExtractSamples(payload any) []RawSample {
	switch v := payload.(type) {
	case []RawSample:
		return v
	case []map[string]any:
		out := make([]RawSample, len(v))
		for i, m := range v {
			out[i] = RawSample(m)
		}
		return out
	case []any:
		out := make([]RawSample, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, RawSample(m))
			}
		}
		return out
	case map[string]any:
		if samples, ok := v["samples"]; ok {
			if arr, isArr := samples.([]any); isArr {
				return ExtractSamples(arr)
			}
			if obj, isObj := samples.(map[string]any); isObj {
				return zipParallelArrays(obj)
			}
		}
		for _, key := range []string{"activityDetails", "activity_details", "details"} {
			if obj, ok := v[key].(map[string]any); ok {
				if zipped := zipParallelArrays(obj); len(zipped) > 0 {
					return zipped
				}
			}
		}
		// A single sample object.
		return []RawSample{RawSample(v)}
	}
	return nil
}

func zipParallelArrays(obj map[string]any) []RawSample {
	arrays := make(map[string][]any)
	maxLen := 0
	for key, value := range obj {
		if arr, ok := value.([]any); ok {
			arrays[key] = arr
			if len(arr) > maxLen {
				maxLen = len(arr)
			}
		}
	}
	if maxLen == 0 {
		return nil
	}
	out := make([]RawSample, maxLen)
	for i := 0; i < maxLen; i++ {
		sample := make(RawSample, len(arrays))
		for key, arr := range arrays {
			if i < len(arr) {
				sample[key] = arr[i]
			}
		}
		out[i] = sample
	}
	return out
}

// normalizeSample maps one raw sample into a SeriesPoint. A sample with no
// resolvable distance, speed, or heart rate is unusable and reported false.
func normalizeSample(sample RawSample) (domain.SeriesPoint, bool) {
	speed := lookupFloat(sample, speedKeys)
	dist := lookupFloat(sample, distanceKeys)
	hr := lookupInt(sample, heartRateKeys)
	power := lookupFloat(sample, powerKeys)
	elevation := lookupFloat(sample, elevationKeys)
	ts := lookupTimestamp(sample, timestampKeys)

	if dist == nil && speed == nil && hr == nil {
		return domain.SeriesPoint{}, false
	}

	point := domain.SeriesPoint{
		SpeedMS:     speed,
		PaceMinKM:   PaceFromSpeed(speed),
		HeartRate:   hr,
		PowerWatts:  power,
		ElevationM:  elevation,
		TimestampMS: ts,
	}
	if dist != nil {
		point.DistanceM = *dist
	} else {
		// Flag for monotonic fill after sorting.
		point.DistanceM = -1
	}
	return point, true
}

func lookupFloat(sample RawSample, keys []string) *float64 {
	for _, key := range keys {
		if value, ok := sample[key]; ok {
			if f, valid := coerceFloat(value); valid {
				return &f
			}
		}
	}
	return nil
}

func lookupInt(sample RawSample, keys []string) *int {
	if f := lookupFloat(sample, keys); f != nil {
		n := int(math.Round(*f))
		return &n
	}
	return nil
}

// lookupTimestamp resolves the timestamp and converts to epoch
// milliseconds. Values of ten digits or fewer are taken as seconds.
func lookupTimestamp(sample RawSample, keys []string) *int64 {
	f := lookupFloat(sample, keys)
	if f == nil {
		return nil
	}
	ms := int64(*f)
	if math.Abs(*f) < 1e11 {
		ms = int64(*f * 1000)
	}
	return &ms
}

func coerceFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// inferStravaDistances fills missing cumulative distance from the previous
// distance plus speed * elapsed time, the way the Strava stream shape allows.
func inferStravaDistances(points []domain.SeriesPoint) {
	prevDist := 0.0
	var prevTS *int64
	for i := range points {
		p := &points[i]
		if p.DistanceM < 0 {
			d := prevDist
			if prevTS != nil && p.TimestampMS != nil && p.SpeedMS != nil {
				dt := float64(*p.TimestampMS-*prevTS) / 1000
				if dt > 0 {
					d = prevDist + *p.SpeedMS*dt
				}
			}
			p.DistanceM = d
		}
		prevDist = p.DistanceM
		if p.TimestampMS != nil {
			prevTS = p.TimestampMS
		}
	}
}

// sortByDistance orders by distance when known on both points, else by
// timestamp. The sort is stable so unresolved points keep arrival order.
func sortByDistance(points []domain.SeriesPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		a, b := points[i], points[j]
		if a.DistanceM >= 0 && b.DistanceM >= 0 {
			return a.DistanceM < b.DistanceM
		}
		if a.TimestampMS != nil && b.TimestampMS != nil {
			return *a.TimestampMS < *b.TimestampMS
		}
		return false
	})
}

// monotonicFill reuses the previous cumulative distance for points that
// arrived without one, preserving the non-decreasing invariant.
func monotonicFill(points []domain.SeriesPoint) {
	lastDist := 0.0
	for i := range points {
		if points[i].DistanceM < 0 {
			points[i].DistanceM = lastDist
		} else {
			lastDist = points[i].DistanceM
		}
	}
}

// backfillSpeeds derives missing instantaneous speeds from distance and
// timestamp deltas between consecutive samples. Skipped when dt <= 0 or
// the distance delta is negative.
func backfillSpeeds(points []domain.SeriesPoint) {
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], &points[i]
		if cur.SpeedMS != nil && *cur.SpeedMS > 0 {
			continue
		}
		if prev.TimestampMS == nil || cur.TimestampMS == nil {
			continue
		}
		dt := float64(*cur.TimestampMS-*prev.TimestampMS) / 1000
		dd := cur.DistanceM - prev.DistanceM
		if dt <= 0 || dd < 0 {
			continue
		}
		speed := dd / dt
		cur.SpeedMS = &speed
		cur.PaceMinKM = PaceFromSpeed(&speed)
	}
}
