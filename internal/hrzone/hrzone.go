// Package hrzone buckets activity samples into five heart-rate intensity
// zones anchored to a resolved maximum heart rate.
package hrzone

import (
	"math"
	"time"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/domain"
)

// DefaultMaxHR is the last-resort anchor when no resolver yields a value.
const DefaultMaxHR = 190

// zone cut points as fractions of max HR. The top zone is open-ended; the
// 1.5 ceiling only bounds the displayed range.
var zoneDefs = []struct {
	name  string
	label string
	low   float64
	high  float64
	color string
}{
	{"Z1", "Recovery", 0.0, 0.60, "zone-1"},
	{"Z2", "Aerobic", 0.60, 0.70, "zone-2"},
	{"Z3", "Tempo", 0.70, 0.80, "zone-3"},
	{"Z4", "Threshold", 0.80, 0.90, "zone-4"},
	{"Z5", "Max effort", 0.90, 1.50, "zone-5"},
}

// MaxHRResolver yields a candidate maximum heart rate, or false when it
// cannot contribute one.
type MaxHRResolver func() (int, bool)

// FromProfile resolves an explicitly configured max HR.
func FromProfile(profile *domain.Profile) MaxHRResolver {
	return func() (int, bool) {
		if profile == nil || profile.MaxHR == nil || *profile.MaxHR <= 0 {
			return 0, false
		}
		return *profile.MaxHR, true
	}
}

// FromAge resolves 220 minus age from the profile birth date.
func FromAge(profile *domain.Profile, now time.Time) MaxHRResolver {
	return func() (int, bool) {
		if profile == nil || profile.BirthDate == nil {
			return 0, false
		}
		age := yearsBetween(*profile.BirthDate, now)
		if age <= 0 || age > 120 {
			return 0, false
		}
		return 220 - age, true
	}
}

// FromObserved resolves the highest heart rate seen in the series.
func FromObserved(series []domain.SeriesPoint) MaxHRResolver {
	return func() (int, bool) {
		max := 0
		for _, p := range series {
			if p.HeartRate != nil && *p.HeartRate > max {
				max = *p.HeartRate
			}
		}
		if max <= 0 {
			return 0, false
		}
		return max, true
	}
}

// ResolveMaxHR walks the resolver chain in order and returns the first hit,
// falling back to DefaultMaxHR.
func ResolveMaxHR(resolvers ...MaxHRResolver) int {
	for _, resolve := range resolvers {
		if v, ok := resolve(); ok {
			return v
		}
	}
	return DefaultMaxHR
}

func yearsBetween(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.YearDay() < birth.YearDay() {
		years--
	}
	return years
}

// Classify assigns each sample's dwell time to a zone and returns the five
// zones in ascending order, with per-zone seconds and rounded percentages.
// Samples without heart rate contribute nothing.
func Classify(series []domain.SeriesPoint, maxHR int) []domain.HeartRateZone {
	if maxHR <= 0 {
		maxHR = DefaultMaxHR
	}

	seconds := make([]float64, len(zoneDefs))
	total := 0.0
	for i, p := range series {
		if p.HeartRate == nil || *p.HeartRate <= 0 {
			continue
		}
		dt := sampleDuration(series, i)
		idx := zoneIndex(float64(*p.HeartRate) / float64(maxHR))
		seconds[idx] += dt
		total += dt
	}

	zones := make([]domain.HeartRateZone, len(zoneDefs))
	for i, def := range zoneDefs {
		pct := 0
		if total > 0 {
			pct = int(math.Round(seconds[i] / total * 100))
		}
		zones[i] = domain.HeartRateZone{
			Zone:          def.name,
			Label:         def.label,
			MinHR:         int(math.Round(def.low * float64(maxHR))),
			MaxHR:         int(math.Round(def.high * float64(maxHR))),
			TimeInZoneSec: int(math.Round(seconds[i])),
			Percentage:    pct,
			Color:         def.color,
		}
	}
	return zones
}

func zoneIndex(ratio float64) int {
	for i := len(zoneDefs) - 1; i > 0; i-- {
		if ratio >= zoneDefs[i].low {
			return i
		}
	}
	return 0
}

// sampleDuration estimates the seconds covered by sample i: timestamp delta
// to the next sample when both carry timestamps, else distance delta over
// speed, else one second.
func sampleDuration(series []domain.SeriesPoint, i int) float64 {
	if i+1 < len(series) {
		cur, next := series[i], series[i+1]
		if cur.TimestampMS != nil && next.TimestampMS != nil {
			dt := float64(*next.TimestampMS-*cur.TimestampMS) / 1000
			if dt > 0 {
				return dt
			}
		}
		if cur.SpeedMS != nil && *cur.SpeedMS > 0 {
			dd := next.DistanceM - cur.DistanceM
			if dd > 0 {
				return dd / *cur.SpeedMS
			}
		}
	}
	return 1
}
