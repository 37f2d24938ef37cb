package segment

import (
	"fmt"
	"math"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/domain"
)

const (
	maxAlerts          = 8
	maxRecommendations = 3

	efficiencyDropPct       = 15.0
	efficiencyDropDangerPct = 25.0
	hrDriftPct              = 8.0
	hrDriftDangerPct        = 12.0
	speedGainCeilingPct     = 2.0
	powerDropPct            = 15.0

	enduranceGapPoints = 20.0
	powerCVPct         = 15.0
	lowOverallScore    = 50.0
)

// Alerts runs the three anomaly scanners over the segment sequence in
// detection order, deduplicates by kilometer mark (first wins), and caps
// the result at maxAlerts.
func Alerts(segments []domain.Segment) []domain.Alert {
	if len(segments) < 3 {
		return []domain.Alert{}
	}

	var alerts []domain.Alert

	// Efficiency collapse vs the 3-segment trailing moving average.
	for i := 3; i < len(segments); i++ {
		movingAvg := (segments[i-1].EfficiencyScore + segments[i-2].EfficiencyScore + segments[i-3].EfficiencyScore) / 3
		if movingAvg <= 0 {
			continue
		}
		drop := (movingAvg - segments[i].EfficiencyScore) / movingAvg * 100
		if drop > efficiencyDropPct {
			km := kmMark(segments[i])
			severity := domain.SeverityWarning
			if drop > efficiencyDropDangerPct {
				severity = domain.SeverityDanger
			}
			alerts = append(alerts, domain.Alert{
				DistanceKM:  km,
				Description: fmt.Sprintf("Efficiency dropped %d%% at km %s", int(math.Round(drop)), km),
				Severity:    severity,
			})
		}
	}

	// Heart rate rising without a matching speed gain.
	for i := 1; i < len(segments); i++ {
		prev, cur := segments[i-1], segments[i]
		if prev.AvgHR <= 0 || prev.AvgSpeedMS <= 0 {
			continue
		}
		hrChange := (cur.AvgHR - prev.AvgHR) / prev.AvgHR * 100
		speedChange := (cur.AvgSpeedMS - prev.AvgSpeedMS) / prev.AvgSpeedMS * 100
		if hrChange > hrDriftPct && speedChange < speedGainCeilingPct {
			km := kmMark(cur)
			severity := domain.SeverityWarning
			if hrChange > hrDriftDangerPct {
				severity = domain.SeverityDanger
			}
			alerts = append(alerts, domain.Alert{
				DistanceKM:  km,
				Description: fmt.Sprintf("Heart rate rose %d%% without speed gain at km %s", int(math.Round(hrChange)), km),
				Severity:    severity,
			})
		}
	}

	// Power drop, only when both segments carry power.
	for i := 1; i < len(segments); i++ {
		prev, cur := segments[i-1], segments[i]
		if prev.AvgPower == nil || cur.AvgPower == nil || *prev.AvgPower <= 0 {
			continue
		}
		drop := (*prev.AvgPower - *cur.AvgPower) / *prev.AvgPower * 100
		if drop > powerDropPct {
			km := kmMark(cur)
			alerts = append(alerts, domain.Alert{
				DistanceKM:  km,
				Description: fmt.Sprintf("Power dropped %d%% at km %s", int(math.Round(drop)), km),
				Severity:    domain.SeverityWarning,
			})
		}
	}

	return dedupeAlerts(alerts)
}

func kmMark(seg domain.Segment) string {
	return fmt.Sprintf("%.1f", seg.StartDistanceM/1000)
}

// dedupeAlerts keeps the first alert per kilometer mark, preserving
// detection order, capped at maxAlerts.
func dedupeAlerts(alerts []domain.Alert) []domain.Alert {
	seen := make(map[string]struct{}, len(alerts))
	unique := make([]domain.Alert, 0, len(alerts))
	for _, a := range alerts {
		if _, dup := seen[a.DistanceKM]; dup {
			continue
		}
		seen[a.DistanceKM] = struct{}{}
		unique = append(unique, a)
		if len(unique) == maxAlerts {
			break
		}
	}
	return unique
}

// Recommendations derives up to three coaching suggestions in priority
// order: late-activity endurance collapse, repeated cardiac drift, power
// instability, then a generic running-economy fallback for low scores.
func Recommendations(segments []domain.Segment, alerts []domain.Alert) []domain.Recommendation {
	var recs []domain.Recommendation
	if len(segments) < 3 {
		return []domain.Recommendation{}
	}

	firstThird := segments[:len(segments)/3]
	lastThird := segments[len(segments)*2/3:]
	avgFirst := meanEfficiency(firstThird)
	avgLast := meanEfficiency(lastThird)
	if avgFirst-avgLast > enduranceGapPoints {
		recs = append(recs, domain.Recommendation{
			Icon:  "battery",
			Title: "Muscular endurance work",
			Description: fmt.Sprintf("Your efficiency fell %d points over the final third. Add tempo runs and eccentric strength work (eccentric squats, lunges) to build fatigue resistance.",
				int(math.Round(avgFirst-avgLast))),
		})
	}

	if countHRDriftAlerts(alerts) >= 2 {
		recs = append(recs, domain.Recommendation{
			Icon:        "heart",
			Title:       "Cardiac drift control",
			Description: "Multiple heart-rate drift points detected. Long aerobic Z2 runs improve cardiac economy and reduce drift.",
		})
	}

	if cv, ok := powerVariation(segments); ok && cv > powerCVPct {
		recs = append(recs, domain.Recommendation{
			Icon:        "bolt",
			Title:       "Power stability",
			Description: fmt.Sprintf("Power varied %d%% across segments. Steady-cadence work (90rpm+) and progressive runs help stabilise output.", int(math.Round(cv))),
		})
	}

	if meanEfficiency(segments) < lowOverallScore && len(recs) < maxRecommendations {
		recs = append(recs, domain.Recommendation{
			Icon:        "target",
			Title:       "Running economy focus",
			Description: "Overall score below 50. Prioritise running technique drills, 100m strides, and controlled Z2 runs.",
		})
	}

	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	if recs == nil {
		recs = []domain.Recommendation{}
	}
	return recs
}

func countHRDriftAlerts(alerts []domain.Alert) int {
	n := 0
	for _, a := range alerts {
		if containsHRDrift(a.Description) {
			n++
		}
	}
	return n
}

func containsHRDrift(description string) bool {
	const marker = "Heart rate rose"
	return len(description) >= len(marker) && description[:len(marker)] == marker
}

func meanEfficiency(segments []domain.Segment) float64 {
	if len(segments) == 0 {
		return 50
	}
	sum := 0.0
	for _, s := range segments {
		sum += s.EfficiencyScore
	}
	return sum / float64(len(segments))
}

// powerVariation returns the coefficient of variation of segment power, in
// percent, over segments that carry power data.
func powerVariation(segments []domain.Segment) (float64, bool) {
	var values []float64
	for _, s := range segments {
		if s.AvgPower != nil {
			values = append(values, *s.AvgPower)
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if mean == 0 {
		return 0, false
	}
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance) / mean * 100, true
}
