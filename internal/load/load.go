// Package load turns activity summaries into daily strain values and an
// exponentially weighted training-load fitness score.
package load

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/domain"
)

const (
	// LookbackDays is the activity window feeding a score computation.
	LookbackDays = 60

	minStrainMinutes = 5

	atlDecayDays = 7.0
	ctlDecayDays = 42.0
	loadWindow   = 42

	capacityCeiling    = 60.0
	consistencyCeiling = 20.0
	consistencyWindow  = 14
)

// sportMultipliers scale strain by modality. Matching is substring,
// case-insensitive, first hit wins.
var sportMultipliers = []struct {
	sport      string
	multiplier float64
}{
	{"running", 1.2},
	{"cycling", 1.0},
	{"swimming", 1.3},
	{"strength", 0.8},
	{"yoga", 0.3},
	{"walking", 0.4},
	{"hiking", 0.7},
}

// Strain computes the training strain of a single activity. Activities
// under five minutes score zero.
func Strain(a domain.ActivitySummary) float64 {
	minutes := a.DurationSeconds / 60
	if minutes < minStrainMinutes {
		return 0
	}

	strain := math.Log(minutes+1) * 10

	// Intensity from heart rate when both averages exist, else from pace.
	intensity := 1.0
	if a.AvgHR != nil && a.MaxHR != nil {
		intensity = clamp(*a.AvgHR/180, 0.5, 2.0)
	} else if a.AvgPaceMinKM != nil && *a.AvgPaceMinKM > 0 {
		intensity = math.Min(2.0, math.Max(0.5, 6 / *a.AvgPaceMinKM))
	}
	strain *= intensity

	if a.ElevationGain != nil && *a.ElevationGain > 50 {
		strain += math.Log(*a.ElevationGain/100+1) * 5
	}

	lower := strings.ToLower(a.ActivityType)
	for _, sm := range sportMultipliers {
		if strings.Contains(lower, sm.sport) {
			strain *= sm.multiplier
			break
		}
	}

	return math.Round(strain*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// DailyStrains sums per-activity strain by calendar date.
func DailyStrains(activities []domain.ActivitySummary) map[string]float64 {
	daily := make(map[string]float64)
	for _, a := range activities {
		daily[a.Date] += Strain(a)
	}
	return daily
}

// RollingLoads computes the acute (7-day decay) and chronic (42-day decay)
// training loads over the most recent 42 recorded dates.
func RollingLoads(daily map[string]float64) (atl, ctl float64) {
	dates := make([]string, 0, len(daily))
	for d := range daily {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	if len(dates) > loadWindow {
		dates = dates[len(dates)-loadWindow:]
	}

	for i, d := range dates {
		daysAgo := float64(len(dates) - 1 - i)
		strain := daily[d]
		atl += strain * math.Exp(-daysAgo/atlDecayDays)
		ctl += strain * math.Exp(-daysAgo/ctlDecayDays)
	}
	return atl, ctl
}

// ConsistencyScore awards up to 20 points for active days across the 14
// days preceding the target date.
func ConsistencyScore(daily map[string]float64, targetDate string) float64 {
	target, err := time.Parse("2006-01-02", targetDate)
	if err != nil {
		return 0
	}
	active := 0
	for i := consistencyWindow; i >= 1; i-- {
		day := target.AddDate(0, 0, -i).Format("2006-01-02")
		if daily[day] > 0 {
			active++
		}
	}
	return math.Min(consistencyCeiling, float64(active)/consistencyWindow*consistencyCeiling)
}

// RecoveryBalanceScore grades the acute-to-chronic load ratio in steps.
// A ratio near 1.0 means training stress matches accumulated fitness.
func RecoveryBalanceScore(atl, ctl float64) float64 {
	if ctl == 0 {
		return 10
	}
	ratio := atl / ctl
	switch {
	case ratio >= 0.8 && ratio <= 1.2:
		return 20
	case ratio >= 0.6 && ratio <= 1.5:
		return 15
	case ratio >= 0.4 && ratio <= 2.0:
		return 10
	default:
		return 5
	}
}

// Compose assembles the full daily score record for targetDate from the
// given activities.
func Compose(userID, targetDate string, activities []domain.ActivitySummary) domain.FitnessScoreRecord {
	daily := DailyStrains(activities)
	atl, ctl := RollingLoads(daily)

	capacity := math.Min(capacityCeiling, ctl/20)
	consistency := ConsistencyScore(daily, targetDate)
	recovery := RecoveryBalanceScore(atl, ctl)

	return domain.FitnessScoreRecord{
		UserID:               userID,
		CalendarDate:         targetDate,
		FitnessScore:         math.Round((capacity+consistency+recovery)*100) / 100,
		CapacityScore:        capacity,
		ConsistencyScore:     consistency,
		RecoveryBalanceScore: recovery,
		DailyStrain:          daily[targetDate],
		ATL7Day:              atl,
		CTL42Day:             ctl,
	}
}
