// Package domain defines the canonical analytics types and business logic.
package domain

import "time"

// Source identifies the wearable provider an activity's samples came from.
type Source string

const (
	SourceGarmin  Source = "garmin"
	SourcePolar   Source = "polar"
	SourceStrava  Source = "strava"
	SourceGPX     Source = "gpx"
	SourceZeppGPX Source = "zepp_gpx"
)

// KnownSources lists every provider the normalizer can dispatch on.
var KnownSources = []Source{SourceGarmin, SourcePolar, SourceStrava, SourceGPX, SourceZeppGPX}

// Valid reports whether the source is one of the known providers.
func (s Source) Valid() bool {
	for _, known := range KnownSources {
		if s == known {
			return true
		}
	}
	return false
}

// SeriesPoint is one canonical sample of an activity. Nullable fields are
// pointers; a valid series is sorted by non-decreasing DistanceM.
type SeriesPoint struct {
	DistanceM  float64  `json:"distance_m"`
	SpeedMS    *float64 `json:"speed_ms"`
	PaceMinKM  *float64 `json:"pace_min_per_km"`
	HeartRate  *int     `json:"heart_rate"`
	PowerWatts *float64 `json:"power_watts"`
	ElevationM *float64 `json:"elevation_m"`
	// TimestampMS is epoch milliseconds. Sources that report relative
	// offsets keep them in milliseconds too; only deltas are consumed.
	TimestampMS *int64 `json:"ts,omitempty"`
}

// SegmentLabel classifies a segment's normalized efficiency.
type SegmentLabel string

const (
	LabelGreen  SegmentLabel = "green"
	LabelYellow SegmentLabel = "yellow"
	LabelRed    SegmentLabel = "red"
)

// Segment is a fixed-distance slice of an activity with per-segment aggregates.
type Segment struct {
	SegmentNumber     int          `json:"segment_number"`
	StartDistanceM    float64      `json:"start_distance_m"`
	EndDistanceM      float64      `json:"end_distance_m"`
	AvgPaceMinKM      float64      `json:"avg_pace_min_km"`
	AvgHR             float64      `json:"avg_hr"`
	AvgPower          *float64     `json:"avg_power"`
	AvgSpeedMS        float64      `json:"avg_speed_ms"`
	EfficiencyScore   float64      `json:"efficiency_score"`
	HREfficiencyDelta float64      `json:"hr_efficiency_delta"`
	Label             SegmentLabel `json:"label"`
	PointCount        int          `json:"point_count"`
}

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	SeverityWarning AlertSeverity = "warning"
	SeverityDanger  AlertSeverity = "danger"
)

// Alert flags an anomaly detected at a point of the activity.
type Alert struct {
	DistanceKM  string        `json:"distance_km"`
	Description string        `json:"description"`
	Severity    AlertSeverity `json:"severity"`
}

// Recommendation is a coaching suggestion derived from the segment sequence.
type Recommendation struct {
	Icon        string `json:"icon"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// HeartRateZone is one of the five intensity buckets of an activity.
type HeartRateZone struct {
	Zone          string `json:"zone"`
	Label         string `json:"label"`
	MinHR         int    `json:"min_hr"`
	MaxHR         int    `json:"max_hr"`
	TimeInZoneSec int    `json:"time_in_zone_seconds"`
	Percentage    int    `json:"percentage"`
	Color         string `json:"color_token"`
}

// ChartStats summarises a chart series.
type ChartStats struct {
	DistanceKM      float64  `json:"distance_km"`
	AvgHR           *int     `json:"avg_hr"`
	AvgPaceMinPerKM *float64 `json:"avg_pace_min_per_km"`
}

// BuildStatus tracks the lifecycle of a chart cache row.
type BuildStatus string

const (
	BuildStatusPending BuildStatus = "pending"
	BuildStatusReady   BuildStatus = "ready"
	BuildStatusError   BuildStatus = "error"
)

// ChartCache is the persisted derived chart for one activity, keyed by
// (user, source, activity, version).
type ChartCache struct {
	UserID       string          `json:"user_id"`
	Source       Source          `json:"activity_source"`
	ActivityID   string          `json:"activity_id"`
	Version      int             `json:"version"`
	Series       []SeriesPoint   `json:"series"`
	Zones        []HeartRateZone `json:"zones"`
	Stats        *ChartStats     `json:"stats"`
	BuildStatus  BuildStatus     `json:"build_status"`
	ErrorMessage *string         `json:"error_message"`
	BuiltAt      time.Time       `json:"built_at"`
}

// Fingerprint is the efficiency fingerprint of one activity, keyed by
// (user, activity).
type Fingerprint struct {
	UserID           string           `json:"user_id"`
	ActivityID       string           `json:"activity_id"`
	Segments         []Segment        `json:"segments"`
	Alerts           []Alert          `json:"alerts"`
	Recommendations  []Recommendation `json:"recommendations"`
	OverallScore     int              `json:"overall_score"`
	InsufficientData bool             `json:"insufficient_data"`
	ComputedAt       time.Time        `json:"computed_at"`
}

// ActivitySummary is the per-activity rollup consumed by the load scorer.
// Raw rows come from provider-specific tables; all providers are mapped
// into this shape by the repository.
type ActivitySummary struct {
	Date            string // calendar date, YYYY-MM-DD
	DurationSeconds float64
	DistanceMeters  *float64
	AvgHR           *float64
	MaxHR           *float64
	AvgPaceMinKM    *float64
	ElevationGain   *float64
	ActivityType    string
	Source          Source
}

// FitnessScoreRecord is the persisted daily score, keyed by (user, date).
type FitnessScoreRecord struct {
	UserID               string    `json:"user_id"`
	CalendarDate         string    `json:"calendar_date"`
	FitnessScore         float64   `json:"fitness_score"`
	CapacityScore        float64   `json:"capacity_score"`
	ConsistencyScore     float64   `json:"consistency_score"`
	RecoveryBalanceScore float64   `json:"recovery_balance_score"`
	DailyStrain          float64   `json:"daily_strain"`
	ATL7Day              float64   `json:"atl_7day"`
	CTL42Day             float64   `json:"ctl_42day"`
	CreatedAt            time.Time `json:"created_at,omitempty"`
}

// Profile carries the optional user attributes used by zone classification.
type Profile struct {
	UserID    string
	BirthDate *time.Time
	MaxHR     *int
}
