// Package postgres implements the analytics repository on pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/domain"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/normalize"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/persistence"
)

// samplePageSize bounds each page of the raw-sample read loop.
const samplePageSize = 1000

// Repository provides Postgres-backed persistence for source samples,
// summaries, profiles and the derived analytics tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FetchRawSamples reads the provider samples of one activity in pages of
// samplePageSize, ordered by sample index. Failures are wrapped in a
// FetchError carrying the activity coordinates.
func (r *Repository) FetchRawSamples(ctx context.Context, userID, activityID string, source domain.Source) ([]normalize.RawSample, error) {
	const query = `SELECT payload FROM activity_source_samples
        WHERE user_id=$1 AND activity_id=$2 AND source=$3
        ORDER BY sample_index LIMIT $4 OFFSET $5`

	var samples []normalize.RawSample
	for offset := 0; ; offset += samplePageSize {
		rows, err := r.pool.Query(ctx, query, userID, activityID, string(source), samplePageSize, offset)
		if err != nil {
			return nil, &domain.FetchError{UserID: userID, ActivityID: activityID, Source: source, Err: err}
		}

		count := 0
		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				rows.Close()
				return nil, &domain.FetchError{UserID: userID, ActivityID: activityID, Source: source, Err: err}
			}
			var sample normalize.RawSample
			if err := json.Unmarshal(payload, &sample); err != nil {
				rows.Close()
				return nil, &domain.FetchError{UserID: userID, ActivityID: activityID, Source: source, Err: err}
			}
			samples = append(samples, sample)
			count++
		}
		if err := rows.Err(); err != nil {
			return nil, &domain.FetchError{UserID: userID, ActivityID: activityID, Source: source, Err: err}
		}
		rows.Close()

		if count < samplePageSize {
			break
		}
	}
	return samples, nil
}

// ActivitySummaries returns a user's activity rollups between start and end
// calendar dates, inclusive, across all providers.
func (r *Repository) ActivitySummaries(ctx context.Context, userID, startDate, endDate string) ([]domain.ActivitySummary, error) {
	const query = `SELECT activity_date, duration, distance_meters, avg_hr, max_hr, avg_pace_min_km, elevation_gain, activity_type, source
        FROM activity_summaries
        WHERE user_id=$1 AND activity_date >= $2 AND activity_date <= $3
        ORDER BY activity_date`

	rows, err := r.pool.Query(ctx, query, userID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []domain.ActivitySummary
	for rows.Next() {
		var (
			s            domain.ActivitySummary
			duration     string
			activityType *string
			source       string
		)
		if err := rows.Scan(&s.Date, &duration, &s.DistanceMeters, &s.AvgHR, &s.MaxHR, &s.AvgPaceMinKM, &s.ElevationGain, &activityType, &source); err != nil {
			return nil, err
		}
		s.DurationSeconds = parseDuration(duration)
		s.ActivityType = "unknown"
		if activityType != nil && *activityType != "" {
			s.ActivityType = *activityType
		}
		s.Source = domain.Source(source)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

var isoDurationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?$`)

// parseDuration accepts plain seconds or an ISO-8601 PT#H#M#S duration, the
// format Polar reports. Unparseable values count as zero.
func parseDuration(raw string) float64 {
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		return seconds
	}
	m := isoDurationRe.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}
	hours, _ := strconv.ParseFloat(zeroIfEmpty(m[1]), 64)
	minutes, _ := strconv.ParseFloat(zeroIfEmpty(m[2]), 64)
	seconds, _ := strconv.ParseFloat(zeroIfEmpty(m[3]), 64)
	return hours*3600 + minutes*60 + seconds
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// GetProfile returns the user's zone-relevant attributes, or nil when no
// profile row exists.
func (r *Repository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	const query = `SELECT user_id, birth_date, max_hr FROM profiles WHERE user_id=$1`

	var p domain.Profile
	err := r.pool.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.BirthDate, &p.MaxHR)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// IsSubscriber reports whether the user holds an active entitlement.
func (r *Repository) IsSubscriber(ctx context.Context, userID string) (bool, error) {
	const query = `SELECT subscribed FROM subscribers WHERE user_id=$1`

	var subscribed bool
	err := r.pool.QueryRow(ctx, query, userID).Scan(&subscribed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return subscribed, nil
}

// EligibleUsers lists subscribed users that have at least one activity
// summary in the date range, in stable order for offset pagination.
func (r *Repository) EligibleUsers(ctx context.Context, startDate, endDate string) ([]string, error) {
	const query = `SELECT DISTINCT s.user_id FROM subscribers s
        JOIN activity_summaries a ON a.user_id = s.user_id
        WHERE s.subscribed AND a.activity_date >= $1 AND a.activity_date <= $2
        ORDER BY s.user_id`

	rows, err := r.pool.Query(ctx, query, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// ActiveDates lists the distinct calendar dates a user trained on within the
// range, ascending.
func (r *Repository) ActiveDates(ctx context.Context, userID, startDate, endDate string) ([]string, error) {
	const query = `SELECT DISTINCT activity_date FROM activity_summaries
        WHERE user_id=$1 AND activity_date >= $2 AND activity_date <= $3
        ORDER BY activity_date`

	rows, err := r.pool.Query(ctx, query, userID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// UpsertChartCache writes the derived chart row, replacing any previous
// build for the same (user, source, activity, version) key.
func (r *Repository) UpsertChartCache(ctx context.Context, cache domain.ChartCache) error {
	series, err := json.Marshal(cache.Series)
	if err != nil {
		return &domain.PersistError{Kind: "chart_cache", Key: cache.ActivityID, Err: err}
	}
	zones, err := json.Marshal(cache.Zones)
	if err != nil {
		return &domain.PersistError{Kind: "chart_cache", Key: cache.ActivityID, Err: err}
	}
	var stats []byte
	if cache.Stats != nil {
		if stats, err = json.Marshal(cache.Stats); err != nil {
			return &domain.PersistError{Kind: "chart_cache", Key: cache.ActivityID, Err: err}
		}
	}

	const stmt = `INSERT INTO activity_chart_cache
        (user_id, activity_source, activity_id, version, series, zones, stats, build_status, error_message, built_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (user_id, activity_source, activity_id, version) DO UPDATE SET
        series=EXCLUDED.series, zones=EXCLUDED.zones, stats=EXCLUDED.stats,
        build_status=EXCLUDED.build_status, error_message=EXCLUDED.error_message, built_at=EXCLUDED.built_at`

	_, err = r.pool.Exec(ctx, stmt,
		cache.UserID,
		string(cache.Source),
		cache.ActivityID,
		cache.Version,
		series,
		zones,
		stats,
		string(cache.BuildStatus),
		cache.ErrorMessage,
		cache.BuiltAt,
	)
	if err != nil {
		return &domain.PersistError{Kind: "chart_cache", Key: cache.ActivityID, Err: err}
	}
	return nil
}

// GetChartCache fetches the derived chart row for the key, or
// domain.ErrChartNotFound.
func (r *Repository) GetChartCache(ctx context.Context, userID string, source domain.Source, activityID string, version int) (*domain.ChartCache, error) {
	const query = `SELECT user_id, activity_source, activity_id, version, series, zones, stats, build_status, error_message, built_at
        FROM activity_chart_cache
        WHERE user_id=$1 AND activity_source=$2 AND activity_id=$3 AND version=$4`

	var (
		cache  domain.ChartCache
		series []byte
		zones  []byte
		stats  []byte
	)
	err := r.pool.QueryRow(ctx, query, userID, string(source), activityID, version).Scan(
		&cache.UserID, &cache.Source, &cache.ActivityID, &cache.Version,
		&series, &zones, &stats, &cache.BuildStatus, &cache.ErrorMessage, &cache.BuiltAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrChartNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(series, &cache.Series); err != nil {
		return nil, fmt.Errorf("decode chart series: %w", err)
	}
	if err := json.Unmarshal(zones, &cache.Zones); err != nil {
		return nil, fmt.Errorf("decode chart zones: %w", err)
	}
	if len(stats) > 0 {
		cache.Stats = &domain.ChartStats{}
		if err := json.Unmarshal(stats, cache.Stats); err != nil {
			return nil, fmt.Errorf("decode chart stats: %w", err)
		}
	}
	return &cache, nil
}

// UpsertFingerprint writes the efficiency fingerprint keyed by (user, activity).
func (r *Repository) UpsertFingerprint(ctx context.Context, fp domain.Fingerprint) error {
	segments, err := json.Marshal(fp.Segments)
	if err != nil {
		return &domain.PersistError{Kind: "fingerprint", Key: fp.ActivityID, Err: err}
	}
	alerts, err := json.Marshal(fp.Alerts)
	if err != nil {
		return &domain.PersistError{Kind: "fingerprint", Key: fp.ActivityID, Err: err}
	}
	recommendations, err := json.Marshal(fp.Recommendations)
	if err != nil {
		return &domain.PersistError{Kind: "fingerprint", Key: fp.ActivityID, Err: err}
	}

	const stmt = `INSERT INTO efficiency_fingerprints
        (user_id, activity_id, segments, alerts, recommendations, overall_score, insufficient_data, computed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (user_id, activity_id) DO UPDATE SET
        segments=EXCLUDED.segments, alerts=EXCLUDED.alerts,
        recommendations=EXCLUDED.recommendations, overall_score=EXCLUDED.overall_score,
        insufficient_data=EXCLUDED.insufficient_data, computed_at=EXCLUDED.computed_at`

	_, err = r.pool.Exec(ctx, stmt,
		fp.UserID,
		fp.ActivityID,
		segments,
		alerts,
		recommendations,
		fp.OverallScore,
		fp.InsufficientData,
		fp.ComputedAt,
	)
	if err != nil {
		return &domain.PersistError{Kind: "fingerprint", Key: fp.ActivityID, Err: err}
	}
	return nil
}

// GetFingerprint fetches the fingerprint for (user, activity), or
// domain.ErrFingerprintNotFound.
func (r *Repository) GetFingerprint(ctx context.Context, userID, activityID string) (*domain.Fingerprint, error) {
	const query = `SELECT user_id, activity_id, segments, alerts, recommendations, overall_score, insufficient_data, computed_at
        FROM efficiency_fingerprints WHERE user_id=$1 AND activity_id=$2`

	var (
		fp              domain.Fingerprint
		segments        []byte
		alerts          []byte
		recommendations []byte
	)
	err := r.pool.QueryRow(ctx, query, userID, activityID).Scan(
		&fp.UserID, &fp.ActivityID, &segments, &alerts, &recommendations,
		&fp.OverallScore, &fp.InsufficientData, &fp.ComputedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrFingerprintNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(segments, &fp.Segments); err != nil {
		return nil, fmt.Errorf("decode fingerprint segments: %w", err)
	}
	if err := json.Unmarshal(alerts, &fp.Alerts); err != nil {
		return nil, fmt.Errorf("decode fingerprint alerts: %w", err)
	}
	if err := json.Unmarshal(recommendations, &fp.Recommendations); err != nil {
		return nil, fmt.Errorf("decode fingerprint recommendations: %w", err)
	}
	return &fp, nil
}

// UpsertFitnessScore writes the daily score keyed by (user, calendar date).
func (r *Repository) UpsertFitnessScore(ctx context.Context, record domain.FitnessScoreRecord) error {
	const stmt = `INSERT INTO fitness_scores_daily
        (user_id, calendar_date, fitness_score, capacity_score, consistency_score, recovery_balance_score, daily_strain, atl_7day, ctl_42day)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (user_id, calendar_date) DO UPDATE SET
        fitness_score=EXCLUDED.fitness_score, capacity_score=EXCLUDED.capacity_score,
        consistency_score=EXCLUDED.consistency_score, recovery_balance_score=EXCLUDED.recovery_balance_score,
        daily_strain=EXCLUDED.daily_strain, atl_7day=EXCLUDED.atl_7day, ctl_42day=EXCLUDED.ctl_42day`

	_, err := r.pool.Exec(ctx, stmt,
		record.UserID,
		record.CalendarDate,
		record.FitnessScore,
		record.CapacityScore,
		record.ConsistencyScore,
		record.RecoveryBalanceScore,
		record.DailyStrain,
		record.ATL7Day,
		record.CTL42Day,
	)
	if err != nil {
		return &domain.PersistError{Kind: "fitness_score", Key: record.CalendarDate, Err: err}
	}
	return nil
}

// ListScores returns a user's score history newest first, with a resume
// cursor when the page filled.
func (r *Repository) ListScores(ctx context.Context, userID string, cursor *persistence.ScoreCursor, limit int) ([]domain.FitnessScoreRecord, *persistence.ScoreCursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT user_id, calendar_date, fitness_score, capacity_score, consistency_score, recovery_balance_score, daily_strain, atl_7day, ctl_42day, created_at
        FROM fitness_scores_daily WHERE user_id=$1`

	if cursor != nil {
		query += ` AND calendar_date < $3`
		args = append(args, cursor.CalendarDate)
	}
	query += ` ORDER BY calendar_date DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.FitnessScoreRecord, 0, limit)
	for rows.Next() {
		var rec domain.FitnessScoreRecord
		if err := rows.Scan(&rec.UserID, &rec.CalendarDate, &rec.FitnessScore, &rec.CapacityScore, &rec.ConsistencyScore, &rec.RecoveryBalanceScore, &rec.DailyStrain, &rec.ATL7Day, &rec.CTL42Day, &rec.CreatedAt); err != nil {
			return nil, nil, err
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *persistence.ScoreCursor
	if len(results) == limit {
		next = &persistence.ScoreCursor{CalendarDate: results[len(results)-1].CalendarDate}
	}
	return results, next, nil
}
