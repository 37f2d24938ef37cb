// Package analytics orchestrates the derived-artifact pipelines: chart
// cache builds, efficiency fingerprints and daily fitness scores.
package analytics

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/domain"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/hrzone"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/load"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/normalize"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/observability"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/persistence"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/resample"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/segment"
)

// ChartVersion keys the persisted chart payload shape. Bump when the series
// format changes so stale rows rebuild instead of being served.
const ChartVersion = 1

// minFingerprintPoints gates the fingerprint pipeline; fewer filtered
// samples yields an insufficient-data result.
const minFingerprintPoints = 10

// Repository captures the persistence operations the service needs.
type Repository interface {
	FetchRawSamples(ctx context.Context, userID, activityID string, source domain.Source) ([]normalize.RawSample, error)
	ActivitySummaries(ctx context.Context, userID, startDate, endDate string) ([]domain.ActivitySummary, error)
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	UpsertChartCache(ctx context.Context, cache domain.ChartCache) error
	GetChartCache(ctx context.Context, userID string, source domain.Source, activityID string, version int) (*domain.ChartCache, error)
	UpsertFingerprint(ctx context.Context, fp domain.Fingerprint) error
	GetFingerprint(ctx context.Context, userID, activityID string) (*domain.Fingerprint, error)
	UpsertFitnessScore(ctx context.Context, record domain.FitnessScoreRecord) error
	ListScores(ctx context.Context, userID string, cursor *persistence.ScoreCursor, limit int) ([]domain.FitnessScoreRecord, *persistence.ScoreCursor, error)
}

// Publisher emits notify-only events after derived rows land.
type Publisher interface {
	ChartReady(ctx context.Context, userID, activityID string, source domain.Source) error
	FingerprintReady(ctx context.Context, userID, activityID string) error
}

// Service runs the analytics pipelines against a Repository.
type Service struct {
	repo      Repository
	publisher Publisher
	logger    *log.Logger
	now       func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithPublisher attaches an event publisher. Without one, computations
// still persist but emit nothing.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: log.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildChartCache normalizes an activity's samples into the persisted chart
// payload. The row moves through pending to ready, or to error with the
// failure message, and the last state is always what was stored.
func (s *Service) BuildChartCache(ctx context.Context, userID, activityID string, source domain.Source) (*domain.ChartCache, error) {
	if !source.Valid() {
		return nil, domain.ErrUnknownSource
	}

	cache := domain.ChartCache{
		UserID:      userID,
		Source:      source,
		ActivityID:  activityID,
		Version:     ChartVersion,
		BuildStatus: domain.BuildStatusPending,
		BuiltAt:     s.now(),
	}
	if err := s.repo.UpsertChartCache(ctx, cache); err != nil {
		return nil, err
	}

	raw, err := s.repo.FetchRawSamples(ctx, userID, activityID, source)
	if err != nil {
		return nil, s.failChart(ctx, cache, err)
	}

	series, dropped, err := normalize.Series(source, raw)
	if err != nil {
		return nil, s.failChart(ctx, cache, err)
	}
	if dropped > 0 {
		s.logger.Printf("chart build user=%s activity=%s dropped %d unusable samples", userID, activityID, dropped)
	}

	useful := filterUseful(series)
	if len(useful) == 0 {
		return nil, s.failChart(ctx, cache, domain.ErrNoSamples)
	}

	chartSeries := resample.ByDistanceStep(useful, 50)
	if len(chartSeries) > resample.LTTBThreshold {
		chartSeries = resample.LTTB(chartSeries, resample.DefaultCap)
	}

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		s.logger.Printf("chart build user=%s: profile lookup failed, using fallbacks: %v", userID, err)
		profile = nil
	}
	maxHR := hrzone.ResolveMaxHR(
		hrzone.FromProfile(profile),
		hrzone.FromAge(profile, s.now()),
		hrzone.FromObserved(useful),
	)

	cache.Series = stripTimestamps(chartSeries)
	cache.Zones = hrzone.Classify(useful, maxHR)
	cache.Stats = chartStats(useful)
	cache.BuildStatus = domain.BuildStatusReady
	cache.BuiltAt = s.now()

	if err := s.repo.UpsertChartCache(ctx, cache); err != nil {
		observability.RecordComputation("chart", "error")
		return nil, err
	}
	observability.RecordComputation("chart", "ok")
	observability.RecordChartBuilt(cache.BuiltAt)

	if s.publisher != nil {
		if err := s.publisher.ChartReady(ctx, userID, activityID, source); err != nil {
			s.logger.Printf("chart ready event user=%s activity=%s: %v", userID, activityID, err)
		}
	}
	return &cache, nil
}

// failChart records the error state on the chart row and returns the
// original failure.
func (s *Service) failChart(ctx context.Context, cache domain.ChartCache, cause error) error {
	msg := cause.Error()
	cache.BuildStatus = domain.BuildStatusError
	cache.ErrorMessage = &msg
	cache.BuiltAt = s.now()
	if err := s.repo.UpsertChartCache(ctx, cache); err != nil {
		s.logger.Printf("chart error-state upsert user=%s activity=%s: %v", cache.UserID, cache.ActivityID, err)
	}
	observability.RecordComputation("chart", "error")
	return cause
}

// GetChartCache returns the stored chart row for the current version.
func (s *Service) GetChartCache(ctx context.Context, userID string, source domain.Source, activityID string) (*domain.ChartCache, error) {
	if !source.Valid() {
		return nil, domain.ErrUnknownSource
	}
	return s.repo.GetChartCache(ctx, userID, source, activityID, ChartVersion)
}

// ComputeFingerprint produces the 250 m efficiency fingerprint. A stored
// fingerprint is returned as-is; pass force to recompute.
func (s *Service) ComputeFingerprint(ctx context.Context, userID, activityID string, source domain.Source, force bool) (*domain.Fingerprint, error) {
	if !source.Valid() {
		return nil, domain.ErrUnknownSource
	}

	if !force {
		if existing, err := s.repo.GetFingerprint(ctx, userID, activityID); err == nil {
			return existing, nil
		} else if !errors.Is(err, domain.ErrFingerprintNotFound) {
			return nil, err
		}
	}

	series, err := s.loadSeries(ctx, userID, activityID, source)
	if err != nil {
		observability.RecordComputation("fingerprint", "error")
		return nil, err
	}

	filtered := filterForSegments(series)
	if len(filtered) < minFingerprintPoints {
		return s.insufficientFingerprint(ctx, userID, activityID)
	}

	segments := segment.Analyze(filtered, segment.FingerprintDistanceM)
	if len(segments) < 2 {
		return s.insufficientFingerprint(ctx, userID, activityID)
	}

	alerts := segment.Alerts(segments)
	fp := domain.Fingerprint{
		UserID:          userID,
		ActivityID:      activityID,
		Segments:        segments,
		Alerts:          alerts,
		Recommendations: segment.Recommendations(segments, alerts),
		OverallScore:    segment.OverallScore(segments),
		ComputedAt:      s.now(),
	}
	if err := s.repo.UpsertFingerprint(ctx, fp); err != nil {
		observability.RecordComputation("fingerprint", "error")
		return nil, err
	}
	observability.RecordComputation("fingerprint", "ok")

	if s.publisher != nil {
		if err := s.publisher.FingerprintReady(ctx, userID, activityID); err != nil {
			s.logger.Printf("fingerprint ready event user=%s activity=%s: %v", userID, activityID, err)
		}
	}
	return &fp, nil
}

func (s *Service) insufficientFingerprint(ctx context.Context, userID, activityID string) (*domain.Fingerprint, error) {
	fp := domain.Fingerprint{
		UserID:           userID,
		ActivityID:       activityID,
		Segments:         []domain.Segment{},
		Alerts:           []domain.Alert{},
		Recommendations:  []domain.Recommendation{},
		InsufficientData: true,
		ComputedAt:       s.now(),
	}
	if err := s.repo.UpsertFingerprint(ctx, fp); err != nil {
		observability.RecordComputation("fingerprint", "error")
		return nil, err
	}
	observability.RecordComputation("fingerprint", "insufficient_data")
	return &fp, nil
}

// GetFingerprint returns the stored fingerprint.
func (s *Service) GetFingerprint(ctx context.Context, userID, activityID string) (*domain.Fingerprint, error) {
	return s.repo.GetFingerprint(ctx, userID, activityID)
}

// SegmentChart runs the per-kilometer segmentation used by the chart view.
func (s *Service) SegmentChart(ctx context.Context, userID, activityID string, source domain.Source) ([]domain.Segment, error) {
	if !source.Valid() {
		return nil, domain.ErrUnknownSource
	}
	series, err := s.loadSeries(ctx, userID, activityID, source)
	if err != nil {
		return nil, err
	}
	return segment.Analyze(filterForSegments(series), segment.ChartDistanceM), nil
}

// loadSeries prefers the ready chart cache series and falls back to
// normalizing raw samples.
func (s *Service) loadSeries(ctx context.Context, userID, activityID string, source domain.Source) ([]domain.SeriesPoint, error) {
	cache, err := s.repo.GetChartCache(ctx, userID, source, activityID, ChartVersion)
	if err == nil && cache.BuildStatus == domain.BuildStatusReady && len(cache.Series) > 0 {
		return cache.Series, nil
	}
	if err != nil && !errors.Is(err, domain.ErrChartNotFound) {
		return nil, err
	}

	raw, err := s.repo.FetchRawSamples(ctx, userID, activityID, source)
	if err != nil {
		return nil, err
	}
	series, _, err := normalize.Series(source, raw)
	if err != nil {
		return nil, err
	}
	return series, nil
}

// ComputeFitnessScore computes and stores the daily training-load score for
// targetDate (YYYY-MM-DD, empty means today) from the 60-day lookback.
func (s *Service) ComputeFitnessScore(ctx context.Context, userID, targetDate string) (*domain.FitnessScoreRecord, error) {
	target := s.now()
	if targetDate != "" {
		parsed, err := time.Parse("2006-01-02", targetDate)
		if err != nil {
			return nil, err
		}
		target = parsed
	}
	dateStr := target.Format("2006-01-02")
	startStr := target.AddDate(0, 0, -load.LookbackDays).Format("2006-01-02")

	summaries, err := s.repo.ActivitySummaries(ctx, userID, startStr, dateStr)
	if err != nil {
		observability.RecordComputation("fitness_score", "error")
		return nil, err
	}

	record := load.Compose(userID, dateStr, summaries)
	if err := s.repo.UpsertFitnessScore(ctx, record); err != nil {
		observability.RecordComputation("fitness_score", "error")
		return nil, err
	}
	observability.RecordComputation("fitness_score", "ok")
	observability.RecordScoreComputed(s.now())
	return &record, nil
}

// ListScores returns the user's score history newest first.
func (s *Service) ListScores(ctx context.Context, userID string, cursor *persistence.ScoreCursor, limit int) ([]domain.FitnessScoreRecord, *persistence.ScoreCursor, error) {
	return s.repo.ListScores(ctx, userID, cursor, limit)
}

// filterUseful keeps samples that carry either heart rate or movement.
func filterUseful(series []domain.SeriesPoint) []domain.SeriesPoint {
	out := make([]domain.SeriesPoint, 0, len(series))
	for _, p := range series {
		hasHR := p.HeartRate != nil && *p.HeartRate > 0
		hasSpeed := p.SpeedMS != nil && *p.SpeedMS > 0
		if hasHR || hasSpeed {
			out = append(out, p)
		}
	}
	return out
}

// filterForSegments keeps samples usable for efficiency math: moving faster
// than a walk-threshold with a plausible heart rate and positive distance.
func filterForSegments(series []domain.SeriesPoint) []domain.SeriesPoint {
	out := make([]domain.SeriesPoint, 0, len(series))
	for _, p := range series {
		if p.SpeedMS == nil || *p.SpeedMS <= 0.5 {
			continue
		}
		if p.HeartRate == nil || *p.HeartRate <= 30 {
			continue
		}
		if p.DistanceM <= 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

func stripTimestamps(series []domain.SeriesPoint) []domain.SeriesPoint {
	out := make([]domain.SeriesPoint, len(series))
	for i, p := range series {
		p.TimestampMS = nil
		out[i] = p
	}
	return out
}

// chartStats summarises the useful series: total distance, average heart
// rate, and average pace over paces in the open (0, 20) band.
func chartStats(series []domain.SeriesPoint) *domain.ChartStats {
	if len(series) == 0 {
		return nil
	}
	stats := &domain.ChartStats{
		DistanceKM: math.Round(series[len(series)-1].DistanceM/1000*100) / 100,
	}

	hrSum, hrCount := 0, 0
	paceSum, paceCount := 0.0, 0
	for _, p := range series {
		if p.HeartRate != nil && *p.HeartRate > 0 {
			hrSum += *p.HeartRate
			hrCount++
		}
		if p.PaceMinKM != nil && *p.PaceMinKM > 0 && *p.PaceMinKM < 20 {
			paceSum += *p.PaceMinKM
			paceCount++
		}
	}
	if hrCount > 0 {
		avg := int(math.Round(float64(hrSum) / float64(hrCount)))
		stats.AvgHR = &avg
	}
	if paceCount > 0 {
		avg := math.Round(paceSum/float64(paceCount)*100) / 100
		stats.AvgPaceMinPerKM = &avg
	}
	return stats
}
