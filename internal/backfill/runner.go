// Package backfill recomputes historical daily fitness scores in batches.
package backfill

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/domain"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/observability"
)

const (
	// DefaultBatchSize bounds one Run invocation; callers resume with the
	// report's next offset.
	DefaultBatchSize = 50

	// chunkSize users are scored concurrently at a time.
	chunkSize = 5
)

// Scorer computes one user's score for one calendar date.
type Scorer interface {
	ComputeFitnessScore(ctx context.Context, userID, targetDate string) (*domain.FitnessScoreRecord, error)
}

// Repository supplies batch eligibility and per-user activity dates.
type Repository interface {
	EligibleUsers(ctx context.Context, startDate, endDate string) ([]string, error)
	ActiveDates(ctx context.Context, userID, startDate, endDate string) ([]string, error)
}

// Params selects the date range and the slice of eligible users to process.
type Params struct {
	StartDate string
	EndDate   string
	BatchSize int
	Offset    int
}

// Report summarises one batch. NextOffset is set when eligible users remain
// beyond this batch.
type Report struct {
	TotalUsers     int           `json:"total_users"`
	UsersProcessed int           `json:"users_processed"`
	ScoresCreated  int           `json:"scores_created"`
	NextOffset     *int          `json:"next_offset,omitempty"`
	Errors         []string      `json:"errors"`
	Duration       time.Duration `json:"-"`
}

// Runner drives batched score recomputation.
type Runner struct {
	repo   Repository
	scorer Scorer
	logger *log.Logger
}

// Option customises a Runner.
type Option func(*Runner)

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner constructs a Runner.
func NewRunner(repo Repository, scorer Scorer, opts ...Option) *Runner {
	r := &Runner{repo: repo, scorer: scorer, logger: log.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes one batch of eligible users. Users are scored in chunks of
// five concurrently; one user's failure is recorded and does not stop the
// batch. Cancellation stops before the next chunk starts.
func (r *Runner) Run(ctx context.Context, params Params) (*Report, error) {
	start := time.Now()
	if params.BatchSize <= 0 {
		params.BatchSize = DefaultBatchSize
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	users, err := r.repo.EligibleUsers(ctx, params.StartDate, params.EndDate)
	if err != nil {
		return nil, fmt.Errorf("list eligible users: %w", err)
	}

	report := &Report{TotalUsers: len(users), Errors: []string{}}
	if params.Offset >= len(users) {
		report.Duration = time.Since(start)
		return report, nil
	}

	end := params.Offset + params.BatchSize
	if end > len(users) {
		end = len(users)
	}
	batch := users[params.Offset:end]

	var mu sync.Mutex
	for chunkStart := 0; chunkStart < len(batch); chunkStart += chunkSize {
		if ctx.Err() != nil {
			break
		}
		chunkEnd := chunkStart + chunkSize
		if chunkEnd > len(batch) {
			chunkEnd = len(batch)
		}

		var wg sync.WaitGroup
		for _, userID := range batch[chunkStart:chunkEnd] {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				created, err := r.processUser(ctx, userID, params.StartDate, params.EndDate)
				mu.Lock()
				defer mu.Unlock()
				report.UsersProcessed++
				report.ScoresCreated += created
				if err != nil {
					report.Errors = append(report.Errors, fmt.Sprintf("user %s: %v", userID, err))
				}
			}(userID)
		}
		wg.Wait()
	}

	if end < len(users) && ctx.Err() == nil {
		next := end
		report.NextOffset = &next
	}
	report.Duration = time.Since(start)
	observability.RecordBackfillBatch(report.Duration, report.UsersProcessed)
	r.logger.Printf("backfill batch done users=%d scores=%d errors=%d in %s",
		report.UsersProcessed, report.ScoresCreated, len(report.Errors), report.Duration)
	return report, ctx.Err()
}

// processUser recomputes every active date of one user, stopping at the
// first error for that user.
func (r *Runner) processUser(ctx context.Context, userID, startDate, endDate string) (int, error) {
	dates, err := r.repo.ActiveDates(ctx, userID, startDate, endDate)
	if err != nil {
		return 0, fmt.Errorf("active dates: %w", err)
	}

	created := 0
	for _, date := range dates {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		if _, err := r.scorer.ComputeFitnessScore(ctx, userID, date); err != nil {
			return created, fmt.Errorf("score %s: %w", date, err)
		}
		created++
	}
	return created, nil
}
