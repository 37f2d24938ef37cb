package backfill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/domain"
)

type stubRepo struct {
	users    []string
	usersErr error
	dates    map[string][]string
	datesErr map[string]error
}

func (s *stubRepo) EligibleUsers(ctx context.Context, startDate, endDate string) ([]string, error) {
	return s.users, s.usersErr
}

func (s *stubRepo) ActiveDates(ctx context.Context, userID, startDate, endDate string) ([]string, error) {
	if err := s.datesErr[userID]; err != nil {
		return nil, err
	}
	return s.dates[userID], nil
}

type stubScorer struct {
	mu      sync.Mutex
	calls   []string
	failOn  string
	failErr error
}

func (s *stubScorer) ComputeFitnessScore(ctx context.Context, userID, targetDate string) (*domain.FitnessScoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, userID+"/"+targetDate)
	if userID == s.failOn {
		return nil, s.failErr
	}
	return &domain.FitnessScoreRecord{UserID: userID, CalendarDate: targetDate}, nil
}

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func TestRunScoresEveryActiveDate(t *testing.T) {
	repo := &stubRepo{
		users: []string{"u1", "u2"},
		dates: map[string][]string{
			"u1": {"2026-05-01", "2026-05-02"},
			"u2": {"2026-05-03"},
		},
	}
	scorer := &stubScorer{}
	runner := NewRunner(repo, scorer, WithLogger(quiet()))

	report, err := runner.Run(context.Background(), Params{StartDate: "2026-05-01", EndDate: "2026-05-31"})

	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalUsers)
	assert.Equal(t, 2, report.UsersProcessed)
	assert.Equal(t, 3, report.ScoresCreated)
	assert.Empty(t, report.Errors)
	assert.Nil(t, report.NextOffset)
	assert.Len(t, scorer.calls, 3)
}

func TestRunBatchSlicingAndNextOffset(t *testing.T) {
	users := make([]string, 12)
	dates := make(map[string][]string, 12)
	for i := range users {
		users[i] = fmt.Sprintf("u%02d", i)
		dates[users[i]] = []string{"2026-05-01"}
	}
	repo := &stubRepo{users: users, dates: dates}
	scorer := &stubScorer{}
	runner := NewRunner(repo, scorer, WithLogger(quiet()))

	report, err := runner.Run(context.Background(), Params{BatchSize: 5, Offset: 5})

	require.NoError(t, err)
	assert.Equal(t, 12, report.TotalUsers)
	assert.Equal(t, 5, report.UsersProcessed)
	require.NotNil(t, report.NextOffset)
	assert.Equal(t, 10, *report.NextOffset)

	for _, call := range scorer.calls {
		assert.GreaterOrEqual(t, call, "u05/")
		assert.Less(t, call, "u10/")
	}
}

func TestRunLastBatchHasNoNextOffset(t *testing.T) {
	repo := &stubRepo{
		users: []string{"u1", "u2"},
		dates: map[string][]string{"u1": {"2026-05-01"}, "u2": {"2026-05-01"}},
	}
	runner := NewRunner(repo, &stubScorer{}, WithLogger(quiet()))

	report, err := runner.Run(context.Background(), Params{BatchSize: 5})

	require.NoError(t, err)
	assert.Nil(t, report.NextOffset)
}

func TestRunOffsetPastEnd(t *testing.T) {
	repo := &stubRepo{users: []string{"u1"}}
	runner := NewRunner(repo, &stubScorer{}, WithLogger(quiet()))

	report, err := runner.Run(context.Background(), Params{Offset: 10})

	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalUsers)
	assert.Zero(t, report.UsersProcessed)
	assert.Nil(t, report.NextOffset)
}

func TestRunIsolatesPerUserFailures(t *testing.T) {
	repo := &stubRepo{
		users: []string{"u1", "u2", "u3"},
		dates: map[string][]string{
			"u1": {"2026-05-01"},
			"u2": {"2026-05-01", "2026-05-02"},
			"u3": {"2026-05-01"},
		},
	}
	scorer := &stubScorer{failOn: "u2", failErr: errors.New("boom")}
	runner := NewRunner(repo, scorer, WithLogger(quiet()))

	report, err := runner.Run(context.Background(), Params{})

	require.NoError(t, err)
	assert.Equal(t, 3, report.UsersProcessed)
	assert.Equal(t, 2, report.ScoresCreated, "u2 contributes nothing past its first failure")
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "user u2")
	assert.Contains(t, report.Errors[0], "boom")
}

func TestRunActiveDatesFailureIsRecorded(t *testing.T) {
	repo := &stubRepo{
		users:    []string{"u1"},
		datesErr: map[string]error{"u1": errors.New("db down")},
	}
	runner := NewRunner(repo, &stubScorer{}, WithLogger(quiet()))

	report, err := runner.Run(context.Background(), Params{})

	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "active dates")
}

func TestRunEligibleUsersFailure(t *testing.T) {
	repo := &stubRepo{usersErr: errors.New("db down")}
	runner := NewRunner(repo, &stubScorer{}, WithLogger(quiet()))

	report, err := runner.Run(context.Background(), Params{})

	require.Error(t, err)
	assert.Nil(t, report)
}

func TestRunCancelledContext(t *testing.T) {
	users := make([]string, 20)
	dates := make(map[string][]string, 20)
	for i := range users {
		users[i] = fmt.Sprintf("u%02d", i)
		dates[users[i]] = []string{"2026-05-01"}
	}
	repo := &stubRepo{users: users, dates: dates}
	runner := NewRunner(repo, &stubScorer{}, WithLogger(quiet()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := runner.Run(ctx, Params{BatchSize: 10})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.UsersProcessed)
	assert.Nil(t, report.NextOffset, "a cancelled run must not advertise resume progress")
}
