package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSamples indicates the raw store held no rows for the activity.
	ErrNoSamples = errors.New("no raw samples found for activity")
	// ErrUnknownSource is returned for a provider outside the closed set.
	ErrUnknownSource = errors.New("unknown activity source")
	// ErrChartNotFound is returned when no chart cache row exists.
	ErrChartNotFound = errors.New("chart cache not found")
	// ErrFingerprintNotFound is returned when no fingerprint row exists.
	ErrFingerprintNotFound = errors.New("fingerprint not found")
)

// FetchError wraps a transient failure reaching the raw-data store with the
// identifiers that triggered it. The caller owns the retry policy.
type FetchError struct {
	UserID     string
	ActivityID string
	Source     Source
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch samples (user=%s, activity=%s, source=%s): %v", e.UserID, e.ActivityID, e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PersistError wraps a failed upsert of a derived result.
type PersistError struct {
	Kind string // chart_cache, fingerprint, fitness_score
	Key  string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s (%s): %v", e.Kind, e.Key, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
