package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/domain"
)

// Event types that trigger a recompute of the derived artifacts.
const (
	EventActivityCreated = "activity.created"
	EventSamplesReady    = "activity.samples_ready"
)

// AnalyticsService is the slice of the analytics pipeline the handler drives.
type AnalyticsService interface {
	BuildChartCache(ctx context.Context, userID, activityID string, source domain.Source) (*domain.ChartCache, error)
	ComputeFingerprint(ctx context.Context, userID, activityID string, source domain.Source, force bool) (*domain.Fingerprint, error)
	ComputeFitnessScore(ctx context.Context, userID, targetDate string) (*domain.FitnessScoreRecord, error)
}

// activityEvent is the payload shared by the triggering event types.
type activityEvent struct {
	UserID     string `json:"user_id"`
	ActivityID string `json:"activity_id"`
	Source     string `json:"source"`
}

// RecomputeHandler rebuilds chart, fingerprint and daily score whenever an
// activity lands or its samples finish syncing.
type RecomputeHandler struct {
	service AnalyticsService
}

// NewRecomputeHandler constructs a handler over the analytics service.
func NewRecomputeHandler(service AnalyticsService) *RecomputeHandler {
	return &RecomputeHandler{service: service}
}

// Handle processes one decoded message. Unknown event types are ignored so
// the topic can carry other traffic. Returning an error leaves the offset
// uncommitted for redelivery.
func (h *RecomputeHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case EventActivityCreated, EventSamplesReady:
	default:
		return nil
	}

	var event activityEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("decode %s payload: %w", msg.EventType, err)
	}
	if event.UserID == "" || event.ActivityID == "" {
		return fmt.Errorf("%s payload missing user_id or activity_id", msg.EventType)
	}
	source := domain.Source(event.Source)
	if !source.Valid() {
		return domain.ErrUnknownSource
	}

	if _, err := h.service.BuildChartCache(ctx, event.UserID, event.ActivityID, source); err != nil {
		return fmt.Errorf("build chart: %w", err)
	}
	if _, err := h.service.ComputeFingerprint(ctx, event.UserID, event.ActivityID, source, true); err != nil {
		return fmt.Errorf("compute fingerprint: %w", err)
	}
	if _, err := h.service.ComputeFitnessScore(ctx, event.UserID, ""); err != nil {
		return fmt.Errorf("compute fitness score: %w", err)
	}
	return nil
}
