package events

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/domain"
)

type capturedWrite struct {
	topic string
	msgs  []kafka.Message
}

type stubWriter struct {
	writes []capturedWrite
	err    error
}

func (s *stubWriter) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.writes = append(s.writes, capturedWrite{topic: topic, msgs: msgs})
	return s.err
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestChartReadyWireFormat(t *testing.T) {
	writer := &stubWriter{}
	emitter := NewEmitter(writer)
	fixed := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	emitter.now = func() time.Time { return fixed }

	err := emitter.ChartReady(context.Background(), "user-1", "act-9", domain.SourceGarmin)

	require.NoError(t, err)
	require.Len(t, writer.writes, 1)
	assert.Equal(t, TopicChartReady, writer.writes[0].topic)

	msg := writer.writes[0].msgs[0]
	assert.Equal(t, []byte("user-1"), msg.Key)
	assert.Equal(t, EventChartReady, headerValue(msg, "event_type"))
	assert.Equal(t, "analytics_chart_ready-value", headerValue(msg, "schema_subject"))

	require.Greater(t, len(msg.Value), 5)
	assert.Equal(t, byte(0), msg.Value[0], "magic byte")
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(msg.Value[1:5]))

	var payload ChartReadyPayload
	require.NoError(t, json.Unmarshal(msg.Value[5:], &payload))
	assert.Equal(t, "user-1", payload.UserID)
	assert.Equal(t, "act-9", payload.ActivityID)
	assert.Equal(t, "garmin", payload.Source)
	assert.True(t, payload.OccurredAt.Equal(fixed))
}

func TestFingerprintReadySchemaID(t *testing.T) {
	writer := &stubWriter{}
	emitter := NewEmitter(writer)

	require.NoError(t, emitter.FingerprintReady(context.Background(), "user-1", "act-9"))

	require.Len(t, writer.writes, 1)
	assert.Equal(t, TopicFingerprintReady, writer.writes[0].topic)

	msg := writer.writes[0].msgs[0]
	assert.Equal(t, uint32(2), binary.BigEndian.Uint32(msg.Value[1:5]))
	assert.Equal(t, EventFingerprintReady, headerValue(msg, "event_type"))
}

func TestEmitterPropagatesWriteErrors(t *testing.T) {
	writer := &stubWriter{err: errors.New("broker gone")}
	emitter := NewEmitter(writer)

	err := emitter.ChartReady(context.Background(), "user-1", "act-9", domain.SourcePolar)
	assert.Error(t, err)
}
