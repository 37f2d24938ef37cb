// Package events publishes notify-only analytics events to Kafka. Derived
// rows are recomputable from source data, so delivery is best effort and no
// outbox is kept.
package events

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/domain"
)

// Topics carrying analytics events.
const (
	TopicChartReady       = "analytics_chart_ready"
	TopicFingerprintReady = "analytics_fingerprint_ready"
)

// Event types carried in message headers.
const (
	EventChartReady       = "analytics.chart_ready"
	EventFingerprintReady = "analytics.fingerprint_ready"
)

type eventMeta struct {
	topic         string
	schemaSubject string
	schemaID      int
}

// catalog pins the static schema id framed into each message. Without a
// registry the ids only need to be stable per subject.
var catalog = map[string]eventMeta{
	EventChartReady:       {topic: TopicChartReady, schemaSubject: "analytics_chart_ready-value", schemaID: 1},
	EventFingerprintReady: {topic: TopicFingerprintReady, schemaSubject: "analytics_fingerprint_ready-value", schemaID: 2},
}

// ChartReadyPayload is the body of an analytics.chart_ready event.
type ChartReadyPayload struct {
	UserID     string    `json:"user_id"`
	ActivityID string    `json:"activity_id"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}

// FingerprintReadyPayload is the body of an analytics.fingerprint_ready event.
type FingerprintReadyPayload struct {
	UserID     string    `json:"user_id"`
	ActivityID string    `json:"activity_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// KafkaProducer lazily manages writers per topic.
type KafkaProducer struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// WriteMessages writes messages to the given topic, creating a writer if necessary.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writerForTopic(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writerForTopic(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Async:        false,
	}
	p.writers[topic] = writer
	return writer
}

// Close releases all writers.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// Emitter frames analytics events into the wire format and writes them.
type Emitter struct {
	writer messageWriter
	now    func() time.Time
}

// NewEmitter constructs an Emitter over a producer.
func NewEmitter(writer messageWriter) *Emitter {
	return &Emitter{writer: writer, now: func() time.Time { return time.Now().UTC() }}
}

// ChartReady announces a finished chart build for an activity.
func (e *Emitter) ChartReady(ctx context.Context, userID, activityID string, source domain.Source) error {
	return e.emit(ctx, EventChartReady, userID, ChartReadyPayload{
		UserID:     userID,
		ActivityID: activityID,
		Source:     string(source),
		OccurredAt: e.now(),
	})
}

// FingerprintReady announces a stored efficiency fingerprint.
func (e *Emitter) FingerprintReady(ctx context.Context, userID, activityID string) error {
	return e.emit(ctx, EventFingerprintReady, userID, FingerprintReadyPayload{
		UserID:     userID,
		ActivityID: activityID,
		OccurredAt: e.now(),
	})
}

func (e *Emitter) emit(ctx context.Context, eventType, partitionKey string, payload interface{}) error {
	meta, ok := catalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(partitionKey),
		Value: encodeWireFormat(meta.schemaID, body),
		Time:  e.now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "schema_subject", Value: []byte(meta.schemaSubject)},
		},
	}
	return e.writer.WriteMessages(ctx, meta.topic, msg)
}

// encodeWireFormat frames the payload with a magic byte and a big-endian
// schema id, matching what the consumer decodes.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
