// Package events publishes routing events as JSON CloudEvents to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kass/go-eco-route/pkg/models"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	// TypeRoutesComputed is emitted once per freshly computed routing response
	TypeRoutesComputed = "ecoroute.routes.computed"

	DefaultSource = "ecoroute"
	specVersion   = "1.0"
)

// CloudEvent is the envelope every message is wrapped in
type CloudEvent struct {
	SpecVersion string          `json:"specversion"`
	ID          string          `json:"id"`
	Source      string          `json:"source"`
	Type        string          `json:"type"`
	Time        time.Time       `json:"time"`
	Data        json.RawMessage `json:"data"`
}

// NewCloudEvent marshals data into a new envelope with a random id
func NewCloudEvent(source, eventType string, data interface{}) (CloudEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return CloudEvent{}, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return CloudEvent{
		SpecVersion: specVersion,
		ID:          uuid.New().String(),
		Source:      source,
		Type:        eventType,
		Time:        time.Now().UTC(),
		Data:        raw,
	}, nil
}

// ParseCloudEvent decodes an envelope from a message value
func ParseCloudEvent(b []byte) (CloudEvent, error) {
	var ce CloudEvent
	if err := json.Unmarshal(b, &ce); err != nil {
		return CloudEvent{}, fmt.Errorf("failed to parse cloud event: %w", err)
	}
	return ce, nil
}

// RoutesComputed summarizes one routing response
type RoutesComputed struct {
	RequestID   string            `json:"request_id,omitempty"`
	CacheKey    string            `json:"cache_key"`
	Start       models.Location   `json:"start"`
	End         models.Location   `json:"end"`
	Profile     models.Preference `json:"profile"`
	Mode        string            `json:"mode"`
	Candidates  int               `json:"candidates"`
	Recommended string            `json:"recommended"`
	EcoScore    int               `json:"eco_score"`
	AvgAQI      int               `json:"avg_aqi"`
	CO2G        float64           `json:"co2_g"`
	DurationMs  int64             `json:"duration_ms"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Publisher delivers routing events
type Publisher interface {
	PublishRoutesComputed(ctx context.Context, evt RoutesComputed) error
	Close() error
}

// KafkaPublisher writes events to a single topic, keyed by cache key so that
// identical requests land on the same partition
type KafkaPublisher struct {
	writer *kafkago.Writer
	source string
	logger *zap.Logger
}

// NewKafkaPublisher returns a publisher writing to topic on brokers
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireOne,
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		source: DefaultSource,
		logger: logger,
	}
}

func (p *KafkaPublisher) PublishRoutesComputed(ctx context.Context, evt RoutesComputed) error {
	ce, err := NewCloudEvent(p.source, TypeRoutesComputed, evt)
	if err != nil {
		return err
	}

	value, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("failed to marshal cloud event: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(evt.CacheKey),
		Value: value,
	}); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Event published",
		zap.String("topic", p.writer.Topic),
		zap.String("event_id", ce.ID),
		zap.String("type", ce.Type),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop discards every event
type Nop struct{}

func (Nop) PublishRoutesComputed(context.Context, RoutesComputed) error { return nil }
func (Nop) Close() error                                                { return nil }

// Summarize builds the event for a ranked route set
func Summarize(requestID, key, mode string, routes []models.Route, took time.Duration) RoutesComputed {
	evt := RoutesComputed{
		RequestID:  requestID,
		CacheKey:   key,
		Mode:       mode,
		Candidates: len(routes),
		DurationMs: took.Milliseconds(),
		OccurredAt: time.Now().UTC(),
	}
	if len(routes) == 0 {
		return evt
	}

	best := routes[0]
	evt.Start = best.Start.Location
	evt.End = best.End.Location
	evt.Profile = best.Preference
	evt.Recommended = best.ID
	evt.EcoScore = best.EcoScore
	evt.AvgAQI = best.AvgAirQuality
	evt.CO2G = best.CO2G
	return evt
}
