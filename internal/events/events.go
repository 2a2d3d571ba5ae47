package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"neighborsos/internal/client"
	"neighborsos/internal/util"
)

// Event types emitted by the marketplace.
const (
	TypeNeedClaimed     = "need.claimed"
	TypeFamilySponsored = "family.sponsored"
	TypeCharityApproved = "charity.approved"
	TypeCharityApplied  = "charity.applied"
)

// Event is the envelope every marketplace event ships in. ID makes
// consumers idempotent; Payload shape depends on Type.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher fans marketplace events out to the stream. Implementations
// must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}

// KafkaPublisher keys messages by event type so one type stays ordered
// within a partition.
type KafkaPublisher struct {
	producer *client.KafkaProducer
}

func NewKafkaPublisher(producer *client.KafkaProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   body,
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.producer.Publish(ctx, []byte(eventType), value, map[string]string{
		"event_type": eventType,
	})
}

// NopPublisher is used when no broker is configured; events are logged
// and dropped.
type NopPublisher struct{}

func (NopPublisher) Publish(_ context.Context, eventType string, _ interface{}) error {
	util.Debug("Event stream disabled, dropping event",
		zap.String("event_type", eventType))
	return nil
}
