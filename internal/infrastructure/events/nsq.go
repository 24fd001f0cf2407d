package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nsqio/go-nsq"

	"KnowledgeScanner/internal/logging"
	"KnowledgeScanner/internal/ports"
)

// Producer is the subset of *nsq.Producer used here.
type Producer interface {
	Publish(topic string, body []byte) error
}

// Envelope is the wire shape of every pipeline event.
type Envelope struct {
	Event         string    `json:"event"`
	OccurredAt    time.Time `json:"occurredAt"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Payload       any       `json:"payload"`
}

// Emitter publishes pipeline events to a single NSQ topic.
type Emitter struct {
	producer Producer
	topic    string
	now      func() time.Time
}

var _ ports.EventPublisher = (*Emitter)(nil)

// NewEmitter wraps a producer.
func NewEmitter(producer Producer, topic string) *Emitter {
	return &Emitter{producer: producer, topic: topic, now: time.Now}
}

// NewNSQProducer connects a producer to nsqd and verifies it with a ping.
func NewNSQProducer(addr string) (*nsq.Producer, error) {
	producer, err := nsq.NewProducer(addr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq producer: %w", err)
	}
	producer.SetLoggerLevel(nsq.LogLevelWarning)
	if err := producer.Ping(); err != nil {
		producer.Stop()
		return nil, fmt.Errorf("nsq ping %s: %w", addr, err)
	}
	return producer, nil
}

// Emit publishes one event.
func (e *Emitter) Emit(ctx context.Context, event string, payload any) error {
	body, err := json.Marshal(Envelope{
		Event:         event,
		OccurredAt:    e.now().UTC(),
		CorrelationID: logging.CorrelationID(ctx),
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event, err)
	}
	if err := e.producer.Publish(e.topic, body); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}
