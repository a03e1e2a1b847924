// Package events publishes dispatch events to the internal bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	TypeJobDispatched      = "dispatch.job.dispatched"
	TypeJobDispatchFailed  = "dispatch.job.failed"
	TypeAssignmentAccepted = "dispatch.assignment.accepted"
)

// Event is the envelope written to the bus. Subject is the job or session the
// event is about and is used as the message key.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Source  string    `json:"source"`
	Subject string    `json:"subject"`
	Time    time.Time `json:"time"`
	Data    any       `json:"data,omitempty"`
}

func New(typ, subject string, data any) Event {
	return Event{ID: uuid.NewString(), Type: typ, Source: "dispatchd", Subject: subject, Time: time.Now().UTC(), Data: data}
}

type Emitter interface {
	Emit(ctx context.Context, evts ...Event) error
	Close() error
}

// Nop drops every event; used when no brokers are configured.
type Nop struct{}

func (Nop) Emit(context.Context, ...Event) error { return nil }
func (Nop) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaEmitter struct {
	w messageWriter
}

func NewKafkaEmitter(brokers []string, topic string) *KafkaEmitter {
	return &KafkaEmitter{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (k *KafkaEmitter) Emit(ctx context.Context, evts ...Event) error {
	if len(evts) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(evts))
	for _, e := range evts {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.Subject),
			Value: data,
			Headers: []kafka.Header{
				{Key: "ce-type", Value: []byte(e.Type)},
				{Key: "ce-id", Value: []byte(e.ID)},
				{Key: "ce-source", Value: []byte(e.Source)},
			},
			Time: e.Time,
		})
	}
	if err := k.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *KafkaEmitter) Close() error { return k.w.Close() }
