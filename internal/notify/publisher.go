// Package notify publishes committed ledger mutations to NATS JetStream
// for downstream consumers (notification and email delivery stay external).
// Subjects follow the pattern: broker.ledger.events.{kind}.{action}
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/samie105/broker-engine/internal/workflow"
)

// Publisher implements workflow.Publisher over JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a JetStream-backed event publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// Publish sends one committed mutation. Failures are non-fatal for the
// caller: the ledger record itself is the source of truth.
func (p *Publisher) Publish(ctx context.Context, evt workflow.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("broker.ledger.events.%s.%s", evt.Kind, evt.Action)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureStream creates the ledger events stream if missing.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "BROKER_LEDGER_EVENTS",
		Subjects:  []string{"broker.ledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create ledger events stream: %w", err)
	}
	return nil
}
