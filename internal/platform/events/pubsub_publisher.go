// Package events publishes server-side cart and order events to Pub/Sub.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// cartEventMessage is the JSON body of a published cart event.
type cartEventMessage struct {
	Type       string    `json:"type"`
	UserID     string    `json:"userId"`
	ItemCount  int       `json:"itemCount"`
	Quantity   int       `json:"quantity"`
	OccurredAt time.Time `json:"occurredAt"`
}

// PubSubCartPublisher publishes cart events to a Pub/Sub topic. Messages for the same user share
// an ordering key.
type PubSubCartPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubCartPublisher constructs a publisher for topic.
func NewPubSubCartPublisher(topic *pubsub.Topic) (*PubSubCartPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub cart publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubCartPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishCartEvent sends event and waits for the server ack.
func (p *PubSubCartPublisher) PublishCartEvent(ctx context.Context, event domain.CartEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub cart publisher: not initialised")
	}
	data, err := p.marshal(cartEventMessage{
		Type:       event.Type,
		UserID:     event.UserID,
		ItemCount:  event.ItemCount,
		Quantity:   event.Quantity,
		OccurredAt: event.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal cart event: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":   event.Type,
			"userId": event.UserID,
		},
		OrderingKey: event.UserID,
	})
	if _, err := result.Get(ctx); err != nil {
		p.topic.ResumePublish(event.UserID)
		return fmt.Errorf("publish cart event: %w", err)
	}
	return nil
}

// Stop flushes outstanding messages.
func (p *PubSubCartPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}
