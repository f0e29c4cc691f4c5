package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/hanko-field/storefront/internal/domain"
)

func TestPubSubCartPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "cart-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubCartPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubCartPublisher: %v", err)
	}
	defer publisher.Stop()

	occurred := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	event := domain.CartEvent{
		Type:       domain.CartEventUpdated,
		UserID:     "user-1",
		ItemCount:  2,
		Quantity:   3,
		OccurredAt: occurred,
	}
	if err := publisher.PublishCartEvent(ctx, event); err != nil {
		t.Fatalf("PublishCartEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload cartEventMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.UserID != "user-1" || payload.Quantity != 3 || !payload.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["type"]; attr != domain.CartEventUpdated {
		t.Fatalf("expected type attribute, got %q", attr)
	}
	if messages[0].OrderingKey != "user-1" {
		t.Fatalf("expected ordering key user-1, got %q", messages[0].OrderingKey)
	}
}

func TestNewPubSubCartPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubCartPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
