package sns

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	snsapi "github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/archon-research/item-exchange/internal/pkg/retry"
	"github.com/archon-research/item-exchange/internal/ports/outbound"
)

type mockPublisher struct {
	publishFunc func(ctx context.Context, params *snsapi.PublishInput, optFns ...func(*snsapi.Options)) (*snsapi.PublishOutput, error)
	calls       int
}

func (m *mockPublisher) Publish(ctx context.Context, params *snsapi.PublishInput, optFns ...func(*snsapi.Options)) (*snsapi.PublishOutput, error) {
	m.calls++
	return m.publishFunc(ctx, params, optFns...)
}

func testConfig() Config {
	return Config{
		Topics: TopicARNs{
			Created:   "arn:aws:sns:us-east-1:123456789:offer-created",
			Accepted:  "arn:aws:sns:us-east-1:123456789:offer-accepted",
			Cancelled: "arn:aws:sns:us-east-1:123456789:offer-cancelled",
		},
		Retry: retry.Config{
			MaxRetries:     2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			BackoffFactor:  2.0,
		},
	}
}

func acceptedEvent() outbound.OfferAcceptedEvent {
	return outbound.OfferAcceptedEvent{
		Buyer:       "0xBuyer",
		Seller:      "0xSeller",
		ItemID:      7,
		Amount:      2,
		PriceUSD:    100_000_000_000,
		FinalAmount: "66666666",
		FeeAmount:   "666666",
	}
}

func TestPublishRoutesToTopicWithAttributes(t *testing.T) {
	var captured *snsapi.PublishInput
	client := &mockPublisher{
		publishFunc: func(_ context.Context, params *snsapi.PublishInput, _ ...func(*snsapi.Options)) (*snsapi.PublishOutput, error) {
			captured = params
			return &snsapi.PublishOutput{}, nil
		},
	}
	sink, err := NewEventSink(client, testConfig())
	if err != nil {
		t.Fatalf("creating sink: %v", err)
	}

	if err := sink.Publish(context.Background(), acceptedEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if *captured.TopicArn != testConfig().Topics.Accepted {
		t.Errorf("published to wrong topic: %s", *captured.TopicArn)
	}
	if got := *captured.MessageAttributes["eventType"].StringValue; got != "offer_accepted" {
		t.Errorf("eventType attribute: %s", got)
	}
	if got := *captured.MessageAttributes["seller"].StringValue; got != "0xSeller" {
		t.Errorf("seller attribute: %s", got)
	}
	if got := *captured.MessageAttributes["itemId"].StringValue; got != "7" {
		t.Errorf("itemId attribute: %s", got)
	}

	var decoded outbound.OfferAcceptedEvent
	if err := json.Unmarshal([]byte(*captured.Message), &decoded); err != nil {
		t.Fatalf("decoding message: %v", err)
	}
	if decoded.FinalAmount != "66666666" {
		t.Errorf("unexpected message payload: %+v", decoded)
	}
}

func TestPublishRetriesTransientFailures(t *testing.T) {
	client := &mockPublisher{}
	client.publishFunc = func(_ context.Context, _ *snsapi.PublishInput, _ ...func(*snsapi.Options)) (*snsapi.PublishOutput, error) {
		if client.calls < 3 {
			return nil, errors.New("connection reset")
		}
		return &snsapi.PublishOutput{}, nil
	}

	sink, _ := NewEventSink(client, testConfig())
	if err := sink.Publish(context.Background(), acceptedEvent()); err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if client.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", client.calls)
	}
}

func TestPublishGivesUpAfterMaxRetries(t *testing.T) {
	client := &mockPublisher{
		publishFunc: func(_ context.Context, _ *snsapi.PublishInput, _ ...func(*snsapi.Options)) (*snsapi.PublishOutput, error) {
			return nil, errors.New("connection reset")
		},
	}
	sink, _ := NewEventSink(client, testConfig())
	if err := sink.Publish(context.Background(), acceptedEvent()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if client.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", client.calls)
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	client := &mockPublisher{
		publishFunc: func(_ context.Context, _ *snsapi.PublishInput, _ ...func(*snsapi.Options)) (*snsapi.PublishOutput, error) {
			return &snsapi.PublishOutput{}, nil
		},
	}
	sink, _ := NewEventSink(client, testConfig())
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sink.Publish(context.Background(), acceptedEvent()); err == nil {
		t.Fatal("expected error publishing to closed sink")
	}
	if client.calls != 0 {
		t.Errorf("expected no publish attempts, got %d", client.calls)
	}
}

func TestNewEventSinkValidation(t *testing.T) {
	cfg := testConfig()
	if _, err := NewEventSink(nil, cfg); err == nil {
		t.Error("expected error for nil client")
	}

	missing := cfg
	missing.Topics.Accepted = ""
	if _, err := NewEventSink(&mockPublisher{}, missing); err == nil {
		t.Error("expected error for missing topic ARN")
	}
}
