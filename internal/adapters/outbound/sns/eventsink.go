// Package sns implements the EventSink interface using AWS SNS.
//
// The sink publishes trade events as JSON messages, one topic per event type,
// with message attributes for subscription filtering:
//   - eventType: "offer_created", "offer_accepted", or "offer_cancelled"
//   - seller: the seller address in hex form
//   - itemId: the item id as a string
//
// Transient failures are retried with exponential backoff. Publishing happens
// after the exchange state has committed, so a failed publish is logged and
// dropped rather than rolling anything back.
//
// For testing, use the memory.EventSink adapter instead.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/archon-research/item-exchange/internal/pkg/retry"
	"github.com/archon-research/item-exchange/internal/ports/outbound"
)

// Compile-time check that EventSink implements outbound.EventSink.
var _ outbound.EventSink = (*EventSink)(nil)

// SNSPublisher defines the subset of SNS client methods used by EventSink.
// This interface allows for easy mocking in tests.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// TopicARNs holds the ARNs of the SNS topics to publish events to.
// Each event type is published to its own topic.
type TopicARNs struct {
	// Created is the ARN for offer-created events.
	Created string
	// Accepted is the ARN for offer-accepted events.
	Accepted string
	// Cancelled is the ARN for offer-cancelled events.
	Cancelled string
}

// Config holds configuration for the SNS event sink.
type Config struct {
	// Topics contains the ARNs of the SNS topics for each event type.
	Topics TopicARNs

	// Retry controls backoff for transient publish failures.
	Retry retry.Config

	// Logger is the structured logger for the sink.
	Logger *slog.Logger
}

// NewEventSink creates a new SNS event sink.
func NewEventSink(client SNSPublisher, config Config) (*EventSink, error) {
	if client == nil {
		return nil, errors.New("sns client is required")
	}
	if config.Topics.Created == "" {
		return nil, errors.New("created topic ARN is required")
	}
	if config.Topics.Accepted == "" {
		return nil, errors.New("accepted topic ARN is required")
	}
	if config.Topics.Cancelled == "" {
		return nil, errors.New("cancelled topic ARN is required")
	}
	if config.Retry == (retry.Config{}) {
		config.Retry = retry.DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &EventSink{
		client: client,
		config: config,
		logger: config.Logger.With("component", "sns-eventsink"),
	}, nil
}

// EventSink publishes trade events to AWS SNS.
type EventSink struct {
	client    SNSPublisher
	config    Config
	logger    *slog.Logger
	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

// Publish publishes an event to the topic for its type.
func (s *EventSink) Publish(ctx context.Context, event outbound.Event) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return errors.New("event sink is closed")
	}
	s.mu.RUnlock()

	topicARN := s.topicARN(event.EventType())
	if topicARN == "" {
		return fmt.Errorf("no topic ARN configured for event type: %s", event.EventType())
	}

	messageBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(topicARN),
		Message:  aws.String(string(messageBytes)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"eventType": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.EventType())),
			},
			"seller": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.GetSeller()),
			},
			"itemId": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatUint(event.GetItemID(), 10)),
			},
		},
	}

	onRetry := func(attempt int, err error, backoff time.Duration) {
		s.logger.Warn("publish failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
			"eventType", event.EventType(),
			"seller", event.GetSeller(),
			"itemId", event.GetItemID(),
		)
	}

	err = retry.DoVoid(ctx, s.config.Retry, isRetryableError, onRetry, func() error {
		_, err := s.client.Publish(ctx, input)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}

// topicARN returns the topic ARN for the given event type.
func (s *EventSink) topicARN(eventType outbound.EventType) string {
	switch eventType {
	case outbound.EventTypeOfferCreated:
		return s.config.Topics.Created
	case outbound.EventTypeOfferAccepted:
		return s.config.Topics.Accepted
	case outbound.EventTypeOfferCancelled:
		return s.config.Topics.Cancelled
	default:
		return ""
	}
}

// isRetryableError determines if an error should trigger a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var throttleErr *types.ThrottledException
	if errors.As(err, &throttleErr) {
		return true
	}
	var internalErr *types.InternalErrorException
	if errors.As(err, &internalErr) {
		return true
	}
	var kmsThrottleErr *types.KMSThrottlingException
	if errors.As(err, &kmsThrottleErr) {
		return true
	}

	// Default to retrying on unknown errors (network issues, etc.)
	return true
}

// Close marks the sink as closed and prevents further publishing.
func (s *EventSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.logger.Info("SNS event sink closed")
	})
	return nil
}
