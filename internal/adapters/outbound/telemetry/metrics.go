// Package telemetry implements the MetricsRecorder port using OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/item-exchange/internal/ports/outbound"
)

// Compile-time check that Metrics implements outbound.MetricsRecorder.
var _ outbound.MetricsRecorder = (*Metrics)(nil)

// Metrics records domain counters through an OpenTelemetry meter.
type Metrics struct {
	offersCreated   metric.Int64Counter
	offersAccepted  metric.Int64Counter
	offersCancelled metric.Int64Counter
	acceptsFailed   metric.Int64Counter
}

// NewMetrics creates a new OpenTelemetry metrics recorder.
// meterName should typically be the service name.
func NewMetrics(meterName string) (*Metrics, error) {
	meter := otel.Meter(meterName)

	created, err := meter.Int64Counter(
		"offers_created_total",
		metric.WithDescription("Total number of offers created"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create offers_created_total counter: %w", err)
	}

	accepted, err := meter.Int64Counter(
		"offers_accepted_total",
		metric.WithDescription("Total number of offers settled"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create offers_accepted_total counter: %w", err)
	}

	cancelled, err := meter.Int64Counter(
		"offers_cancelled_total",
		metric.WithDescription("Total number of offers cancelled, explicitly or on expiry"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create offers_cancelled_total counter: %w", err)
	}

	failed, err := meter.Int64Counter(
		"accepts_failed_total",
		metric.WithDescription("Total number of rejected accept attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create accepts_failed_total counter: %w", err)
	}

	return &Metrics{
		offersCreated:   created,
		offersAccepted:  accepted,
		offersCancelled: cancelled,
		acceptsFailed:   failed,
	}, nil
}

// RecordOfferCreated increments the created-offers counter.
func (m *Metrics) RecordOfferCreated() {
	m.offersCreated.Add(context.Background(), 1)
}

// RecordOfferAccepted increments the accepted-offers counter.
func (m *Metrics) RecordOfferAccepted(paymentKind string) {
	m.offersAccepted.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("payment", paymentKind)))
}

// RecordOfferCancelled increments the cancelled-offers counter.
func (m *Metrics) RecordOfferCancelled(expired bool) {
	m.offersCancelled.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("expired", expired)))
}

// RecordAcceptFailed increments the failed-accepts counter.
func (m *Metrics) RecordAcceptFailed(reason string) {
	m.acceptsFailed.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}
