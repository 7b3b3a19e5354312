package outbound

// MetricsRecorder records application-level domain metrics. Implementations
// must be safe for concurrent use and must never fail an operation: recording
// is fire-and-forget.
type MetricsRecorder interface {
	// RecordOfferCreated increments the created-offers counter.
	RecordOfferCreated()

	// RecordOfferAccepted increments the accepted-offers counter for the
	// given payment kind ("tokens" or "native").
	RecordOfferAccepted(paymentKind string)

	// RecordOfferCancelled increments the cancelled-offers counter;
	// expired marks lazy expiry cancellations.
	RecordOfferCancelled(expired bool)

	// RecordAcceptFailed increments the failed-accepts counter with a
	// coarse reason label.
	RecordAcceptFailed(reason string)
}
