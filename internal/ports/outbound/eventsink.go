package outbound

import (
	"context"
	"time"
)

// EventType represents the type of trade event.
type EventType string

// Event type constants.
const (
	EventTypeOfferCreated   EventType = "offer_created"
	EventTypeOfferAccepted  EventType = "offer_accepted"
	EventTypeOfferCancelled EventType = "offer_cancelled"
)

// Event is the interface that all trade event types implement.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType
	// GetSeller returns the seller address in hex form.
	GetSeller() string
	// GetItemID returns the item id the event refers to.
	GetItemID() uint64
}

// OfferCreatedEvent is published when a new offer is stored.
type OfferCreatedEvent struct {
	Seller       string    `json:"seller"`
	ItemContract string    `json:"itemContract"`
	ItemID       uint64    `json:"itemId"`
	Amount       uint64    `json:"amount"`
	Deadline     time.Time `json:"deadline"`
	PriceUSD     uint64    `json:"priceUsd"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (e OfferCreatedEvent) EventType() EventType { return EventTypeOfferCreated }
func (e OfferCreatedEvent) GetSeller() string    { return e.Seller }
func (e OfferCreatedEvent) GetItemID() uint64    { return e.ItemID }

// OfferAcceptedEvent is published after a settlement commits.
type OfferAcceptedEvent struct {
	Buyer        string    `json:"buyer"`
	Seller       string    `json:"seller"`
	ItemID       uint64    `json:"itemId"`
	Amount       uint64    `json:"amount"`
	PriceUSD     uint64    `json:"priceUsd"`
	PaymentToken string    `json:"paymentToken"`
	FinalAmount  string    `json:"finalAmount"`
	FeeAmount    string    `json:"feeAmount"`
	AcceptedAt   time.Time `json:"acceptedAt"`
}

func (e OfferAcceptedEvent) EventType() EventType { return EventTypeOfferAccepted }
func (e OfferAcceptedEvent) GetSeller() string    { return e.Seller }
func (e OfferAcceptedEvent) GetItemID() uint64    { return e.ItemID }

// OfferCancelledEvent is published when an offer is cancelled, either
// explicitly by the seller or lazily on expiry detection.
type OfferCancelledEvent struct {
	Seller       string    `json:"seller"`
	ItemContract string    `json:"itemContract"`
	ItemID       uint64    `json:"itemId"`
	Expired      bool      `json:"expired,omitempty"`
	CancelledAt  time.Time `json:"cancelledAt"`
}

func (e OfferCancelledEvent) EventType() EventType { return EventTypeOfferCancelled }
func (e OfferCancelledEvent) GetSeller() string    { return e.Seller }
func (e OfferCancelledEvent) GetItemID() uint64    { return e.ItemID }

// EventSink publishes trade events to downstream consumers.
type EventSink interface {
	// Publish delivers the event. Delivery happens after the registry and
	// transfer state has committed; a publish failure never rolls back a
	// settlement.
	Publish(ctx context.Context, event Event) error

	// Close releases resources held by the sink.
	Close() error
}
