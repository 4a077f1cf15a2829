package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a published domain event.
type EventType string

const (
	EventTypeOrderCreated     EventType = "order.created"
	EventTypePointsRedeemed   EventType = "points.redeemed"
	EventTypeInvoiceGenerated EventType = "invoice.generated"
)

// Event is the envelope published to Kafka. Side effects (email, PDF
// rendering) consume these asynchronously; the pricing core never blocks on
// them.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an event envelope with a marshalled payload.
func NewEvent(eventType EventType, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}
