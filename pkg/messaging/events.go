package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventStockPurchased = "pharmacy.stock.purchased"
	EventStockReturned  = "pharmacy.stock.returned"
)

// ExchangePharmacyEvents is the topic exchange pharmacy events are published to
const ExchangePharmacyEvents = "pharmacy.events"

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// StockPurchasedEvent is published after a purchase commits.
// Money and quantities are decimal strings.
type StockPurchasedEvent struct {
	HospitalID   string    `json:"hospital_id"`
	PurchaseID   string    `json:"purchase_id"`
	MedicationID string    `json:"medication_id"`
	BatchID      string    `json:"batch_id"`
	BatchNo      string    `json:"batch_no"`
	Quantity     string    `json:"quantity"`
	TotalAmount  string    `json:"total_amount"`
	BalanceAfter string    `json:"balance_after"`
	CreatedBy    string    `json:"created_by"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// StockReturnedEvent is published after a purchase return commits
type StockReturnedEvent struct {
	HospitalID   string                `json:"hospital_id"`
	ReturnID     string                `json:"return_id"`
	PurchaseID   string                `json:"purchase_id"`
	MedicationID string                `json:"medication_id"`
	Quantity     string                `json:"quantity"`
	TotalAmount  string                `json:"total_amount"`
	BalanceAfter string                `json:"balance_after"`
	Allocations  []BatchAllocationData `json:"allocations"`
	CreatedBy    string                `json:"created_by"`
	OccurredAt   time.Time             `json:"occurred_at"`
}

// BatchAllocationData is one batch deduction of a return
type BatchAllocationData struct {
	BatchID  string `json:"batch_id"`
	BatchNo  string `json:"batch_no"`
	Quantity string `json:"quantity"`
}
