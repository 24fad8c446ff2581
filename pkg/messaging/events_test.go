package messaging

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	data := StockReturnedEvent{
		ReturnID:    "r-1",
		PurchaseID:  "p-1",
		Quantity:    "4",
		TotalAmount: "44.80",
		Allocations: []BatchAllocationData{{BatchID: "b-1", BatchNo: "LOT-A", Quantity: "4"}},
	}

	event, err := NewEvent(EventStockReturned, "pharmacy-service", "corr-1", data)
	require.NoError(t, err)

	_, err = uuid.Parse(event.ID)
	assert.NoError(t, err)
	assert.Equal(t, EventStockReturned, event.Type)
	assert.Equal(t, "pharmacy-service", event.Source)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.False(t, event.Timestamp.IsZero())

	var decoded StockReturnedEvent
	require.NoError(t, event.UnmarshalData(&decoded))
	assert.Equal(t, data, decoded)
}

func TestNewEvent_UnmarshalableData(t *testing.T) {
	_, err := NewEvent(EventStockPurchased, "pharmacy-service", "", make(chan int))
	assert.Error(t, err)
}
