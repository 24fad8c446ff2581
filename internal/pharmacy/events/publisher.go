package events

import (
	"context"
	"strconv"
	"time"

	"github.com/medflow/pharmacy-service/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-service/pkg/config"
	"github.com/medflow/pharmacy-service/pkg/logger"
	"github.com/medflow/pharmacy-service/pkg/messaging"
)

// StockEventPublisher publishes committed stock movements. A nil publisher is a no-op.
type StockEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewStockEventPublisher declares the pharmacy exchange and creates a publisher on it
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePharmacyEvents, config.ServiceName, log)
	if err != nil {
		return nil, err
	}

	return NewStockEventPublisherWith(publisher, log), nil
}

// NewStockEventPublisherWith wraps an existing publisher
func NewStockEventPublisherWith(publisher messaging.EventPublisher, log *logger.Logger) *StockEventPublisher {
	return &StockEventPublisher{
		publisher: publisher,
		logger:    log,
	}
}

// StockPurchased publishes a stock purchased event. Failures are logged only:
// the purchase has already committed.
func (p *StockEventPublisher) StockPurchased(ctx context.Context, purchase *repository.Purchase, batch *repository.Batch, balanceAfter int) {
	if p == nil {
		return
	}

	data := messaging.StockPurchasedEvent{
		HospitalID:   purchase.HospitalID,
		PurchaseID:   purchase.ID,
		MedicationID: purchase.MedicationID,
		BatchID:      batch.ID,
		BatchNo:      batch.BatchNo,
		Quantity:     strconv.Itoa(purchase.Quantity),
		TotalAmount:  purchase.TotalAmount.StringFixed(2),
		BalanceAfter: strconv.Itoa(balanceAfter),
		CreatedBy:    purchase.CreatedBy,
		OccurredAt:   time.Now().UTC(),
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockPurchased, data); err != nil {
		p.logger.Error().Err(err).Str("purchase_id", purchase.ID).Msg("failed to publish stock purchased event")
	}
}

// StockReturned publishes a stock returned event with its per-lot deductions
func (p *StockEventPublisher) StockReturned(ctx context.Context, ret *repository.PurchaseReturn, allocations []repository.BatchAllocation, balanceAfter int) {
	if p == nil {
		return
	}

	deductions := make([]messaging.BatchAllocationData, len(allocations))
	for i, a := range allocations {
		deductions[i] = messaging.BatchAllocationData{
			BatchID:  a.BatchID,
			BatchNo:  a.BatchNo,
			Quantity: strconv.Itoa(a.Quantity),
		}
	}

	data := messaging.StockReturnedEvent{
		HospitalID:   ret.HospitalID,
		ReturnID:     ret.ID,
		PurchaseID:   ret.StockPurchaseID,
		MedicationID: ret.MedicationID,
		Quantity:     strconv.Itoa(ret.Quantity),
		TotalAmount:  ret.TotalAmount.StringFixed(2),
		BalanceAfter: strconv.Itoa(balanceAfter),
		Allocations:  deductions,
		CreatedBy:    ret.CreatedBy,
		OccurredAt:   time.Now().UTC(),
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockReturned, data); err != nil {
		p.logger.Error().Err(err).Str("return_id", ret.ID).Msg("failed to publish stock returned event")
	}
}
