package service

import (
	"strconv"

	"github.com/medflow/pharmacy-service/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-service/pkg/errors"
)

// AllocateFEFO walks lots already sorted oldest-expiry first and takes
// min(onHand, remaining) from each until quantity is covered. Lots are not
// mutated. Running out of lots before quantity is covered means the aggregate
// stock and the lot-level counts have diverged and is a batch mismatch.
func AllocateFEFO(batches []*repository.Batch, quantity int) ([]repository.BatchAllocation, error) {
	if quantity <= 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must be a positive integer"})
	}

	allocations := make([]repository.BatchAllocation, 0, len(batches))
	remaining := quantity

	for _, b := range batches {
		if remaining == 0 {
			break
		}
		if b.QuantityOnHand <= 0 {
			continue
		}

		take := min(b.QuantityOnHand, remaining)
		remaining -= take

		allocations = append(allocations, repository.BatchAllocation{
			BatchID:         b.ID,
			BatchNo:         b.BatchNo,
			ExpiryDate:      b.ExpiryDate,
			Quantity:        take,
			RemainingOnHand: b.QuantityOnHand - take,
		})
	}

	if remaining > 0 {
		return nil, errors.BusinessRule(errors.CodeBatchMismatch,
			"batch quantities do not cover the requested return; stock and lot counts have diverged").
			WithDetails(map[string]string{"unallocated": strconv.Itoa(remaining)})
	}

	return allocations, nil
}
