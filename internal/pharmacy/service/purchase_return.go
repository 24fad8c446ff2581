package service

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/medflow/pharmacy-service/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-service/pkg/database"
	"github.com/medflow/pharmacy-service/pkg/errors"
	"github.com/medflow/pharmacy-service/pkg/tenant"
	"github.com/medflow/pharmacy-service/pkg/validation"
	"github.com/shopspring/decimal"
)

// CreatePurchaseReturnInput is the payload of a return against a purchase
type CreatePurchaseReturnInput struct {
	Quantity   decimal.Decimal `json:"quantity" validate:"positive_int"`
	Reason     *string         `json:"reason,omitempty" validate:"omitempty,max=255"`
	Notes      *string         `json:"notes,omitempty" validate:"omitempty,max=2000"`
	ReturnDate *string         `json:"return_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// PurchaseReturnResult is a created return with the lots it drew from
type PurchaseReturnResult struct {
	*repository.PurchaseReturn
	Allocations  []repository.BatchAllocation `json:"allocations"`
	BalanceAfter int                          `json:"balance_after"`
	Medication   *MedicationSummary           `json:"medication"`
	Vendor       *VendorSummary               `json:"vendor,omitempty"`
	Creator      *UserSummary                 `json:"creator,omitempty"`
}

// CreatePurchaseReturn returns quantity units of a purchase to its vendor.
// Stock is drawn from the medication's lots in FEFO order across all lots,
// not only the lot the purchase created. Every precondition is checked under
// lock before the first write.
func (s *StockService) CreatePurchaseReturn(ctx context.Context, scope tenant.Scope, purchaseID string, input CreatePurchaseReturnInput) (*PurchaseReturnResult, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if err := requireUUID("purchase_id", purchaseID); err != nil {
		return nil, err
	}
	if err := validation.Validate(input); err != nil {
		return nil, err
	}

	quantity := int(input.Quantity.IntPart())

	returnDate := s.today()
	if d, err := parseDate("return_date", input.ReturnDate); err != nil {
		return nil, err
	} else if d != nil {
		returnDate = *d
	}

	var result *PurchaseReturnResult

	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.TxStore) error {
		// Unlocked read to learn the medication; locks are then taken in
		// medication, purchase, batch order.
		purchase, err := tx.GetPurchase(ctx, purchaseID)
		if err != nil {
			return err
		}
		if !scope.Owns(purchase.HospitalID) {
			return errors.CrossTenant("purchase")
		}

		med, err := tx.LockMedication(ctx, purchase.MedicationID)
		if err != nil {
			return err
		}
		if !scope.Owns(med.HospitalID) {
			return errors.CrossTenant("medication")
		}

		purchase, err = tx.LockPurchase(ctx, purchaseID)
		if err != nil {
			return err
		}

		returned, err := tx.SumReturnedQuantity(ctx, purchase.ID)
		if err != nil {
			return err
		}
		remaining := purchase.Quantity - returned
		if quantity > remaining {
			return errors.BusinessRule(errors.CodeReturnExceedsRemaining,
				"return quantity exceeds the quantity remaining on the purchase").
				WithDetails(map[string]string{
					"requested": strconv.Itoa(quantity),
					"remaining": strconv.Itoa(remaining),
				})
		}

		if med.StockQuantity < quantity {
			return errors.BusinessRule(errors.CodeInsufficientStock,
				"return quantity exceeds the medication's current stock").
				WithDetails(map[string]string{
					"requested": strconv.Itoa(quantity),
					"available": strconv.Itoa(med.StockQuantity),
				})
		}

		batches, err := tx.LockAvailableBatches(ctx, med.HospitalID, med.ID)
		if err != nil {
			return err
		}
		allocations, err := AllocateFEFO(batches, quantity)
		if err != nil {
			return err
		}

		for _, a := range allocations {
			if err := tx.SetBatchQuantity(ctx, a.BatchID, a.RemainingOnHand); err != nil {
				return err
			}
		}

		med.StockQuantity -= quantity
		if err := tx.UpdateMedicationStock(ctx, med); err != nil {
			return err
		}

		amounts := ReturnAmounts(purchase.Quantity, purchase.TaxableAmount, purchase.TaxAmount, quantity)
		ret := &repository.PurchaseReturn{
			ID:              uuid.New().String(),
			HospitalID:      scope.HospitalID,
			StockPurchaseID: purchase.ID,
			MedicationID:    med.ID,
			VendorID:        purchase.VendorID,
			ReturnDate:      returnDate,
			Quantity:        quantity,
			UnitCost:        purchase.UnitCost,
			TaxPct:          purchase.TaxPct,
			TaxableAmount:   amounts.TaxableAmount,
			TaxAmount:       amounts.TaxAmount,
			TotalAmount:     amounts.TotalAmount,
			Reason:          input.Reason,
			Notes:           input.Notes,
			CreatedBy:       scope.UserID,
		}
		if err := tx.InsertPurchaseReturn(ctx, ret); err != nil {
			return err
		}

		entry := &repository.LedgerEntry{
			HospitalID:    scope.HospitalID,
			MedicationID:  med.ID,
			BatchID:       nil,
			EntryDate:     returnDate,
			EntryType:     repository.EntryTypePurchaseReturn,
			QuantityIn:    0,
			QuantityOut:   quantity,
			BalanceAfter:  med.StockQuantity,
			ReferenceType: repository.ReferenceStockPurchaseReturn,
			ReferenceID:   ret.ID,
			CreatedBy:     scope.UserID,
		}
		if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
			return err
		}

		vendor, err := lookupVendor(ctx, tx, purchase.VendorID)
		if err != nil {
			return err
		}
		creator, err := lookupCreator(ctx, tx, scope.UserID)
		if err != nil {
			return err
		}

		result = &PurchaseReturnResult{
			PurchaseReturn: ret,
			Allocations:    allocations,
			BalanceAfter:   med.StockQuantity,
			Medication:     medicationSummary(med),
			Vendor:         vendorSummary(vendor),
			Creator:        creator,
		}
		return nil
	})
	if err != nil {
		s.logFailure(err, "purchase return rejected", scope)
		return nil, err
	}

	s.scopedLogger(scope).Info().
		Str("return_id", result.ID).
		Str("purchase_id", result.StockPurchaseID).
		Str("medication_id", result.MedicationID).
		Int("quantity", result.Quantity).
		Int("batches", len(result.Allocations)).
		Int("balance_after", result.BalanceAfter).
		Msg("purchase return recorded")

	if s.events != nil {
		s.events.StockReturned(ctx, result.PurchaseReturn, result.Allocations, result.BalanceAfter)
	}

	return result, nil
}

// ListReturns returns the returns recorded against a purchase, oldest first
func (s *StockService) ListReturns(ctx context.Context, scope tenant.Scope, purchaseID string) ([]*repository.PurchaseReturn, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if err := requireUUID("purchase_id", purchaseID); err != nil {
		return nil, err
	}

	purchase, err := s.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, database.Classify(err)
	}
	if !scope.Owns(purchase.HospitalID) {
		return nil, errors.CrossTenant("purchase")
	}

	returns, err := s.store.ListReturns(ctx, scope.HospitalID, purchase.ID)
	if err != nil {
		return nil, database.Classify(err)
	}
	return returns, nil
}
