package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/medflow/pharmacy-service/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-service/pkg/database"
	"github.com/medflow/pharmacy-service/pkg/errors"
	"github.com/medflow/pharmacy-service/pkg/tenant"
	"github.com/medflow/pharmacy-service/pkg/validation"
	"github.com/shopspring/decimal"
)

// CreatePurchaseInput is the payload of a vendor purchase. Omitted money and
// percentage fields fall back to the medication's master data.
type CreatePurchaseInput struct {
	MedicationID  string           `json:"medication_id" validate:"required,uuid"`
	VendorID      *string          `json:"vendor_id,omitempty" validate:"omitempty,uuid"`
	InvoiceNumber *string          `json:"invoice_number,omitempty" validate:"omitempty,max=100"`
	Quantity      decimal.Decimal  `json:"quantity" validate:"positive_int"`
	UnitCost      *decimal.Decimal `json:"unit_cost,omitempty" validate:"omitempty,gte=0"`
	DiscountPct   *decimal.Decimal `json:"discount_pct,omitempty" validate:"omitempty,gte=0,lte=100"`
	TaxPct        *decimal.Decimal `json:"tax_pct,omitempty" validate:"omitempty,gte=0,lte=100"`
	BatchNo       *string          `json:"batch_no,omitempty" validate:"omitempty,max=64"`
	ExpiryDate    *string          `json:"expiry_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	MfgDate       *string          `json:"mfg_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PurchaseDate  *string          `json:"purchase_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes         *string          `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// PurchaseResult is a purchase with its projections
type PurchaseResult struct {
	*repository.Purchase
	Batch              *repository.Batch  `json:"batch,omitempty"`
	Medication         *MedicationSummary `json:"medication"`
	Vendor             *VendorSummary     `json:"vendor,omitempty"`
	Creator            *UserSummary       `json:"creator,omitempty"`
	ReturnedQuantity   int                `json:"returned_quantity"`
	ReturnableQuantity int                `json:"returnable_quantity"`
}

// NormalizeBatchNo trims and uppercases a batch number. A blank batch number is
// synthesized as AUTO- plus the first 8 characters of the purchase id.
func NormalizeBatchNo(batchNo *string, purchaseID string) string {
	if batchNo != nil {
		if normalized := strings.ToUpper(strings.TrimSpace(*batchNo)); normalized != "" {
			return normalized
		}
	}
	return "AUTO-" + purchaseID[:8]
}

// CreatePurchase records a vendor purchase: it creates the purchase, raises the
// medication's aggregate stock, upserts the lot and appends a ledger entry in
// one unit of work.
func (s *StockService) CreatePurchase(ctx context.Context, scope tenant.Scope, input CreatePurchaseInput) (*PurchaseResult, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if err := validation.Validate(input); err != nil {
		return nil, err
	}

	quantity := int(input.Quantity.IntPart())

	expiry, err := parseDate("expiry_date", input.ExpiryDate)
	if err != nil {
		return nil, err
	}
	mfgDate, err := parseDate("mfg_date", input.MfgDate)
	if err != nil {
		return nil, err
	}
	purchaseDate := s.today()
	if d, err := parseDate("purchase_date", input.PurchaseDate); err != nil {
		return nil, err
	} else if d != nil {
		purchaseDate = *d
	}

	var (
		result *PurchaseResult
		batch  *repository.Batch
	)

	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.TxStore) error {
		med, err := tx.LockMedication(ctx, input.MedicationID)
		if err != nil {
			return err
		}
		if !scope.Owns(med.HospitalID) {
			return errors.CrossTenant("medication")
		}
		if !med.IsActive {
			return errors.NotFound("medication")
		}

		var vendor *repository.Vendor
		if input.VendorID != nil {
			vendor, err = tx.GetVendor(ctx, *input.VendorID)
			if err != nil {
				return err
			}
			if !scope.Owns(vendor.HospitalID) {
				return errors.CrossTenant("vendor")
			}
		}

		unitCost := med.PurchasePrice
		if input.UnitCost != nil {
			unitCost = *input.UnitCost
		}
		discountPct := decimal.Zero
		if input.DiscountPct != nil {
			discountPct = *input.DiscountPct
		}
		taxPct := med.GSTRate
		if input.TaxPct != nil {
			taxPct = *input.TaxPct
		}
		amounts := PurchaseAmounts(quantity, unitCost, discountPct, taxPct)

		expiryDate := s.cfg.DefaultExpiry
		if med.ExpiryDate != nil {
			expiryDate = *med.ExpiryDate
		}
		if expiry != nil {
			expiryDate = *expiry
		}

		purchaseID := uuid.New().String()
		batchNo := NormalizeBatchNo(input.BatchNo, purchaseID)

		purchase := &repository.Purchase{
			ID:            purchaseID,
			HospitalID:    scope.HospitalID,
			MedicationID:  med.ID,
			VendorID:      input.VendorID,
			InvoiceNumber: input.InvoiceNumber,
			BatchNo:       batchNo,
			PurchaseDate:  purchaseDate,
			ExpiryDate:    expiryDate,
			MfgDate:       mfgDate,
			Quantity:      quantity,
			UnitCost:      unitCost,
			DiscountPct:   discountPct,
			TaxPct:        taxPct,
			TaxableAmount: amounts.TaxableAmount,
			TaxAmount:     amounts.TaxAmount,
			TotalAmount:   amounts.TotalAmount,
			Notes:         input.Notes,
			CreatedBy:     scope.UserID,
		}
		if err := tx.InsertPurchase(ctx, purchase); err != nil {
			return err
		}

		med.StockQuantity += quantity
		med.PurchasePrice = unitCost
		if vendor != nil {
			med.SupplierName = &vendor.Name
		}
		if err := tx.UpdateMedicationStock(ctx, med); err != nil {
			return err
		}

		batch, err = upsertBatch(ctx, tx, purchase)
		if err != nil {
			return err
		}

		entry := &repository.LedgerEntry{
			HospitalID:    scope.HospitalID,
			MedicationID:  med.ID,
			BatchID:       &batch.ID,
			EntryDate:     purchaseDate,
			EntryType:     repository.EntryTypePurchase,
			QuantityIn:    quantity,
			QuantityOut:   0,
			BalanceAfter:  med.StockQuantity,
			ReferenceType: repository.ReferenceStockPurchase,
			ReferenceID:   purchase.ID,
			CreatedBy:     scope.UserID,
		}
		if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
			return err
		}

		creator, err := lookupCreator(ctx, tx, scope.UserID)
		if err != nil {
			return err
		}

		result = &PurchaseResult{
			Purchase:           purchase,
			Batch:              batch,
			Medication:         medicationSummary(med),
			Vendor:             vendorSummary(vendor),
			Creator:            creator,
			ReturnedQuantity:   0,
			ReturnableQuantity: quantity,
		}
		return nil
	})
	if err != nil {
		s.logFailure(err, "purchase rejected", scope)
		return nil, err
	}

	s.scopedLogger(scope).Info().
		Str("purchase_id", result.ID).
		Str("medication_id", result.MedicationID).
		Str("batch_no", result.BatchNo).
		Int("quantity", result.Quantity).
		Int("balance_after", result.Medication.StockQuantity).
		Msg("purchase recorded")

	if s.events != nil {
		s.events.StockPurchased(ctx, result.Purchase, batch, result.Medication.StockQuantity)
	}

	return result, nil
}

// upsertBatch adds the purchase to its lot. An existing lot has its quantity
// incremented and its cost and dates overwritten with the purchase's values.
func upsertBatch(ctx context.Context, tx repository.TxStore, p *repository.Purchase) (*repository.Batch, error) {
	batch, err := tx.LockBatchByNumber(ctx, p.HospitalID, p.MedicationID, p.BatchNo)
	switch {
	case err == nil:
		batch.QuantityOnHand += p.Quantity
		batch.UnitCost = p.UnitCost
		batch.ExpiryDate = p.ExpiryDate
		batch.MfgDate = p.MfgDate
		batch.PurchaseDate = p.PurchaseDate
		if err := tx.UpdateBatch(ctx, batch); err != nil {
			return nil, err
		}
		return batch, nil

	case errors.Is(err, errors.ErrNotFound):
		batch = &repository.Batch{
			HospitalID:     p.HospitalID,
			MedicationID:   p.MedicationID,
			BatchNo:        p.BatchNo,
			ExpiryDate:     p.ExpiryDate,
			MfgDate:        p.MfgDate,
			PurchaseDate:   p.PurchaseDate,
			QuantityOnHand: p.Quantity,
			UnitCost:       p.UnitCost,
		}
		if err := tx.InsertBatch(ctx, batch); err != nil {
			return nil, err
		}
		return batch, nil

	default:
		return nil, err
	}
}

// GetPurchase returns a purchase with its projections and how much of it can still be returned
func (s *StockService) GetPurchase(ctx context.Context, scope tenant.Scope, purchaseID string) (*PurchaseResult, error) {
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

	returned, err := s.store.SumReturnedQuantity(ctx, purchase.ID)
	if err != nil {
		return nil, database.Classify(err)
	}

	med, err := s.store.GetMedication(ctx, purchase.MedicationID)
	if err != nil {
		return nil, database.Classify(err)
	}
	vendor, err := lookupVendor(ctx, s.store, purchase.VendorID)
	if err != nil {
		return nil, database.Classify(err)
	}
	creator, err := lookupCreator(ctx, s.store, purchase.CreatedBy)
	if err != nil {
		return nil, database.Classify(err)
	}

	return &PurchaseResult{
		Purchase:           purchase,
		Medication:         medicationSummary(med),
		Vendor:             vendorSummary(vendor),
		Creator:            creator,
		ReturnedQuantity:   returned,
		ReturnableQuantity: purchase.Quantity - returned,
	}, nil
}

