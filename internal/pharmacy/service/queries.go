package service

import (
	"context"

	"github.com/medflow/pharmacy-service/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-service/pkg/database"
	"github.com/medflow/pharmacy-service/pkg/errors"
	"github.com/medflow/pharmacy-service/pkg/tenant"
)

const (
	DefaultLedgerLimit = 100
	MaxLedgerLimit     = 500
)

// Reconciliation compares the three views of a medication's stock
type Reconciliation struct {
	MedicationID  string `json:"medication_id"`
	StockQuantity int    `json:"stock_quantity"`
	BatchQuantity int    `json:"batch_quantity"`
	// LedgerBalance is the newest entry's balance_after, nil before the first entry
	LedgerBalance *int `json:"ledger_balance"`
	LedgerEntries int  `json:"ledger_entries"`
	Consistent    bool `json:"consistent"`
}

// ownedMedication loads a medication and checks it belongs to scope
func (s *StockService) ownedMedication(ctx context.Context, scope tenant.Scope, medicationID string) (*repository.Medication, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if err := requireUUID("medication_id", medicationID); err != nil {
		return nil, err
	}

	med, err := s.store.GetMedication(ctx, medicationID)
	if err != nil {
		return nil, database.Classify(err)
	}
	if !scope.Owns(med.HospitalID) {
		return nil, errors.CrossTenant("medication")
	}
	return med, nil
}

// ListBatches returns every lot of a medication in FEFO order, empty lots included
func (s *StockService) ListBatches(ctx context.Context, scope tenant.Scope, medicationID string) ([]*repository.Batch, error) {
	med, err := s.ownedMedication(ctx, scope, medicationID)
	if err != nil {
		return nil, err
	}

	batches, err := s.store.ListBatches(ctx, scope.HospitalID, med.ID)
	if err != nil {
		return nil, database.Classify(err)
	}
	return batches, nil
}

// ListLedger returns a medication's ledger newest first. limit <= 0 uses the
// default and larger values are clamped.
func (s *StockService) ListLedger(ctx context.Context, scope tenant.Scope, medicationID string, limit int) ([]*repository.LedgerEntry, error) {
	med, err := s.ownedMedication(ctx, scope, medicationID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultLedgerLimit
	}
	if limit > MaxLedgerLimit {
		limit = MaxLedgerLimit
	}

	entries, err := s.store.ListLedger(ctx, scope.HospitalID, med.ID, limit)
	if err != nil {
		return nil, database.Classify(err)
	}
	return entries, nil
}

// Reconcile reports whether aggregate stock, lot totals and the ledger agree
func (s *StockService) Reconcile(ctx context.Context, scope tenant.Scope, medicationID string) (*Reconciliation, error) {
	med, err := s.ownedMedication(ctx, scope, medicationID)
	if err != nil {
		return nil, err
	}

	totals, err := s.store.GetStockTotals(ctx, scope.HospitalID, med.ID)
	if err != nil {
		return nil, database.Classify(err)
	}

	consistent := totals.StockQuantity == totals.BatchQuantity
	if totals.LedgerBalance == nil {
		consistent = consistent && totals.StockQuantity == 0
	} else {
		consistent = consistent && *totals.LedgerBalance == totals.StockQuantity
	}

	return &Reconciliation{
		MedicationID:  med.ID,
		StockQuantity: totals.StockQuantity,
		BatchQuantity: totals.BatchQuantity,
		LedgerBalance: totals.LedgerBalance,
		LedgerEntries: totals.LedgerEntryCount,
		Consistent:    consistent,
	}, nil
}
