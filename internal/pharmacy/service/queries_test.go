package service

import (
	"context"
	"testing"

	"github.com/medflow/pharmacy-service/pkg/errors"
	"github.com/medflow/pharmacy-service/pkg/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListBatches_FEFOOrderIncludesEmptyLots(t *testing.T) {
	store := newMemoryStore()
	med := store.addMedication(hospitalA)
	late := store.addBatch(med, "LATE", 4, date("2026-06-30"))
	empty := store.addBatch(med, "EMPTY", 0, date("2025-01-31"))
	early := store.addBatch(med, "EARLY", 9, date("2025-08-31"))
	svc := newTestService(t, store, nil)

	batches, err := svc.ListBatches(context.Background(), scopeA, med.ID)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, empty.ID, batches[0].ID)
	assert.Equal(t, early.ID, batches[1].ID)
	assert.Equal(t, late.ID, batches[2].ID)

	_, err = svc.ListBatches(context.Background(), tenant.Scope{HospitalID: hospitalB, UserID: userA}, med.ID)
	assert.True(t, errors.Is(err, errors.ErrCrossTenant))
}

func TestListLedger_NewestFirstAndLimits(t *testing.T) {
	store := newMemoryStore()
	med := store.addMedication(hospitalA)
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreatePurchase(ctx, scopeA, CreatePurchaseInput{MedicationID: med.ID, Quantity: dec("2")})
		require.NoError(t, err)
	}

	entries, err := svc.ListLedger(ctx, scopeA, med.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 6, entries[0].BalanceAfter)
	assert.Equal(t, 2, entries[2].BalanceAfter)
	assert.Greater(t, entries[0].Seq, entries[1].Seq)

	entries, err = svc.ListLedger(ctx, scopeA, med.ID, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	entries, err = svc.ListLedger(ctx, scopeA, med.ID, 10_000)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	_, err = svc.ListLedger(ctx, scopeA, "not-a-uuid", 0)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh medication is consistent", func(t *testing.T) {
		store := newMemoryStore()
		med := store.addMedication(hospitalA)
		svc := newTestService(t, store, nil)

		rec, err := svc.Reconcile(ctx, scopeA, med.ID)
		require.NoError(t, err)
		assert.True(t, rec.Consistent)
		assert.Nil(t, rec.LedgerBalance)
		assert.Zero(t, rec.LedgerEntries)
	})

	t.Run("after purchases", func(t *testing.T) {
		store := newMemoryStore()
		med := store.addMedication(hospitalA)
		svc := newTestService(t, store, nil)
		_, err := svc.CreatePurchase(ctx, scopeA, CreatePurchaseInput{MedicationID: med.ID, Quantity: dec("40")})
		require.NoError(t, err)

		rec, err := svc.Reconcile(ctx, scopeA, med.ID)
		require.NoError(t, err)
		assert.True(t, rec.Consistent)
		assert.Equal(t, 40, rec.StockQuantity)
		assert.Equal(t, 40, rec.BatchQuantity)
		require.NotNil(t, rec.LedgerBalance)
		assert.Equal(t, 40, *rec.LedgerBalance)
		assert.Equal(t, 1, rec.LedgerEntries)
	})

	t.Run("lots diverged from aggregate", func(t *testing.T) {
		store := newMemoryStore()
		med := store.addMedication(hospitalA)
		svc := newTestService(t, store, nil)
		_, err := svc.CreatePurchase(ctx, scopeA, CreatePurchaseInput{MedicationID: med.ID, Quantity: dec("40"), BatchNo: ptr("L1")})
		require.NoError(t, err)

		lot, _ := store.batchByNumber(med.ID, "L1")
		lot.QuantityOnHand = 35
		store.state.batches[lot.ID] = lot

		rec, err := svc.Reconcile(ctx, scopeA, med.ID)
		require.NoError(t, err)
		assert.False(t, rec.Consistent)
		assert.Equal(t, 35, rec.BatchQuantity)
	})

	t.Run("other hospital", func(t *testing.T) {
		store := newMemoryStore()
		med := store.addMedication(hospitalB)
		svc := newTestService(t, store, nil)

		_, err := svc.Reconcile(ctx, scopeA, med.ID)
		assert.True(t, errors.Is(err, errors.ErrCrossTenant))
	})
}
