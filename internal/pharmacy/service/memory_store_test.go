package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/pharmacy-service/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-service/pkg/errors"
	"github.com/medflow/pharmacy-service/pkg/logger"
	"github.com/medflow/pharmacy-service/pkg/tenant"
	"github.com/shopspring/decimal"
)

const (
	hospitalA = "6f1c2a9e-3b7d-4c1e-9a55-0d2f4b8e7c11"
	hospitalB = "0b4e7d2a-91c3-4f5e-8a6b-3c2d1e0f9a87"
	userA     = "a3d9e0c4-52f1-4b8a-8e6d-7c1b2f3a4d5e"
)

var (
	scopeA   = tenant.Scope{HospitalID: hospitalA, UserID: userA}
	testDate = time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)
)

// memoryState is everything the store persists
type memoryState struct {
	medications map[string]repository.Medication
	vendors     map[string]repository.Vendor
	users       map[string]repository.User
	batches     map[string]repository.Batch
	purchases   map[string]repository.Purchase
	returns     []repository.PurchaseReturn
	ledger      []repository.LedgerEntry
	seq         int64
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		medications: make(map[string]repository.Medication, len(s.medications)),
		vendors:     make(map[string]repository.Vendor, len(s.vendors)),
		users:       make(map[string]repository.User, len(s.users)),
		batches:     make(map[string]repository.Batch, len(s.batches)),
		purchases:   make(map[string]repository.Purchase, len(s.purchases)),
		returns:     append([]repository.PurchaseReturn(nil), s.returns...),
		ledger:      append([]repository.LedgerEntry(nil), s.ledger...),
		seq:         s.seq,
	}
	for k, v := range s.medications {
		c.medications[k] = v
	}
	for k, v := range s.vendors {
		c.vendors[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.batches {
		c.batches[k] = v
	}
	for k, v := range s.purchases {
		c.purchases[k] = v
	}
	return c
}

// memoryStore is an in-memory Store. Units of work are serialized by one
// mutex and roll back to a snapshot on error.
type memoryStore struct {
	mu    sync.Mutex
	state memoryState
	clock time.Time

	// locks records every Lock* call in order as "kind:id"
	locks []string
	// failOn makes the named operation return the error
	failOn map[string]error
	// commits counts units of work that committed
	commits int
}

type memoryTx struct {
	store *memoryStore
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		state: memoryState{
			medications: make(map[string]repository.Medication),
			vendors:     make(map[string]repository.Vendor),
			users:       make(map[string]repository.User),
			batches:     make(map[string]repository.Batch),
			purchases:   make(map[string]repository.Purchase),
		},
		clock:  testDate,
		failOn: make(map[string]error),
	}
}

func (m *memoryStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memoryStore) fail(op string) error {
	return m.failOn[op]
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, repository.TxStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(ctx, &memoryTx{store: m}); err != nil {
		m.state = snapshot
		return err
	}
	m.commits++
	return nil
}

// Seeding helpers

func (m *memoryStore) addMedication(hospitalID string, mutate ...func(*repository.Medication)) repository.Medication {
	med := repository.Medication{
		ID:            uuid.New().String(),
		HospitalID:    hospitalID,
		Name:          "Paracetamol 500mg",
		PurchasePrice: decimal.NewFromInt(10),
		GSTRate:       decimal.NewFromInt(12),
		IsActive:      true,
		CreatedAt:     m.tick(),
	}
	for _, fn := range mutate {
		fn(&med)
	}
	m.state.medications[med.ID] = med
	return med
}

func (m *memoryStore) addVendor(hospitalID, name string) repository.Vendor {
	v := repository.Vendor{ID: uuid.New().String(), HospitalID: hospitalID, Name: name, CreatedAt: m.tick()}
	m.state.vendors[v.ID] = v
	return v
}

func (m *memoryStore) addUser(hospitalID, id, name string) {
	m.state.users[id] = repository.User{ID: id, HospitalID: hospitalID, FullName: name}
}

// addBatch seeds a lot and raises the medication's stock to match
func (m *memoryStore) addBatch(med repository.Medication, batchNo string, qty int, expiry time.Time) repository.Batch {
	b := repository.Batch{
		ID:             uuid.New().String(),
		HospitalID:     med.HospitalID,
		MedicationID:   med.ID,
		BatchNo:        batchNo,
		ExpiryDate:     expiry,
		PurchaseDate:   testDate,
		QuantityOnHand: qty,
		UnitCost:       decimal.NewFromInt(10),
		CreatedAt:      m.tick(),
	}
	m.state.batches[b.ID] = b

	stored := m.state.medications[med.ID]
	stored.StockQuantity += qty
	m.state.medications[med.ID] = stored
	return b
}

func (m *memoryStore) medication(id string) repository.Medication {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.medications[id]
}

func (m *memoryStore) batch(id string) repository.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.batches[id]
}

func (m *memoryStore) batchByNumber(medicationID, batchNo string) (repository.Batch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.state.batches {
		if b.MedicationID == medicationID && b.BatchNo == batchNo {
			return b, true
		}
	}
	return repository.Batch{}, false
}

func (m *memoryStore) ledgerFor(medicationID string) []repository.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.LedgerEntry
	for _, e := range m.state.ledger {
		if e.MedicationID == medicationID {
			out = append(out, e)
		}
	}
	return out
}

func (m *memoryStore) batchTotal(medicationID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, b := range m.state.batches {
		if b.MedicationID == medicationID {
			total += b.QuantityOnHand
		}
	}
	return total
}

// Queries

func (m *memoryStore) GetMedication(ctx context.Context, id string) (*repository.Medication, error) {
	if err := m.fail("GetMedication"); err != nil {
		return nil, err
	}
	if med, ok := m.state.medications[id]; ok {
		return &med, nil
	}
	return nil, errors.NotFound("medication")
}

func (m *memoryStore) GetVendor(ctx context.Context, id string) (*repository.Vendor, error) {
	if v, ok := m.state.vendors[id]; ok {
		return &v, nil
	}
	return nil, errors.NotFound("vendor")
}

func (m *memoryStore) GetUser(ctx context.Context, id string) (*repository.User, error) {
	if u, ok := m.state.users[id]; ok {
		return &u, nil
	}
	return nil, errors.NotFound("user")
}

func (m *memoryStore) GetPurchase(ctx context.Context, id string) (*repository.Purchase, error) {
	if p, ok := m.state.purchases[id]; ok {
		return &p, nil
	}
	return nil, errors.NotFound("purchase")
}

func (m *memoryStore) SumReturnedQuantity(ctx context.Context, purchaseID string) (int, error) {
	total := 0
	for _, r := range m.state.returns {
		if r.StockPurchaseID == purchaseID {
			total += r.Quantity
		}
	}
	return total, nil
}

func (m *memoryStore) ListReturns(ctx context.Context, hospitalID, purchaseID string) ([]*repository.PurchaseReturn, error) {
	var out []*repository.PurchaseReturn
	for i := range m.state.returns {
		r := m.state.returns[i]
		if r.HospitalID == hospitalID && r.StockPurchaseID == purchaseID {
			out = append(out, &r)
		}
	}
	return out, nil
}

func (m *memoryStore) sortedBatches(hospitalID, medicationID string, available bool) []*repository.Batch {
	var out []*repository.Batch
	for _, b := range m.state.batches {
		if b.HospitalID != hospitalID || b.MedicationID != medicationID {
			continue
		}
		if available && b.QuantityOnHand <= 0 {
			continue
		}
		b := b
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.ExpiryDate.Equal(b.ExpiryDate) {
			return a.ExpiryDate.Before(b.ExpiryDate)
		}
		if !a.PurchaseDate.Equal(b.PurchaseDate) {
			return a.PurchaseDate.Before(b.PurchaseDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

func (m *memoryStore) ListBatches(ctx context.Context, hospitalID, medicationID string) ([]*repository.Batch, error) {
	return m.sortedBatches(hospitalID, medicationID, false), nil
}

func (m *memoryStore) ListLedger(ctx context.Context, hospitalID, medicationID string, limit int) ([]*repository.LedgerEntry, error) {
	var out []*repository.LedgerEntry
	for i := len(m.state.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.state.ledger[i]
		if e.HospitalID == hospitalID && e.MedicationID == medicationID {
			out = append(out, &e)
		}
	}
	return out, nil
}

func (m *memoryStore) GetStockTotals(ctx context.Context, hospitalID, medicationID string) (*repository.StockTotals, error) {
	med, ok := m.state.medications[medicationID]
	if !ok || med.HospitalID != hospitalID {
		return nil, errors.NotFound("medication")
	}

	totals := &repository.StockTotals{StockQuantity: med.StockQuantity}
	for _, b := range m.state.batches {
		if b.MedicationID == medicationID {
			totals.BatchQuantity += b.QuantityOnHand
		}
	}
	for _, e := range m.state.ledger {
		if e.MedicationID == medicationID {
			balance := e.BalanceAfter
			totals.LedgerBalance = &balance
			totals.LedgerEntryCount++
		}
	}
	return totals, nil
}

// TxStore: reads delegate to the store, writes mutate its state directly and
// are undone by WithTx on error.

func (tx *memoryTx) GetMedication(ctx context.Context, id string) (*repository.Medication, error) {
	return tx.store.GetMedication(ctx, id)
}

func (tx *memoryTx) GetVendor(ctx context.Context, id string) (*repository.Vendor, error) {
	return tx.store.GetVendor(ctx, id)
}

func (tx *memoryTx) GetUser(ctx context.Context, id string) (*repository.User, error) {
	return tx.store.GetUser(ctx, id)
}

func (tx *memoryTx) GetPurchase(ctx context.Context, id string) (*repository.Purchase, error) {
	return tx.store.GetPurchase(ctx, id)
}

func (tx *memoryTx) SumReturnedQuantity(ctx context.Context, purchaseID string) (int, error) {
	return tx.store.SumReturnedQuantity(ctx, purchaseID)
}

func (tx *memoryTx) ListReturns(ctx context.Context, hospitalID, purchaseID string) ([]*repository.PurchaseReturn, error) {
	return tx.store.ListReturns(ctx, hospitalID, purchaseID)
}

func (tx *memoryTx) ListBatches(ctx context.Context, hospitalID, medicationID string) ([]*repository.Batch, error) {
	return tx.store.ListBatches(ctx, hospitalID, medicationID)
}

func (tx *memoryTx) ListLedger(ctx context.Context, hospitalID, medicationID string, limit int) ([]*repository.LedgerEntry, error) {
	return tx.store.ListLedger(ctx, hospitalID, medicationID, limit)
}

func (tx *memoryTx) GetStockTotals(ctx context.Context, hospitalID, medicationID string) (*repository.StockTotals, error) {
	return tx.store.GetStockTotals(ctx, hospitalID, medicationID)
}

func (tx *memoryTx) LockMedication(ctx context.Context, id string) (*repository.Medication, error) {
	tx.store.locks = append(tx.store.locks, "medication:"+id)
	if err := tx.store.fail("LockMedication"); err != nil {
		return nil, err
	}
	return tx.store.GetMedication(ctx, id)
}

func (tx *memoryTx) LockPurchase(ctx context.Context, id string) (*repository.Purchase, error) {
	tx.store.locks = append(tx.store.locks, "purchase:"+id)
	return tx.store.GetPurchase(ctx, id)
}

func (tx *memoryTx) LockBatchByNumber(ctx context.Context, hospitalID, medicationID, batchNo string) (*repository.Batch, error) {
	for _, b := range tx.store.state.batches {
		if b.HospitalID == hospitalID && b.MedicationID == medicationID && b.BatchNo == batchNo {
			tx.store.locks = append(tx.store.locks, "batch:"+b.ID)
			return &b, nil
		}
	}
	return nil, errors.NotFound("batch")
}

func (tx *memoryTx) LockAvailableBatches(ctx context.Context, hospitalID, medicationID string) ([]*repository.Batch, error) {
	batches := tx.store.sortedBatches(hospitalID, medicationID, true)
	for _, b := range batches {
		tx.store.locks = append(tx.store.locks, "batch:"+b.ID)
	}
	return batches, nil
}

func (tx *memoryTx) InsertPurchase(ctx context.Context, p *repository.Purchase) error {
	if err := tx.store.fail("InsertPurchase"); err != nil {
		return err
	}
	p.CreatedAt = tx.store.tick()
	tx.store.state.purchases[p.ID] = *p
	return nil
}

func (tx *memoryTx) InsertPurchaseReturn(ctx context.Context, r *repository.PurchaseReturn) error {
	if err := tx.store.fail("InsertPurchaseReturn"); err != nil {
		return err
	}
	r.CreatedAt = tx.store.tick()
	tx.store.state.returns = append(tx.store.state.returns, *r)
	return nil
}

func (tx *memoryTx) InsertBatch(ctx context.Context, b *repository.Batch) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.CreatedAt = tx.store.tick()
	b.UpdatedAt = b.CreatedAt
	tx.store.state.batches[b.ID] = *b
	return nil
}

func (tx *memoryTx) UpdateBatch(ctx context.Context, b *repository.Batch) error {
	if _, ok := tx.store.state.batches[b.ID]; !ok {
		return errors.NotFound("batch")
	}
	b.UpdatedAt = tx.store.tick()
	tx.store.state.batches[b.ID] = *b
	return nil
}

func (tx *memoryTx) SetBatchQuantity(ctx context.Context, batchID string, quantity int) error {
	b, ok := tx.store.state.batches[batchID]
	if !ok {
		return errors.NotFound("batch")
	}
	if quantity < 0 {
		return errors.BusinessRule(errors.CodeInsufficientStock, "batch quantity cannot go negative")
	}
	b.QuantityOnHand = quantity
	tx.store.state.batches[batchID] = b
	return nil
}

func (tx *memoryTx) UpdateMedicationStock(ctx context.Context, med *repository.Medication) error {
	if _, ok := tx.store.state.medications[med.ID]; !ok {
		return errors.NotFound("medication")
	}
	if med.StockQuantity < 0 {
		return errors.BusinessRule(errors.CodeInsufficientStock, "stock quantity cannot go negative")
	}
	med.UpdatedAt = tx.store.tick()
	tx.store.state.medications[med.ID] = *med
	return nil
}

func (tx *memoryTx) InsertLedgerEntry(ctx context.Context, e *repository.LedgerEntry) error {
	if err := tx.store.fail("InsertLedgerEntry"); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	tx.store.state.seq++
	e.Seq = tx.store.state.seq
	e.CreatedAt = tx.store.tick()
	tx.store.state.ledger = append(tx.store.state.ledger, *e)
	return nil
}

// recordingEvents captures post-commit notifications
type recordingEvents struct {
	mu        sync.Mutex
	purchased []string
	returned  []string
}

func (r *recordingEvents) StockPurchased(ctx context.Context, p *repository.Purchase, b *repository.Batch, balanceAfter int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purchased = append(r.purchased, p.ID)
}

func (r *recordingEvents) StockReturned(ctx context.Context, ret *repository.PurchaseReturn, allocations []repository.BatchAllocation, balanceAfter int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.returned = append(r.returned, ret.ID)
}

func newTestService(t *testing.T, store *memoryStore, events StockEvents) *StockService {
	t.Helper()
	svc := NewStockService(store, events, Config{}, logger.Nop())
	svc.now = func() time.Time { return testDate }
	return svc
}

func date(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
