package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/medflow/pharmacy-service/pkg/database"
	"github.com/medflow/pharmacy-service/pkg/errors"
)

// Queries are the lock-free reads available both on the pool and inside a unit of work.
// Lookups by id are not filtered by hospital; callers compare HospitalID themselves
// so that a foreign row is reported as cross-tenant.
type Queries interface {
	GetMedication(ctx context.Context, id string) (*Medication, error)
	GetVendor(ctx context.Context, id string) (*Vendor, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetPurchase(ctx context.Context, id string) (*Purchase, error)
	SumReturnedQuantity(ctx context.Context, purchaseID string) (int, error)
	ListReturns(ctx context.Context, hospitalID, purchaseID string) ([]*PurchaseReturn, error)
	ListBatches(ctx context.Context, hospitalID, medicationID string) ([]*Batch, error)
	ListLedger(ctx context.Context, hospitalID, medicationID string, limit int) ([]*LedgerEntry, error)
	GetStockTotals(ctx context.Context, hospitalID, medicationID string) (*StockTotals, error)
}

// TxStore is the transactional surface used by the purchase and return processors.
// Lock* methods take SELECT ... FOR UPDATE row locks held until commit or rollback.
type TxStore interface {
	Queries

	LockMedication(ctx context.Context, id string) (*Medication, error)
	LockPurchase(ctx context.Context, id string) (*Purchase, error)
	LockBatchByNumber(ctx context.Context, hospitalID, medicationID, batchNo string) (*Batch, error)
	LockAvailableBatches(ctx context.Context, hospitalID, medicationID string) ([]*Batch, error)

	InsertPurchase(ctx context.Context, p *Purchase) error
	InsertPurchaseReturn(ctx context.Context, r *PurchaseReturn) error
	InsertBatch(ctx context.Context, b *Batch) error
	UpdateBatch(ctx context.Context, b *Batch) error
	SetBatchQuantity(ctx context.Context, batchID string, quantity int) error
	UpdateMedicationStock(ctx context.Context, m *Medication) error
	InsertLedgerEntry(ctx context.Context, e *LedgerEntry) error
}

// Store is the pharmacy data-access handle. The pool lifecycle belongs to the caller.
type Store struct {
	queries
	db   *database.DB
	opts database.TxOptions
}

// NewStore creates a store whose units of work use opts for lock and statement timeouts
func NewStore(db *database.DB, opts database.TxOptions) *Store {
	return &Store{
		queries: queries{q: db},
		db:      db,
		opts:    opts,
	}
}

// WithTx runs fn inside one READ COMMITTED transaction. Any error rolls the whole
// unit of work back and is returned classified as an AppError.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	err := s.db.TransactionWithOptions(ctx, s.opts, func(tx *sqlx.Tx) error {
		return fn(ctx, &txStore{queries: queries{q: tx}})
	})
	return database.Classify(err)
}

// Health reports database connectivity
func (s *Store) Health(ctx context.Context) map[string]string {
	return s.db.Health(ctx)
}

type querier interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

type queries struct {
	q querier
}

type txStore struct {
	queries
}

const medicationColumns = `id, hospital_id, name, generic_name, stock_quantity, purchase_price,
	gst_rate, supplier_name, expiry_date, is_active, created_at, updated_at`

const batchColumns = `id, hospital_id, medication_id, batch_no, expiry_date, mfg_date,
	purchase_date, quantity_on_hand, unit_cost, created_at, updated_at`

const purchaseColumns = `id, hospital_id, medication_id, vendor_id, invoice_number, batch_no,
	purchase_date, expiry_date, mfg_date, quantity, unit_cost, discount_pct, tax_pct,
	taxable_amount, tax_amount, total_amount, notes, created_by, created_at`

const returnColumns = `id, hospital_id, stock_purchase_id, medication_id, vendor_id, return_date,
	quantity, unit_cost, tax_pct, taxable_amount, tax_amount, total_amount, reason, notes,
	created_by, created_at`

const ledgerColumns = `id, seq, hospital_id, medication_id, batch_id, entry_date, entry_type,
	quantity_in, quantity_out, balance_after, reference_type, reference_id, created_by, created_at`

// fefoOrder sorts lots oldest-expiry first, then earliest acquired, then creation order
const fefoOrder = `ORDER BY expiry_date, purchase_date, created_at, id`

// getOne scans a single row, mapping no rows to a NotFound for resource
func (r queries) getOne(ctx context.Context, dest interface{}, resource, query string, args ...interface{}) error {
	if err := sqlx.GetContext(ctx, r.q, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errors.NotFound(resource)
		}
		return err
	}
	return nil
}

// GetMedication gets a medication by ID
func (r queries) GetMedication(ctx context.Context, id string) (*Medication, error) {
	var m Medication
	query := `SELECT ` + medicationColumns + ` FROM medications WHERE id = $1`
	if err := r.getOne(ctx, &m, "medication", query, id); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetVendor gets a vendor by ID
func (r queries) GetVendor(ctx context.Context, id string) (*Vendor, error) {
	var v Vendor
	query := `SELECT id, hospital_id, name, phone, gstin, created_at FROM vendors WHERE id = $1`
	if err := r.getOne(ctx, &v, "vendor", query, id); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetUser gets a user projection by ID
func (r queries) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	query := `SELECT id, hospital_id, full_name, email FROM users WHERE id = $1`
	if err := r.getOne(ctx, &u, "user", query, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetPurchase gets a purchase by ID
func (r queries) GetPurchase(ctx context.Context, id string) (*Purchase, error) {
	var p Purchase
	query := `SELECT ` + purchaseColumns + ` FROM stock_purchases WHERE id = $1`
	if err := r.getOne(ctx, &p, "purchase", query, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// SumReturnedQuantity totals all returns recorded against a purchase
func (r queries) SumReturnedQuantity(ctx context.Context, purchaseID string) (int, error) {
	var total int
	query := `SELECT COALESCE(SUM(quantity), 0) FROM stock_purchase_returns WHERE stock_purchase_id = $1`
	if err := sqlx.GetContext(ctx, r.q, &total, query, purchaseID); err != nil {
		return 0, err
	}
	return total, nil
}

// ListReturns lists the returns of a purchase, oldest first
func (r queries) ListReturns(ctx context.Context, hospitalID, purchaseID string) ([]*PurchaseReturn, error) {
	returns := []*PurchaseReturn{}
	query := `
		SELECT ` + returnColumns + ` FROM stock_purchase_returns
		WHERE hospital_id = $1 AND stock_purchase_id = $2
		ORDER BY created_at, id
	`
	if err := sqlx.SelectContext(ctx, r.q, &returns, query, hospitalID, purchaseID); err != nil {
		return nil, err
	}
	return returns, nil
}

// ListBatches lists every lot of a medication in FEFO order, including empty ones
func (r queries) ListBatches(ctx context.Context, hospitalID, medicationID string) ([]*Batch, error) {
	batches := []*Batch{}
	query := `
		SELECT ` + batchColumns + ` FROM medication_batches
		WHERE hospital_id = $1 AND medication_id = $2
		` + fefoOrder
	if err := sqlx.SelectContext(ctx, r.q, &batches, query, hospitalID, medicationID); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListLedger lists ledger entries for a medication, newest first
func (r queries) ListLedger(ctx context.Context, hospitalID, medicationID string, limit int) ([]*LedgerEntry, error) {
	entries := []*LedgerEntry{}
	query := `
		SELECT ` + ledgerColumns + ` FROM stock_ledger_entries
		WHERE hospital_id = $1 AND medication_id = $2
		ORDER BY seq DESC
		LIMIT $3
	`
	if err := sqlx.SelectContext(ctx, r.q, &entries, query, hospitalID, medicationID, limit); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetStockTotals reads aggregate stock, the sum over lots and the latest ledger balance in one snapshot
func (r queries) GetStockTotals(ctx context.Context, hospitalID, medicationID string) (*StockTotals, error) {
	var totals StockTotals
	query := `
		SELECT
			m.stock_quantity,
			COALESCE((
				SELECT SUM(b.quantity_on_hand) FROM medication_batches b
				WHERE b.hospital_id = m.hospital_id AND b.medication_id = m.id
			), 0) AS batch_quantity,
			(
				SELECT l.balance_after FROM stock_ledger_entries l
				WHERE l.hospital_id = m.hospital_id AND l.medication_id = m.id
				ORDER BY l.seq DESC LIMIT 1
			) AS ledger_balance,
			(
				SELECT COUNT(*) FROM stock_ledger_entries l
				WHERE l.hospital_id = m.hospital_id AND l.medication_id = m.id
			) AS ledger_entry_count
		FROM medications m
		WHERE m.hospital_id = $1 AND m.id = $2
	`
	if err := r.getOne(ctx, &totals, "medication", query, hospitalID, medicationID); err != nil {
		return nil, err
	}
	return &totals, nil
}

// LockMedication reads a medication and holds its row lock
func (t *txStore) LockMedication(ctx context.Context, id string) (*Medication, error) {
	var m Medication
	query := `SELECT ` + medicationColumns + ` FROM medications WHERE id = $1 FOR UPDATE`
	if err := t.getOne(ctx, &m, "medication", query, id); err != nil {
		return nil, err
	}
	return &m, nil
}

// LockPurchase reads a purchase and holds its row lock so concurrent returns serialize
func (t *txStore) LockPurchase(ctx context.Context, id string) (*Purchase, error) {
	var p Purchase
	query := `SELECT ` + purchaseColumns + ` FROM stock_purchases WHERE id = $1 FOR UPDATE`
	if err := t.getOne(ctx, &p, "purchase", query, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// LockBatchByNumber locks the lot with a normalized batch number, or returns NotFound
func (t *txStore) LockBatchByNumber(ctx context.Context, hospitalID, medicationID, batchNo string) (*Batch, error) {
	var b Batch
	query := `
		SELECT ` + batchColumns + ` FROM medication_batches
		WHERE hospital_id = $1 AND medication_id = $2 AND batch_no = $3
		FOR UPDATE
	`
	if err := t.getOne(ctx, &b, "batch", query, hospitalID, medicationID, batchNo); err != nil {
		return nil, err
	}
	return &b, nil
}

// LockAvailableBatches locks every lot with stock on hand in FEFO order
func (t *txStore) LockAvailableBatches(ctx context.Context, hospitalID, medicationID string) ([]*Batch, error) {
	batches := []*Batch{}
	query := `
		SELECT ` + batchColumns + ` FROM medication_batches
		WHERE hospital_id = $1 AND medication_id = $2 AND quantity_on_hand > 0
		` + fefoOrder + `
		FOR UPDATE
	`
	if err := sqlx.SelectContext(ctx, t.q, &batches, query, hospitalID, medicationID); err != nil {
		return nil, err
	}
	return batches, nil
}

// InsertPurchase creates a purchase row. The id is assigned by the caller.
func (t *txStore) InsertPurchase(ctx context.Context, p *Purchase) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_purchases (
			id, hospital_id, medication_id, vendor_id, invoice_number, batch_no,
			purchase_date, expiry_date, mfg_date, quantity, unit_cost, discount_pct, tax_pct,
			taxable_amount, tax_amount, total_amount, notes, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at
	`

	return t.q.QueryRowxContext(ctx, query,
		p.ID, p.HospitalID, p.MedicationID, p.VendorID, p.InvoiceNumber, p.BatchNo,
		p.PurchaseDate, p.ExpiryDate, p.MfgDate, p.Quantity, p.UnitCost, p.DiscountPct, p.TaxPct,
		p.TaxableAmount, p.TaxAmount, p.TotalAmount, p.Notes, p.CreatedBy,
	).Scan(&p.CreatedAt)
}

// InsertPurchaseReturn creates a purchase return row
func (t *txStore) InsertPurchaseReturn(ctx context.Context, pr *PurchaseReturn) error {
	if pr.ID == "" {
		pr.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_purchase_returns (
			id, hospital_id, stock_purchase_id, medication_id, vendor_id, return_date,
			quantity, unit_cost, tax_pct, taxable_amount, tax_amount, total_amount,
			reason, notes, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at
	`

	return t.q.QueryRowxContext(ctx, query,
		pr.ID, pr.HospitalID, pr.StockPurchaseID, pr.MedicationID, pr.VendorID, pr.ReturnDate,
		pr.Quantity, pr.UnitCost, pr.TaxPct, pr.TaxableAmount, pr.TaxAmount, pr.TotalAmount,
		pr.Reason, pr.Notes, pr.CreatedBy,
	).Scan(&pr.CreatedAt)
}

// InsertBatch creates a new lot
func (t *txStore) InsertBatch(ctx context.Context, b *Batch) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}

	query := `
		INSERT INTO medication_batches (
			id, hospital_id, medication_id, batch_no, expiry_date, mfg_date,
			purchase_date, quantity_on_hand, unit_cost
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	return t.q.QueryRowxContext(ctx, query,
		b.ID, b.HospitalID, b.MedicationID, b.BatchNo, b.ExpiryDate, b.MfgDate,
		b.PurchaseDate, b.QuantityOnHand, b.UnitCost,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
}

// UpdateBatch writes a re-purchased lot's quantity, cost and dates
func (t *txStore) UpdateBatch(ctx context.Context, b *Batch) error {
	query := `
		UPDATE medication_batches SET
			quantity_on_hand = $2, unit_cost = $3, expiry_date = $4, mfg_date = $5, purchase_date = $6
		WHERE id = $1
		RETURNING updated_at
	`

	err := t.q.QueryRowxContext(ctx, query,
		b.ID, b.QuantityOnHand, b.UnitCost, b.ExpiryDate, b.MfgDate, b.PurchaseDate,
	).Scan(&b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.NotFound("batch")
	}
	return err
}

// SetBatchQuantity sets a lot's quantity on hand
func (t *txStore) SetBatchQuantity(ctx context.Context, batchID string, quantity int) error {
	query := `UPDATE medication_batches SET quantity_on_hand = $2 WHERE id = $1`
	result, err := t.q.ExecContext(ctx, query, batchID, quantity)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}

	return nil
}

// UpdateMedicationStock writes the aggregate stock and the latest purchase attributes
func (t *txStore) UpdateMedicationStock(ctx context.Context, m *Medication) error {
	query := `
		UPDATE medications SET
			stock_quantity = $2, purchase_price = $3, supplier_name = $4
		WHERE id = $1
		RETURNING updated_at
	`

	err := t.q.QueryRowxContext(ctx, query,
		m.ID, m.StockQuantity, m.PurchasePrice, m.SupplierName,
	).Scan(&m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.NotFound("medication")
	}
	return err
}

// InsertLedgerEntry appends a ledger entry
func (t *txStore) InsertLedgerEntry(ctx context.Context, e *LedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.EntryDate.IsZero() {
		e.EntryDate = time.Now().UTC()
	}

	query := `
		INSERT INTO stock_ledger_entries (
			id, hospital_id, medication_id, batch_id, entry_date, entry_type,
			quantity_in, quantity_out, balance_after, reference_type, reference_id, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING seq, created_at
	`

	return t.q.QueryRowxContext(ctx, query,
		e.ID, e.HospitalID, e.MedicationID, e.BatchID, e.EntryDate, e.EntryType,
		e.QuantityIn, e.QuantityOut, e.BalanceAfter, e.ReferenceType, e.ReferenceID, e.CreatedBy,
	).Scan(&e.Seq, &e.CreatedAt)
}
