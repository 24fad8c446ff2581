package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger entry types written by this service
const (
	EntryTypePurchase       = "purchase"
	EntryTypePurchaseReturn = "purchase_return"
)

// Ledger reference types
const (
	ReferenceStockPurchase       = "stock_purchase"
	ReferenceStockPurchaseReturn = "stock_purchase_return"
)

// Medication is the master record holding the aggregate stock count
type Medication struct {
	ID            string          `db:"id" json:"id"`
	HospitalID    string          `db:"hospital_id" json:"hospital_id"`
	Name          string          `db:"name" json:"name"`
	GenericName   *string         `db:"generic_name" json:"generic_name,omitempty"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	PurchasePrice decimal.Decimal `db:"purchase_price" json:"purchase_price"`
	GSTRate       decimal.Decimal `db:"gst_rate" json:"gst_rate"`
	SupplierName  *string         `db:"supplier_name" json:"supplier_name,omitempty"`
	ExpiryDate    *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	IsActive      bool            `db:"is_active" json:"is_active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Vendor is a supplier medications are purchased from
type Vendor struct {
	ID         string    `db:"id" json:"id"`
	HospitalID string    `db:"hospital_id" json:"hospital_id"`
	Name       string    `db:"name" json:"name"`
	Phone      *string   `db:"phone" json:"phone,omitempty"`
	GSTIN      *string   `db:"gstin" json:"gstin,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// User is the read-only projection of a hospital staff member
type User struct {
	ID         string  `db:"id" json:"id"`
	HospitalID string  `db:"hospital_id" json:"hospital_id"`
	FullName   string  `db:"full_name" json:"full_name"`
	Email      *string `db:"email" json:"email,omitempty"`
}

// Batch is one expiry-dated lot of a medication
type Batch struct {
	ID             string          `db:"id" json:"id"`
	HospitalID     string          `db:"hospital_id" json:"hospital_id"`
	MedicationID   string          `db:"medication_id" json:"medication_id"`
	BatchNo        string          `db:"batch_no" json:"batch_no"`
	ExpiryDate     time.Time       `db:"expiry_date" json:"expiry_date"`
	MfgDate        *time.Time      `db:"mfg_date" json:"mfg_date,omitempty"`
	PurchaseDate   time.Time       `db:"purchase_date" json:"purchase_date"`
	QuantityOnHand int             `db:"quantity_on_hand" json:"quantity_on_hand"`
	UnitCost       decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Purchase is an immutable vendor purchase of one medication
type Purchase struct {
	ID            string          `db:"id" json:"id"`
	HospitalID    string          `db:"hospital_id" json:"hospital_id"`
	MedicationID  string          `db:"medication_id" json:"medication_id"`
	VendorID      *string         `db:"vendor_id" json:"vendor_id,omitempty"`
	InvoiceNumber *string         `db:"invoice_number" json:"invoice_number,omitempty"`
	BatchNo       string          `db:"batch_no" json:"batch_no"`
	PurchaseDate  time.Time       `db:"purchase_date" json:"purchase_date"`
	ExpiryDate    time.Time       `db:"expiry_date" json:"expiry_date"`
	MfgDate       *time.Time      `db:"mfg_date" json:"mfg_date,omitempty"`
	Quantity      int             `db:"quantity" json:"quantity"`
	UnitCost      decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	DiscountPct   decimal.Decimal `db:"discount_pct" json:"discount_pct"`
	TaxPct        decimal.Decimal `db:"tax_pct" json:"tax_pct"`
	TaxableAmount decimal.Decimal `db:"taxable_amount" json:"taxable_amount"`
	TaxAmount     decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	Notes         *string         `db:"notes" json:"notes,omitempty"`
	CreatedBy     string          `db:"created_by" json:"created_by"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// PurchaseReturn is an immutable return of part of a purchase
type PurchaseReturn struct {
	ID              string          `db:"id" json:"id"`
	HospitalID      string          `db:"hospital_id" json:"hospital_id"`
	StockPurchaseID string          `db:"stock_purchase_id" json:"stock_purchase_id"`
	MedicationID    string          `db:"medication_id" json:"medication_id"`
	VendorID        *string         `db:"vendor_id" json:"vendor_id,omitempty"`
	ReturnDate      time.Time       `db:"return_date" json:"return_date"`
	Quantity        int             `db:"quantity" json:"quantity"`
	UnitCost        decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	TaxPct          decimal.Decimal `db:"tax_pct" json:"tax_pct"`
	TaxableAmount   decimal.Decimal `db:"taxable_amount" json:"taxable_amount"`
	TaxAmount       decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	Reason          *string         `db:"reason" json:"reason,omitempty"`
	Notes           *string         `db:"notes" json:"notes,omitempty"`
	CreatedBy       string          `db:"created_by" json:"created_by"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// LedgerEntry is one append-only stock movement with its running balance
type LedgerEntry struct {
	ID            string    `db:"id" json:"id"`
	Seq           int64     `db:"seq" json:"-"`
	HospitalID    string    `db:"hospital_id" json:"hospital_id"`
	MedicationID  string    `db:"medication_id" json:"medication_id"`
	BatchID       *string   `db:"batch_id" json:"batch_id"`
	EntryDate     time.Time `db:"entry_date" json:"entry_date"`
	EntryType     string    `db:"entry_type" json:"entry_type"`
	QuantityIn    int       `db:"quantity_in" json:"quantity_in"`
	QuantityOut   int       `db:"quantity_out" json:"quantity_out"`
	BalanceAfter  int       `db:"balance_after" json:"balance_after"`
	ReferenceType string    `db:"reference_type" json:"reference_type"`
	ReferenceID   string    `db:"reference_id" json:"reference_id"`
	CreatedBy     string    `db:"created_by" json:"created_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// StockTotals is the read-only reconciliation snapshot of one medication
type StockTotals struct {
	StockQuantity    int  `db:"stock_quantity"`
	BatchQuantity    int  `db:"batch_quantity"`
	LedgerBalance    *int `db:"ledger_balance"`
	LedgerEntryCount int  `db:"ledger_entry_count"`
}

// BatchAllocation is the quantity a return drew from one lot
type BatchAllocation struct {
	BatchID         string    `json:"batch_id"`
	BatchNo         string    `json:"batch_no"`
	ExpiryDate      time.Time `json:"expiry_date"`
	Quantity        int       `json:"quantity"`
	RemainingOnHand int       `json:"remaining_on_hand"`
}
