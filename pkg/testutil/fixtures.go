package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// MedicationFixture represents test medication master data
type MedicationFixture struct {
	ID            string
	HospitalID    string
	Name          string
	StockQuantity int
	PurchasePrice decimal.Decimal
	GSTRate       decimal.Decimal
	SupplierName  *string
	ExpiryDate    *time.Time
	IsActive      bool
}

// VendorFixture represents test vendor data
type VendorFixture struct {
	ID         string
	HospitalID string
	Name       string
}

// UserFixture represents a test staff member
type UserFixture struct {
	ID         string
	HospitalID string
	FullName   string
	Email      string
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

func (f *FixtureFactory) next() int {
	f.sequence++
	return f.sequence
}

// HospitalID returns a fresh hospital identifier
func (f *FixtureFactory) HospitalID() string {
	return uuid.New().String()
}

// Medication creates an active medication with no stock, price 10.00 and 12% GST
func (f *FixtureFactory) Medication(hospitalID string) MedicationFixture {
	seq := f.next()
	return MedicationFixture{
		ID:            uuid.New().String(),
		HospitalID:    hospitalID,
		Name:          fmt.Sprintf("Paracetamol 500mg #%d", seq),
		PurchasePrice: decimal.NewFromInt(10),
		GSTRate:       decimal.NewFromInt(12),
		IsActive:      true,
	}
}

// Vendor creates a vendor fixture
func (f *FixtureFactory) Vendor(hospitalID string) VendorFixture {
	seq := f.next()
	return VendorFixture{
		ID:         uuid.New().String(),
		HospitalID: hospitalID,
		Name:       fmt.Sprintf("Acme Pharma Distributors %d", seq),
	}
}

// User creates a staff member fixture
func (f *FixtureFactory) User(hospitalID string) UserFixture {
	seq := f.next()
	return UserFixture{
		ID:         uuid.New().String(),
		HospitalID: hospitalID,
		FullName:   fmt.Sprintf("Pharmacist %d", seq),
		Email:      fmt.Sprintf("pharmacist%d@hospital.test", seq),
	}
}

// InsertMedication writes a medication fixture
func InsertMedication(ctx context.Context, db sqlx.ExecerContext, m MedicationFixture) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO medications (id, hospital_id, name, stock_quantity, purchase_price, gst_rate, supplier_name, expiry_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.HospitalID, m.Name, m.StockQuantity, m.PurchasePrice, m.GSTRate, m.SupplierName, m.ExpiryDate, m.IsActive,
	)
	return err
}

// InsertVendor writes a vendor fixture
func InsertVendor(ctx context.Context, db sqlx.ExecerContext, v VendorFixture) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO vendors (id, hospital_id, name) VALUES ($1, $2, $3)`,
		v.ID, v.HospitalID, v.Name,
	)
	return err
}

// InsertUser writes a user fixture
func InsertUser(ctx context.Context, db sqlx.ExecerContext, u UserFixture) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, hospital_id, full_name, email) VALUES ($1, $2, $3, $4)`,
		u.ID, u.HospitalID, u.FullName, u.Email,
	)
	return err
}
