package repository

// Migrations returns the pharmacy schema in apply order. Statements are idempotent.
func Migrations() []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

		`CREATE OR REPLACE FUNCTION update_updated_at()
		RETURNS TRIGGER AS $$
		BEGIN
			NEW.updated_at = NOW();
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,

		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			hospital_id UUID NOT NULL,
			full_name VARCHAR(255) NOT NULL,
			email VARCHAR(255)
		)`,

		`CREATE TABLE IF NOT EXISTS vendors (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			hospital_id UUID NOT NULL,
			name VARCHAR(255) NOT NULL,
			phone VARCHAR(50),
			gstin VARCHAR(20),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS medications (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			hospital_id UUID NOT NULL,
			name VARCHAR(255) NOT NULL,
			generic_name VARCHAR(255),
			stock_quantity INTEGER NOT NULL DEFAULT 0
				CONSTRAINT medications_stock_quantity_non_negative CHECK (stock_quantity >= 0),
			purchase_price NUMERIC(12,4) NOT NULL DEFAULT 0,
			gst_rate NUMERIC(7,4) NOT NULL DEFAULT 0,
			supplier_name VARCHAR(255),
			expiry_date DATE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_medications_hospital ON medications(hospital_id)`,

		`CREATE TABLE IF NOT EXISTS medication_batches (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			hospital_id UUID NOT NULL,
			medication_id UUID NOT NULL REFERENCES medications(id),
			batch_no VARCHAR(64) NOT NULL,
			expiry_date DATE NOT NULL,
			mfg_date DATE,
			purchase_date DATE NOT NULL,
			quantity_on_hand INTEGER NOT NULL DEFAULT 0
				CONSTRAINT medication_batches_quantity_on_hand_non_negative CHECK (quantity_on_hand >= 0),
			unit_cost NUMERIC(12,4) NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT medication_batches_batch_number_key UNIQUE (hospital_id, medication_id, batch_no)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_medication_batches_fefo
			ON medication_batches(hospital_id, medication_id, expiry_date, purchase_date, created_at)`,

		`CREATE TABLE IF NOT EXISTS stock_purchases (
			id UUID PRIMARY KEY,
			hospital_id UUID NOT NULL,
			medication_id UUID NOT NULL REFERENCES medications(id),
			vendor_id UUID REFERENCES vendors(id),
			invoice_number VARCHAR(100),
			batch_no VARCHAR(64) NOT NULL,
			purchase_date DATE NOT NULL,
			expiry_date DATE NOT NULL,
			mfg_date DATE,
			quantity INTEGER NOT NULL
				CONSTRAINT stock_purchases_quantity_positive CHECK (quantity > 0),
			unit_cost NUMERIC(12,4) NOT NULL,
			discount_pct NUMERIC(7,4) NOT NULL DEFAULT 0,
			tax_pct NUMERIC(7,4) NOT NULL DEFAULT 0,
			taxable_amount NUMERIC(14,2) NOT NULL,
			tax_amount NUMERIC(14,2) NOT NULL,
			total_amount NUMERIC(14,2) NOT NULL,
			notes TEXT,
			created_by UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_purchases_medication ON stock_purchases(hospital_id, medication_id)`,

		`CREATE TABLE IF NOT EXISTS stock_purchase_returns (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			hospital_id UUID NOT NULL,
			stock_purchase_id UUID NOT NULL REFERENCES stock_purchases(id),
			medication_id UUID NOT NULL REFERENCES medications(id),
			vendor_id UUID REFERENCES vendors(id),
			return_date DATE NOT NULL,
			quantity INTEGER NOT NULL
				CONSTRAINT stock_purchase_returns_quantity_positive CHECK (quantity > 0),
			unit_cost NUMERIC(12,4) NOT NULL,
			tax_pct NUMERIC(7,4) NOT NULL DEFAULT 0,
			taxable_amount NUMERIC(14,2) NOT NULL,
			tax_amount NUMERIC(14,2) NOT NULL,
			total_amount NUMERIC(14,2) NOT NULL,
			reason VARCHAR(255),
			notes TEXT,
			created_by UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_purchase_returns_purchase ON stock_purchase_returns(stock_purchase_id)`,

		`CREATE TABLE IF NOT EXISTS stock_ledger_entries (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			seq BIGSERIAL NOT NULL UNIQUE,
			hospital_id UUID NOT NULL,
			medication_id UUID NOT NULL REFERENCES medications(id),
			batch_id UUID REFERENCES medication_batches(id),
			entry_date DATE NOT NULL,
			entry_type VARCHAR(32) NOT NULL,
			quantity_in INTEGER NOT NULL DEFAULT 0 CHECK (quantity_in >= 0),
			quantity_out INTEGER NOT NULL DEFAULT 0 CHECK (quantity_out >= 0),
			balance_after INTEGER NOT NULL,
			reference_type VARCHAR(32) NOT NULL,
			reference_id UUID NOT NULL,
			created_by UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_ledger_medication ON stock_ledger_entries(hospital_id, medication_id, seq)`,

		`DROP TRIGGER IF EXISTS medications_updated_at ON medications`,
		`CREATE TRIGGER medications_updated_at BEFORE UPDATE ON medications
			FOR EACH ROW EXECUTE FUNCTION update_updated_at()`,
		`DROP TRIGGER IF EXISTS medication_batches_updated_at ON medication_batches`,
		`CREATE TRIGGER medication_batches_updated_at BEFORE UPDATE ON medication_batches
			FOR EACH ROW EXECUTE FUNCTION update_updated_at()`,
	}
}
