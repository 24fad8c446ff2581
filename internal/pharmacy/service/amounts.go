package service

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// round2 rounds half away from zero to 2 decimal places
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Amounts are the money columns of a purchase or return
type Amounts struct {
	TaxableBase    decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxableAmount  decimal.Decimal
	TaxAmount      decimal.Decimal
	TotalAmount    decimal.Decimal
}

// PurchaseAmounts applies discount then tax, rounding every intermediate to 2 dp
func PurchaseAmounts(quantity int, unitCost, discountPct, taxPct decimal.Decimal) Amounts {
	base := round2(decimal.NewFromInt(int64(quantity)).Mul(unitCost))
	discount := round2(base.Mul(discountPct).Div(hundred))
	taxable := round2(base.Sub(discount))
	tax := round2(taxable.Mul(taxPct).Div(hundred))

	return Amounts{
		TaxableBase:    base,
		DiscountAmount: discount,
		TaxableAmount:  taxable,
		TaxAmount:      tax,
		TotalAmount:    round2(taxable.Add(tax)),
	}
}

// ReturnAmounts prorates the original purchase totals by quantity over the
// purchase's original quantity, regardless of what has already been returned.
func ReturnAmounts(purchaseQty int, purchaseTaxable, purchaseTax decimal.Decimal, quantity int) Amounts {
	denominator := decimal.NewFromInt(int64(purchaseQty))
	qty := decimal.NewFromInt(int64(quantity))

	taxable := round2(purchaseTaxable.Div(denominator).Mul(qty))
	tax := round2(purchaseTax.Div(denominator).Mul(qty))

	return Amounts{
		TaxableBase:   taxable,
		TaxableAmount: taxable,
		TaxAmount:     tax,
		TotalAmount:   taxable.Add(tax),
	}
}
